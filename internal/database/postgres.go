// internal/database/postgres.go
package database

import (
	"sphero-behavior/internal/config"
	"sphero-behavior/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// 테이블 마이그레이션
	if err := db.AutoMigrate(
		&models.BehaviorRun{},     // 실행 정보
		&models.StateTransition{}, // 상태 전이 이력
	); err != nil {
		return nil, err
	}

	return db, nil
}
