// internal/repository/history.go
package repository

import (
	"fmt"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/utils"
	"time"

	"gorm.io/gorm"
)

// DefaultHistoryLimit is used when a caller passes a non-positive limit.
const DefaultHistoryLimit = 50

var _ interfaces.HistoryStore = (*HistoryRepository)(nil)

// HistoryRepository gorm 기반 전이 이력 저장소
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// StartRun 실행 레코드 생성
func (r *HistoryRepository) StartRun(run *models.BehaviorRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("create run %s: %w", run.RunID, err)
	}
	utils.Logger.Infof("Run %s started for %s", run.RunID, run.Device)
	return nil
}

// FinishRun 실행 종료 시각과 사유 기록
func (r *HistoryRepository) FinishRun(runID string, reason string, endedAt time.Time) error {
	result := r.db.Model(&models.BehaviorRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"ended_at":        endedAt,
			"shutdown_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("finish run %s: %w", runID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("finish run %s: %w", runID, gorm.ErrRecordNotFound)
	}
	utils.Logger.Infof("Run %s finished: %s", runID, reason)
	return nil
}

// SaveTransition 전이 한 건 저장
func (r *HistoryRepository) SaveTransition(rec models.TransitionRecord) error {
	return r.db.Create(models.NewStateTransition(rec)).Error
}

// RecentTransitions 디바이스의 최근 전이 (최신순)
func (r *HistoryRepository) RecentTransitions(device string, limit int) ([]models.StateTransition, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []models.StateTransition
	err := r.db.Where("device = ?", device).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CleanupOlderThan 오래된 전이 이력 정리
func (r *HistoryRepository) CleanupOlderThan(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := r.db.Where("occurred_at < ?", cutoff).Delete(&models.StateTransition{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		utils.Logger.Infof("Cleaned up %d transitions older than %v", result.RowsAffected, olderThan)
	}
	return result.RowsAffected, nil
}
