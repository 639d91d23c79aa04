// internal/services/implementations.go
package services

import (
	"context"
	"sphero-behavior/internal/interfaces"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// Cache Service Implementation
// =============================================================================

type CacheServiceImpl struct {
	client *redis.Client
}

func NewCacheService(client *redis.Client) interfaces.CacheService {
	return &CacheServiceImpl{client: client}
}

func (c *CacheServiceImpl) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *CacheServiceImpl) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *CacheServiceImpl) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *CacheServiceImpl) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return c.client.HSet(ctx, key, values).Err()
}

func (c *CacheServiceImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// PushCapped 리스트 앞에 추가하고 max 개만 유지
func (c *CacheServiceImpl) PushCapped(ctx context.Context, key string, value interface{}, max int64) error {
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, max-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *CacheServiceImpl) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.client.LRange(ctx, key, start, stop).Result()
}

// =============================================================================
// Logger Implementation
// =============================================================================

type LoggerImpl struct {
	entry *logrus.Entry
}

// NewLogger JSON 로거 생성; fields 는 모든 로그에 포함됨
func NewLogger(level string, fields logrus.Fields) interfaces.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return &LoggerImpl{entry: logger.WithFields(fields)}
}

// NewLoggerFrom 기존 logrus 로거를 공유 (출력 대상 유지)
func NewLoggerFrom(logger *logrus.Logger, fields logrus.Fields) interfaces.Logger {
	return &LoggerImpl{entry: logger.WithFields(fields)}
}

func (l *LoggerImpl) Debug(args ...interface{}) {
	l.entry.Debug(args...)
}

func (l *LoggerImpl) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *LoggerImpl) Info(args ...interface{}) {
	l.entry.Info(args...)
}

func (l *LoggerImpl) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *LoggerImpl) Warn(args ...interface{}) {
	l.entry.Warn(args...)
}

func (l *LoggerImpl) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *LoggerImpl) Error(args ...interface{}) {
	l.entry.Error(args...)
}

func (l *LoggerImpl) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *LoggerImpl) Fatal(args ...interface{}) {
	l.entry.Fatal(args...)
}

func (l *LoggerImpl) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}
