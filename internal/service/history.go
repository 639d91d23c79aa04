// internal/service/history.go
package service

import (
	"context"
	"encoding/json"
	"sphero-behavior/internal/common/redis"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/utils"
)

type HistoryService struct {
	store interfaces.HistoryStore
	cache interfaces.CacheService
}

func NewHistoryService(store interfaces.HistoryStore, cache interfaces.CacheService) *HistoryService {
	return &HistoryService{store: store, cache: cache}
}

// RecentTransitions Redis 에서 최근 전이 조회, 부족하면 DB 에서 조회
func (s *HistoryService) RecentTransitions(ctx context.Context, device string, limit int) ([]models.StateTransition, error) {
	if limit <= 0 {
		limit = 50
	}

	if s.cache != nil && limit <= redis.MaxCachedTransitions {
		rows, err := s.cachedTransitions(ctx, device, limit)
		if err == nil && (len(rows) == limit || s.store == nil) {
			return rows, nil
		}
		if err != nil {
			utils.Logger.Errorf("Failed to read cached transitions: %v", err)
		}
	}

	if s.store == nil {
		return []models.StateTransition{}, nil
	}
	return s.store.RecentTransitions(device, limit)
}

func (s *HistoryService) cachedTransitions(ctx context.Context, device string, limit int) ([]models.StateTransition, error) {
	items, err := s.cache.Range(ctx, redis.Transitions(device), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	rows := make([]models.StateTransition, 0, len(items))
	for _, item := range items {
		var row models.StateTransition
		if err := json.Unmarshal([]byte(item), &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CachedState Redis 에 저장된 상태 스냅샷
func (s *HistoryService) CachedState(ctx context.Context, device string) (map[string]string, error) {
	if s.cache == nil {
		return map[string]string{}, nil
	}
	return s.cache.HGetAll(ctx, redis.State(device))
}
