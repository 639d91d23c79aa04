// internal/services/memory.go
package services

import (
	"context"
	"fmt"
	"sort"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// =============================================================================
// In-memory Cache (CACHE_ENABLED=false, tests)
// =============================================================================

var _ interfaces.CacheService = (*MemoryCache)(nil)

type MemoryCache struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
	}
}

// Set expiration 은 무시됨
func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = toString(value)
	return nil
}

// Get 키가 없으면 redis.Nil
func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strings[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.strings, k)
		delete(m.hashes, k)
		delete(m.lists, k)
	}
	return nil
}

func (m *MemoryCache) HSet(_ context.Context, key string, values map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for f, v := range values {
		h[f] = toString(v)
	}
	return nil
}

func (m *MemoryCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *MemoryCache) PushCapped(_ context.Context, key string, value interface{}, max int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]string{toString(value)}, m.lists[key]...)
	if max > 0 && int64(len(list)) > max {
		list = list[:max]
	}
	m.lists[key] = list
	return nil
}

// Range LRANGE 와 같은 인덱스 규칙 (음수는 끝에서부터)
func (m *MemoryCache) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}, nil
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// =============================================================================
// In-memory History (HISTORY_ENABLED=false, tests)
// =============================================================================

var _ interfaces.HistoryStore = (*MemoryHistory)(nil)

type MemoryHistory struct {
	mu          sync.Mutex
	runs        map[string]*models.BehaviorRun
	transitions []models.StateTransition
	nextID      uint
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{runs: make(map[string]*models.BehaviorRun)}
}

func (m *MemoryHistory) StartRun(run *models.BehaviorRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.RunID] = &cp
	return nil
}

func (m *MemoryHistory) FinishRun(runID string, reason string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("finish run %s: not found", runID)
	}
	run.EndedAt = &endedAt
	run.ShutdownReason = reason
	return nil
}

// Run 실행 정보 조회
func (m *MemoryHistory) Run(runID string) (models.BehaviorRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return models.BehaviorRun{}, false
	}
	return *run, true
}

func (m *MemoryHistory) SaveTransition(rec models.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := *models.NewStateTransition(rec)
	row.ID = m.nextID
	m.transitions = append(m.transitions, row)
	return nil
}

func (m *MemoryHistory) RecentTransitions(device string, limit int) ([]models.StateTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StateTransition
	for _, t := range m.transitions {
		if t.Device == device {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
