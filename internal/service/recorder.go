// internal/service/recorder.go
package service

import (
	"context"
	"encoding/json"
	"sphero-behavior/internal/common/redis"
	"sphero-behavior/internal/config"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/utils"
	"sync"
	"sync/atomic"
	"time"
)

const (
	recorderQueueSize = 128
	recordTimeout     = 2 * time.Second
)

// StateTelemetry 는 state 토픽에 retained 로 발행되는 메시지
type StateTelemetry struct {
	RunID            string    `json:"run_id"`
	Device           string    `json:"device"`
	State            string    `json:"state"`
	From             string    `json:"from"`
	Trigger          string    `json:"trigger"`
	CollisionCount   int       `json:"collision_count"`
	TimeInPreviousMs int64     `json:"time_in_previous_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

var _ interfaces.TransitionObserver = (*Recorder)(nil)

// Recorder 전이 기록을 이력 DB, Redis, MQTT 로 비동기 전달
// 각 대상은 nil 이면 건너뜀
type Recorder struct {
	stateTopic string
	history    interfaces.HistoryStore
	cache      interfaces.CacheService
	pub        interfaces.MessagePublisher

	mu      sync.RWMutex
	closed  bool
	queue   chan models.TransitionRecord
	done    chan struct{}
	dropped atomic.Int64
}

func NewRecorder(cfg *config.Config, history interfaces.HistoryStore, cache interfaces.CacheService, pub interfaces.MessagePublisher) *Recorder {
	return &Recorder{
		stateTopic: cfg.Topic("state"),
		history:    history,
		cache:      cache,
		pub:        pub,
		queue:      make(chan models.TransitionRecord, recorderQueueSize),
		done:       make(chan struct{}),
	}
}

// Start 기록 고루틴 시작
func (r *Recorder) Start() {
	go r.loop()
}

// OnTransition 큐에 넣기만 하고 바로 반환 (가득 차면 버림)
func (r *Recorder) OnTransition(rec models.TransitionRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		n := r.dropped.Add(1)
		utils.Logger.Warnf("⚠️ Recorder queue full, dropped %s -> %s (total dropped %d)", rec.From, rec.To, n)
	}
}

// Dropped 버려진 기록 수
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close 남은 기록을 처리하고 종료 (ctx 만료 시 중단)
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.queue {
		r.record(rec)
	}
}

func (r *Recorder) record(rec models.TransitionRecord) {
	if r.history != nil {
		if err := r.history.SaveTransition(rec); err != nil {
			utils.Logger.Errorf("❌ Failed to save transition: %v", err)
		}
	}

	if r.cache != nil {
		r.cacheTransition(rec)
	}

	if r.pub != nil {
		r.publish(rec)
	}
}

func (r *Recorder) cacheTransition(rec models.TransitionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	snapshot := map[string]interface{}{
		"run_id":          rec.RunID,
		"state":           string(rec.To),
		"trigger":         string(rec.Trigger),
		"collision_count": rec.CollisionCount,
		"entered_at":      rec.At.Format(time.RFC3339Nano),
	}
	if err := r.cache.HSet(ctx, redis.State(rec.Device), snapshot); err != nil {
		utils.Logger.Errorf("Failed to cache state for %s: %v", rec.Device, err)
	}

	data, err := json.Marshal(models.NewStateTransition(rec))
	if err != nil {
		utils.Logger.Errorf("Failed to marshal transition: %v", err)
		return
	}
	if err := r.cache.PushCapped(ctx, redis.Transitions(rec.Device), data, redis.MaxCachedTransitions); err != nil {
		utils.Logger.Errorf("Failed to cache transition for %s: %v", rec.Device, err)
	}
}

func (r *Recorder) publish(rec models.TransitionRecord) {
	msg := StateTelemetry{
		RunID:            rec.RunID,
		Device:           rec.Device,
		State:            string(rec.To),
		From:             string(rec.From),
		Trigger:          string(rec.Trigger),
		CollisionCount:   rec.CollisionCount,
		TimeInPreviousMs: rec.TimeInPrevious.Milliseconds(),
		Timestamp:        rec.At,
	}
	if err := r.pub.Publish(r.stateTopic, 1, true, msg); err != nil {
		utils.Logger.Errorf("Failed to publish state telemetry: %v", err)
	}
}
