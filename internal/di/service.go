// internal/di/service.go
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sphero-behavior/internal/models"
	"time"
)

const (
	finishTimeout       = 5 * time.Second
	connectFailedReason = "connect failed"
)

// =============================================================================
// Behavior Service
// =============================================================================

type BehaviorService struct {
	container *Container
	serverErr chan error
}

func NewBehaviorService(container *Container) *BehaviorService {
	return &BehaviorService{container: container, serverErr: make(chan error, 1)}
}

// Start 구독, 기록기, 실행 레코드, HTTP 서버 시작
func (s *BehaviorService) Start(ctx context.Context) error {
	c := s.container

	if c.Subscriber != nil {
		if err := c.Subscriber.SubscribeAll(); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.Recorder.Start()

	run := &models.BehaviorRun{
		RunID:     c.RunID,
		Device:    c.Config.DeviceName,
		StartedAt: time.Now(),
	}
	if err := c.History.StartRun(run); err != nil {
		c.Logger.Errorf("❌ Failed to record run start: %v", err)
	}

	if c.HistoryRepo != nil && c.Config.HistoryRetention > 0 {
		go func() {
			if _, err := c.HistoryRepo.CleanupOlderThan(c.Config.HistoryRetention); err != nil {
				c.Logger.Errorf("History cleanup failed: %v", err)
			}
		}()
	}

	if c.Config.HTTPAddr != "" {
		go func() {
			c.Logger.Infof("🌐 HTTP API listening on %s", c.Config.HTTPAddr)
			if err := c.Server.Start(c.Config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.Logger.Errorf("❌ HTTP server failed: %v", err)
				s.serverErr <- err
			}
		}()
	}

	c.Logger.Infof("🚀 Behavior service started (%s mode)", c.Config.DeviceMode)
	return nil
}

// Run 컨트롤러가 멈출 때까지 실행하고 정리
func (s *BehaviorService) Run(ctx context.Context) error {
	c := s.container
	if err := s.Start(ctx); err != nil {
		return err
	}

	runErr := c.Controller.Run(ctx)
	reason := connectFailedReason
	if runErr == nil {
		reason = c.Controller.StopReason()
	}
	s.Stop(reason)
	return runErr
}

// Stop 실행 종료 기록, 기록기 flush, HTTP 서버 종료
func (s *BehaviorService) Stop(reason string) {
	c := s.container
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	if err := c.History.FinishRun(c.RunID, reason, time.Now()); err != nil {
		c.Logger.Errorf("❌ Failed to record run end: %v", err)
	}
	if err := c.Recorder.Close(ctx); err != nil {
		c.Logger.Warnf("⚠️ Recorder did not drain: %v", err)
	}
	if c.Subscriber != nil {
		if err := c.Subscriber.UnsubscribeAll(); err != nil {
			c.Logger.Warnf("Unsubscribe failed: %v", err)
		}
	}
	if c.Config.HTTPAddr != "" {
		if err := c.Server.Shutdown(ctx); err != nil {
			c.Logger.Warnf("HTTP server shutdown error: %v", err)
		}
	}
	c.Logger.Infof("💤 Behavior service stopped: %s", reason)
}

// ServerErrors HTTP 서버 시작 실패 알림
func (s *BehaviorService) ServerErrors() <-chan error {
	return s.serverErr
}
