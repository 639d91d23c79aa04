// cmd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sphero-behavior/internal/config"
	"sphero-behavior/internal/di"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 2
	}

	// DI 컨테이너 생성
	container, err := di.NewContainer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create DI container: %v\n", err)
		return 1
	}
	defer container.Cleanup()

	// 우아한 종료 처리
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-container.BehaviorService.ServerErrors():
			container.Logger.Errorf("❌ HTTP server failed: %v", err)
			cancel()
		case <-ctx.Done():
		}
	}()

	container.Logger.Infof("🎯 Sphero behavior controller starting (%s mode)", cfg.DeviceMode)
	if err := container.BehaviorService.Run(ctx); err != nil {
		container.Logger.Errorf("❌ %v", err)
		return 1
	}

	container.Logger.Infof("✅ Sphero behavior controller stopped: %s", container.Controller.StopReason())
	return 0
}
