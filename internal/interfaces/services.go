// internal/interfaces/services.go
package interfaces

import (
	"context"
	"sphero-behavior/internal/models"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Effector is the robot's actuation surface: movement, LEDs and attitude sensing.
// Every call returns promptly; failures surface as errors.
type Effector interface {
	SetMovement(heading, speed int, duration time.Duration) error
	StopMovement() error
	Spin(degrees int, duration time.Duration) error
	SetHeading(heading int) error
	SetIndicatorColor(which models.Indicator, color models.Color) error
	RenderMatrix(matrix models.Matrix) error
	ClearMatrix() error
	GetOrientation() (models.Orientation, error)
}

// Connection is the scoped hardware link.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// CollisionSource invokes the registered callback, on its own goroutine, whenever an impact is sensed.
type CollisionSource interface {
	OnCollision(callback func())
}

// VoiceSource reports recognized trigger phrases asynchronously.
type VoiceSource interface {
	StartListening(callback func(phrase string)) error
	StopListening()
}

// KeySource delivers single-character or named keys ("esc") asynchronously.
type KeySource interface {
	StartListening(onKeyDown func(key string)) error
	StopListening()
}

// Sounder plays an audible cue when a state is entered.
type Sounder interface {
	PlayCue(state models.State)
}

// TransitionObserver receives every completed transition.
type TransitionObserver interface {
	OnTransition(rec models.TransitionRecord)
}

// HistoryStore 전이 이력 저장소
type HistoryStore interface {
	StartRun(run *models.BehaviorRun) error
	FinishRun(runID string, reason string, endedAt time.Time) error
	SaveTransition(rec models.TransitionRecord) error
	RecentTransitions(device string, limit int) ([]models.StateTransition, error)
}

// CacheService Redis 캐시 관련 서비스 인터페이스
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error

	HSet(ctx context.Context, key string, values map[string]interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// capped list of recent transitions
	PushCapped(ctx context.Context, key string, value interface{}, max int64) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// MessagePublisher MQTT 메시지 발행 인터페이스
type MessagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Logger 로깅 인터페이스
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}
