// internal/device/gateway.go
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sphero-behavior/internal/config"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/messaging"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Gateway command types.
const (
	CmdRoll        = "roll"
	CmdStop        = "stop"
	CmdSpin        = "spin"
	CmdHeading     = "heading"
	CmdLED         = "led"
	CmdMatrix      = "matrix"
	CmdClearMatrix = "clear_matrix"
	CmdConnect     = "connect"
	CmdDisconnect  = "disconnect"
)

var (
	// ErrNoSensorData is returned before the first sensor sample arrives.
	ErrNoSensorData = errors.New("no sensor data yet")
	// ErrSensorStale is returned when the latest sample is too old.
	ErrSensorStale = errors.New("sensor data stale")
	// ErrPublishTimeout is returned when a command publish does not complete in time.
	ErrPublishTimeout = errors.New("command publish timed out")
)

// Command is the JSON body published on the cmd topic.
type Command struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Heading    *int             `json:"heading,omitempty"`
	Speed      *int             `json:"speed,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
	Degrees    int              `json:"degrees,omitempty"`
	Target     models.Indicator `json:"target,omitempty"`
	Color      *models.Color    `json:"color,omitempty"`
	Matrix     *models.Matrix   `json:"matrix,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ConnectionMessage is the gateway's link status report.
type ConnectionMessage struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// SensorMessage is one attitude sample.
type SensorMessage struct {
	Pitch     float64   `json:"pitch"`
	Roll      float64   `json:"roll"`
	Yaw       float64   `json:"yaw"`
	Timestamp time.Time `json:"timestamp"`
}

// Gateway drives a robot through the BLE bridge process over MQTT. It
// implements Effector, Connection and CollisionSource.
type Gateway struct {
	pub            interfaces.MessagePublisher
	device         string
	cmdTopic       string
	connectTimeout time.Duration
	publishTimeout time.Duration
	staleAfter     time.Duration
	clock          func() time.Time

	mu          sync.Mutex
	connState   string
	changed     chan struct{}
	latest      models.Orientation
	latestAt    time.Time
	onCollision func()
}

// NewGateway creates the gateway and registers its topics on router.
func NewGateway(cfg *config.Config, pub interfaces.MessagePublisher, router *messaging.Router) *Gateway {
	g := &Gateway{
		pub:            pub,
		device:         cfg.DeviceName,
		cmdTopic:       cfg.Topic("cmd"),
		connectTimeout: cfg.ConnectTimeout,
		publishTimeout: cfg.MQTTPublishTimeout,
		staleAfter:     cfg.SensorStale,
		clock:          time.Now,
		changed:        make(chan struct{}),
	}
	router.Handle(cfg.Topic("connection"), g.handleConnection)
	router.Handle(cfg.Topic("sensor"), g.handleSensor)
	router.Handle(cfg.Topic("collision"), g.handleCollision)
	return g
}

func (g *Gateway) send(cmd Command, qos byte) error {
	cmd.ID = uuid.NewString()
	cmd.Timestamp = g.clock()
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s command: %w", cmd.Type, err)
	}
	if err := g.publish(qos, data); err != nil {
		return fmt.Errorf("%s command: %w", cmd.Type, err)
	}
	return nil
}

// publish waits at most publishTimeout; a stuck publisher must not block
// shutdown. The abandoned publish finishes in the background.
func (g *Gateway) publish(qos byte, data []byte) error {
	if g.publishTimeout <= 0 {
		return g.pub.Publish(g.cmdTopic, qos, false, data)
	}
	done := make(chan error, 1)
	go func() { done <- g.pub.Publish(g.cmdTopic, qos, false, data) }()

	timer := time.NewTimer(g.publishTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPublishTimeout, g.publishTimeout)
	}
}

// command sends an actuator command; it fails unless the link is ONLINE.
func (g *Gateway) command(cmd Command) error {
	g.mu.Lock()
	state := g.connState
	g.mu.Unlock()
	if state != models.ConnectionOnline {
		return fmt.Errorf("%s: %w (state %q)", cmd.Type, ErrNotConnected, state)
	}
	return g.send(cmd, 0)
}

func intPtr(v int) *int { return &v }

func (g *Gateway) SetMovement(heading, speed int, duration time.Duration) error {
	return g.command(Command{
		Type:       CmdRoll,
		Heading:    intPtr(heading),
		Speed:      intPtr(speed),
		DurationMs: duration.Milliseconds(),
	})
}

func (g *Gateway) StopMovement() error {
	return g.command(Command{Type: CmdStop, Speed: intPtr(0)})
}

func (g *Gateway) Spin(degrees int, duration time.Duration) error {
	return g.command(Command{Type: CmdSpin, Degrees: degrees, DurationMs: duration.Milliseconds()})
}

func (g *Gateway) SetHeading(heading int) error {
	return g.command(Command{Type: CmdHeading, Heading: intPtr(heading)})
}

func (g *Gateway) SetIndicatorColor(which models.Indicator, color models.Color) error {
	return g.command(Command{Type: CmdLED, Target: which, Color: &color})
}

func (g *Gateway) RenderMatrix(matrix models.Matrix) error {
	return g.command(Command{Type: CmdMatrix, Matrix: &matrix})
}

func (g *Gateway) ClearMatrix() error {
	return g.command(Command{Type: CmdClearMatrix})
}

// GetOrientation returns the latest cached sensor sample.
func (g *Gateway) GetOrientation() (models.Orientation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latestAt.IsZero() {
		return models.Orientation{}, ErrNoSensorData
	}
	if age := g.clock().Sub(g.latestAt); g.staleAfter > 0 && age > g.staleAfter {
		return models.Orientation{}, fmt.Errorf("%w: last sample %s ago", ErrSensorStale, age.Round(time.Millisecond))
	}
	return g.latest, nil
}

// Connect asks the gateway to open the radio link and waits for ONLINE.
func (g *Gateway) Connect(ctx context.Context) error {
	g.setConnState("")
	if err := g.send(Command{Type: CmdConnect}, 1); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.connectTimeout)
	defer cancel()
	for {
		g.mu.Lock()
		state, changed := g.connState, g.changed
		g.mu.Unlock()

		if state == models.ConnectionOnline {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s to come online: %w", g.device, ctx.Err())
		}
	}
}

// Disconnect asks the gateway to release the radio link.
func (g *Gateway) Disconnect() error {
	err := g.send(Command{Type: CmdDisconnect}, 1)
	g.setConnState(models.ConnectionOffline)
	return err
}

// OnCollision registers the impact callback; nil disables it.
func (g *Gateway) OnCollision(callback func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onCollision = callback
}

// ConnectionState returns the last reported link state.
func (g *Gateway) ConnectionState() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connState
}

func (g *Gateway) setConnState(state string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connState = state
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *Gateway) handleConnection(_ mqtt.Client, msg mqtt.Message) {
	var cm ConnectionMessage
	if err := json.Unmarshal(msg.Payload(), &cm); err != nil {
		utils.Logger.Errorf("Failed to parse connection message: %v", err)
		return
	}
	if !models.IsValidConnectionState(cm.State) {
		utils.Logger.Warnf("Unknown connection state %q for %s", cm.State, g.device)
		return
	}

	switch cm.State {
	case models.ConnectionOnline:
		utils.Logger.Infof("🔗 %s ONLINE", g.device)
	case models.ConnectionBroken:
		utils.Logger.Warnf("⚠️ %s connection broken", g.device)
	default:
		utils.Logger.Infof("%s %s", g.device, cm.State)
	}
	g.setConnState(cm.State)
}

func (g *Gateway) handleSensor(_ mqtt.Client, msg mqtt.Message) {
	var sm SensorMessage
	if err := json.Unmarshal(msg.Payload(), &sm); err != nil {
		utils.Logger.Errorf("Failed to parse sensor message: %v", err)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest = models.Orientation{Pitch: sm.Pitch, Roll: sm.Roll, Yaw: sm.Yaw}
	g.latestAt = g.clock()
}

func (g *Gateway) handleCollision(_ mqtt.Client, _ mqtt.Message) {
	g.mu.Lock()
	cb := g.onCollision
	g.mu.Unlock()
	if cb != nil {
		go cb()
	}
}
