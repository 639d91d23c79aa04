// internal/messaging/client.go
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"sphero-behavior/internal/config"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/utils"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrTimeout 브로커 응답 대기 시간 초과
var ErrTimeout = errors.New("mqtt operation timed out")

// MQTTClient MQTT 클라이언트 구현체
type MQTTClient struct {
	client  mqtt.Client
	config  *config.Config
	timeout time.Duration
}

var _ interfaces.MessagePublisher = (*MQTTClient)(nil)

// NewMQTTClient 새 MQTT 클라이언트 생성 및 브로커 연결
func NewMQTTClient(cfg *config.Config) (*MQTTClient, error) {
	utils.Logger.Infof("🏗️ CREATING MQTT Client")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetOrderMatters(false)

	// 연결 상태 콜백
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		utils.Logger.Info("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		utils.Logger.Errorf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)

	c := &MQTTClient{client: client, config: cfg, timeout: cfg.MQTTPublishTimeout}

	// 연결 시도
	if err := c.wait(client.Connect(), "connect to MQTT broker"); err != nil {
		return nil, err
	}

	utils.Logger.Infof("✅ MQTT Client CREATED")
	return c, nil
}

// wait 토큰 완료를 timeout 까지만 기다림. 재연결 중에는 IsConnected 가 true 라도
// QoS 1 토큰이 브로커 복귀 전까지 끝나지 않는다.
func (c *MQTTClient) wait(token mqtt.Token, op string) error {
	if c.timeout <= 0 {
		token.Wait()
	} else if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("%s: %w after %s", op, ErrTimeout, c.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// encodePayload passes strings and bytes through and JSON-encodes everything else.
func encodePayload(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// Publish 메시지 발행
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	data, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}

	// LED 명령은 초당 수십 건이므로 Debug 레벨
	utils.Logger.Debugf("📤 MQTT SENDING %s (qos=%d retained=%v): %s", topic, qos, retained, data)

	if err := c.wait(c.client.Publish(topic, qos, retained, data), "publish "+topic); err != nil {
		utils.Logger.Errorf("❌ MQTT SEND FAILED: %s - %v", topic, err)
		return err
	}
	return nil
}

// Subscribe 토픽 구독
func (c *MQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	if err := c.wait(c.client.Subscribe(topic, qos, callback), "subscribe to topic "+topic); err != nil {
		return err
	}

	utils.Logger.Infof("✅ Subscribed to topic: %s", topic)
	return nil
}

// Unsubscribe 토픽 구독 해제
func (c *MQTTClient) Unsubscribe(topics ...string) error {
	if len(topics) == 0 || !c.client.IsConnected() {
		return nil
	}
	return c.wait(c.client.Unsubscribe(topics...), fmt.Sprintf("unsubscribe %v", topics))
}

// Disconnect 연결 해제
func (c *MQTTClient) Disconnect(quiesce uint) {
	if c.client.IsConnected() {
		c.client.Disconnect(quiesce)
		utils.Logger.Info("MQTT client disconnected")
	}
}

// IsConnected 연결 상태 확인
func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}
