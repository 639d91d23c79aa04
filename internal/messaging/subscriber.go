// internal/messaging/subscriber.go
package messaging

import (
	"fmt"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber MQTT 구독 관리자
type Subscriber struct {
	client interfaces.MessagePublisher
	router *Router
	active []string
}

// NewSubscriber 새 구독자 생성
func NewSubscriber(client interfaces.MessagePublisher, router *Router) *Subscriber {
	return &Subscriber{client: client, router: router}
}

// SubscribeAll 라우터에 등록된 모든 토픽 구독
func (s *Subscriber) SubscribeAll() error {
	utils.Logger.Infof("🔔 STARTING All Subscriptions")

	for _, topic := range s.router.Topics() {
		utils.Logger.Infof("🔔 SUBSCRIBING TO: %s", topic)
		if err := s.client.Subscribe(topic, 1, s.handleMessage); err != nil {
			utils.Logger.Errorf("❌ SUBSCRIPTION FAILED: %s - %v", topic, err)
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		s.active = append(s.active, topic)
	}

	utils.Logger.Infof("🎉 ALL SUBSCRIPTIONS COMPLETED (%d)", len(s.active))
	return nil
}

// UnsubscribeAll 활성 구독 해제
func (s *Subscriber) UnsubscribeAll() error {
	if len(s.active) == 0 {
		return nil
	}
	err := s.client.Unsubscribe(s.active...)
	s.active = nil
	return err
}

// handleMessage 수신된 메시지를 라우터에 전달
func (s *Subscriber) handleMessage(client mqtt.Client, msg mqtt.Message) {
	utils.Logger.Debugf("📨 MESSAGE RECEIVED %s: %s", msg.Topic(), string(msg.Payload()))
	s.router.RouteMessage(client, msg)
}
