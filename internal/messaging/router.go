// internal/messaging/router.go
package messaging

import (
	"sort"
	"sphero-behavior/internal/utils"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Router 토픽별 메시지 라우터
type Router struct {
	mu     sync.RWMutex
	routes map[string]mqtt.MessageHandler
}

// NewRouter 새 메시지 라우터 생성
func NewRouter() *Router {
	return &Router{routes: make(map[string]mqtt.MessageHandler)}
}

// Handle 토픽 핸들러 등록 (같은 토픽은 덮어씀)
func (r *Router) Handle(topic string, handler mqtt.MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[topic] = handler
	utils.Logger.Debugf("Route registered: %s", topic)
}

// Topics 등록된 토픽 목록
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// RouteMessage 토픽에 따라 메시지 라우팅
func (r *Router) RouteMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	utils.Logger.Debugf("Routing message from topic: %s", topic)

	r.mu.RLock()
	handler, ok := r.routes[topic]
	r.mu.RUnlock()

	if !ok {
		utils.Logger.Warnf("Unhandled topic: %s", topic)
		return
	}
	handler(client, msg)
}
