// internal/messaging/mock.go
package messaging

import (
	"sphero-behavior/internal/interfaces"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is an in-process mqtt.Message, used to route locally produced
// payloads and in tests.
type Message struct {
	topic    string
	payload  []byte
	retained bool
}

// NewMessage builds a message for topic.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{topic: topic, payload: payload}
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return m.retained }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}

// Published is one message captured by MockPublisher.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

var _ interfaces.MessagePublisher = (*MockPublisher)(nil)

// MockPublisher MessagePublisher 테스트 구현체
type MockPublisher struct {
	mu            sync.Mutex
	published     []Published
	subscriptions map[string]mqtt.MessageHandler
	connected     bool
	failPublish   error
	block         <-chan struct{}
	onPublish     func(Published)
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		subscriptions: make(map[string]mqtt.MessageHandler),
		connected:     true,
	}
}

// FailPublish makes every Publish return err; nil restores success.
func (m *MockPublisher) FailPublish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPublish = err
}

// OnPublish registers a hook run after each successful Publish.
func (m *MockPublisher) OnPublish(fn func(Published)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPublish = fn
}

// BlockPublish makes Publish wait until release is closed, like a QoS 1
// publish while the broker is unreachable. nil restores normal publishing.
func (m *MockPublisher) BlockPublish(release <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = release
}

func (m *MockPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	if m.failPublish != nil {
		err := m.failPublish
		m.mu.Unlock()
		return err
	}
	p := Published{Topic: topic, QoS: qos, Retained: retained, Payload: data}
	m.published = append(m.published, p)
	hook := m.onPublish
	m.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (m *MockPublisher) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = callback
	return nil
}

func (m *MockPublisher) Unsubscribe(topics ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		delete(m.subscriptions, t)
	}
	return nil
}

func (m *MockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockPublisher) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// Deliver hands payload to the handler subscribed to topic. It reports
// whether a handler existed.
func (m *MockPublisher) Deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handler(nil, NewMessage(topic, payload))
	return true
}

// Messages returns published messages, optionally filtered by topic suffix.
func (m *MockPublisher) Messages(suffix string) []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Published
	for _, p := range m.published {
		if suffix == "" || strings.HasSuffix(p.Topic, suffix) {
			out = append(out, p)
		}
	}
	return out
}

// LastMessage returns the most recent publish, or nil.
func (m *MockPublisher) LastMessage() *Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return nil
	}
	p := m.published[len(m.published)-1]
	return &p
}

// Subscribed lists subscribed topics.
func (m *MockPublisher) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscriptions))
	for t := range m.subscriptions {
		out = append(out, t)
	}
	return out
}
