// internal/input/remote.go
package input

import (
	"encoding/json"
	"strings"
	"sync"

	"sphero-behavior/internal/config"
	"sphero-behavior/internal/messaging"
	"sphero-behavior/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Remote receives key names published on the device's key topic. Payloads
// are a bare key ("r") or JSON {"key":"r"}.
type Remote struct {
	topic string
	mu    sync.Mutex
	onKey func(string)
}

// NewRemote registers the key topic on router.
func NewRemote(cfg *config.Config, router *messaging.Router) *Remote {
	r := &Remote{topic: cfg.Topic("key")}
	router.Handle(r.topic, r.handleKey)
	return r
}

func (r *Remote) StartListening(onKeyDown func(key string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onKey = onKeyDown
	return nil
}

func (r *Remote) StopListening() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onKey = nil
}

func (r *Remote) handleKey(_ mqtt.Client, msg mqtt.Message) {
	key := parseKey(msg.Payload())
	if key == "" {
		utils.Logger.Warnf("Empty key payload on %s", r.topic)
		return
	}

	r.mu.Lock()
	cb := r.onKey
	r.mu.Unlock()
	if cb == nil {
		return
	}
	utils.Logger.Infof("⌨️ Remote key %q", key)
	cb(key)
}

func parseKey(payload []byte) string {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var body struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return ""
		}
		raw = strings.TrimSpace(body.Key)
	}
	return strings.ToLower(raw)
}
