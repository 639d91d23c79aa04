// Package voice turns speech transcripts into trigger-phrase events.
package voice

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"sphero-behavior/internal/config"
	"sphero-behavior/internal/messaging"
	"sphero-behavior/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transcript is the JSON form of a speech message.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Listener watches the speech topic for a trigger phrase.
type Listener struct {
	topic  string
	phrase string

	mu       sync.Mutex
	callback func(string)
}

// NewListener registers the speech topic on router.
func NewListener(cfg *config.Config, router *messaging.Router) *Listener {
	l := &Listener{
		topic:  cfg.Topic("speech"),
		phrase: strings.ToLower(strings.TrimSpace(cfg.VoicePhrase)),
	}
	router.Handle(l.topic, l.handleSpeech)
	return l
}

func (l *Listener) StartListening(callback func(phrase string)) error {
	if l.phrase == "" {
		return errors.New("no trigger phrase configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = callback
	utils.Logger.Infof("🎙️ Listening for %q on %s", l.phrase, l.topic)
	return nil
}

func (l *Listener) StopListening() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = nil
}

// Matches reports whether the transcript contains the trigger phrase.
func (l *Listener) Matches(text string) bool {
	return l.phrase != "" && strings.Contains(normalize(text), l.phrase)
}

func (l *Listener) handleSpeech(_ mqtt.Client, msg mqtt.Message) {
	text := transcriptText(msg.Payload())
	utils.Logger.Debugf("Heard: %q", text)
	if !l.Matches(text) {
		return
	}

	l.mu.Lock()
	cb := l.callback
	l.mu.Unlock()
	if cb != nil {
		cb(l.phrase)
	}
}

func transcriptText(payload []byte) string {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var tr Transcript
		if err := json.Unmarshal([]byte(raw), &tr); err == nil {
			return tr.Text
		}
	}
	return raw
}

// normalize lower-cases and collapses whitespace.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
