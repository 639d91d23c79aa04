// internal/audio/player.go
package audio

import (
	"sync"
	"time"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/utils"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

var _ interfaces.Sounder = (*Player)(nil)

// Player mixes state cues onto the speaker. A player whose speaker failed
// to open stays silent.
type Player struct {
	mu      sync.Mutex
	mixer   *beep.Mixer
	enabled bool
}

// NewPlayer opens the speaker when enabled is true.
func NewPlayer(enabled bool) *Player {
	p := &Player{mixer: &beep.Mixer{}}
	if !enabled {
		return p
	}
	if err := speaker.Init(SampleRate, SampleRate.N(100*time.Millisecond)); err != nil {
		utils.Logger.Warnf("⚠️ Audio unavailable, cues disabled: %v", err)
		return p
	}
	speaker.Play(p.mixer)
	p.enabled = true
	utils.Logger.Info("🔊 Audio cues enabled")
	return p
}

// Enabled reports whether cues reach the speaker.
func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// PlayCue queues the cue for state and returns immediately.
func (p *Player) PlayCue(state models.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	s := Cue(state)
	if s == nil {
		return
	}
	speaker.Lock()
	p.mixer.Add(s)
	speaker.Unlock()
}

// Close silences pending cues and releases the speaker.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	speaker.Clear()
	speaker.Close()
	p.enabled = false
}
