// Package input provides KeySource implementations.
package input

import (
	"errors"
	"strings"
	"sync"
	"time"

	"sphero-behavior/internal/utils"

	"github.com/gdamore/tcell/v2"
)

// KeyEscape is the name delivered for ESC and Ctrl-C.
const KeyEscape = "esc"

const stopWait = time.Second

// Terminal reads key presses from a tcell screen.
type Terminal struct {
	screen tcell.Screen

	mu       sync.Mutex
	bindings map[rune]func()
	onKey    func(string)
	quit     chan struct{}
	done     chan struct{}
}

// NewTerminal wraps an initialized screen.
func NewTerminal(screen tcell.Screen) *Terminal {
	return &Terminal{screen: screen, bindings: make(map[rune]func())}
}

// Bind handles r locally instead of forwarding it, e.g. simulator controls.
func (t *Terminal) Bind(r rune, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings[r] = fn
}

// StartListening starts the event loop. onKeyDown receives lower-case runes
// and "esc".
func (t *Terminal) StartListening(onKeyDown func(key string)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return errors.New("terminal already listening")
	}
	t.onKey = onKeyDown
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.quit, t.done)
	return nil
}

// StopListening ends the event loop; the screen stays open.
func (t *Terminal) StopListening() {
	t.mu.Lock()
	quit, done := t.quit, t.done
	t.quit, t.done = nil, nil
	t.mu.Unlock()
	if quit == nil {
		return
	}

	close(quit)
	// wake PollEvent
	_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil))
	select {
	case <-done:
	case <-time.After(stopWait):
		utils.Logger.Warnf("⚠️ Terminal input did not stop within %s", stopWait)
	}
}

func (t *Terminal) loop(quit, done chan struct{}) {
	defer close(done)
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case <-quit:
			return
		default:
		}

		switch ev := ev.(type) {
		case *tcell.EventKey:
			t.handleKey(ev)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *Terminal) handleKey(ev *tcell.EventKey) {
	var key string
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		key = KeyEscape
	case tcell.KeyRune:
		key = strings.ToLower(string(ev.Rune()))
	default:
		return
	}

	t.mu.Lock()
	cb := t.onKey
	var bound func()
	if r := []rune(key); len(r) == 1 {
		bound = t.bindings[r[0]]
	}
	t.mu.Unlock()

	if bound != nil {
		bound()
		return
	}
	if cb != nil {
		cb(key)
	}
}
