// internal/device/simulator.go
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"sphero-behavior/internal/models"
)

// Effector method names as recorded in the call log.
const (
	MethodSetMovement  = "SetMovement"
	MethodStopMovement = "StopMovement"
	MethodSpin         = "Spin"
	MethodSetHeading   = "SetHeading"
	MethodSetIndicator = "SetIndicatorColor"
	MethodRenderMatrix = "RenderMatrix"
	MethodClearMatrix  = "ClearMatrix"
	MethodOrientation  = "GetOrientation"
	MethodConnect      = "Connect"
	MethodDisconnect   = "Disconnect"
)

const maxCalls = 4096

// ErrNotConnected is returned by device calls made outside Connect/Disconnect.
var ErrNotConnected = errors.New("device not connected")

// Call is one recorded effector command.
type Call struct {
	Method    string
	Heading   int
	Speed     int
	Degrees   int
	Duration  time.Duration
	Indicator models.Indicator
	Color     models.Color
	At        time.Time
}

// SimState is the simulated robot's visible state.
type SimState struct {
	Connected   bool
	Heading     int
	Speed       int
	Spinning    bool
	Front       models.Color
	Back        models.Color
	Matrix      models.Matrix
	Orientation models.Orientation
}

// Simulator is an in-memory robot. It implements Effector, Connection and
// CollisionSource, records every command, and can inject faults.
type Simulator struct {
	mu          sync.Mutex
	state       SimState
	calls       []Call
	fault       func(method string) error
	onCollision func()
	onChange    func(SimState)
	requireLink bool
}

// NewSimulator returns a disconnected simulator. Commands are accepted before
// Connect unless RequireConnection is set.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// RequireConnection makes every command fail with ErrNotConnected while disconnected.
func (s *Simulator) RequireConnection(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireLink = on
}

// SetFault installs a hook consulted before each call; a non-nil error fails the call.
func (s *Simulator) SetFault(fn func(method string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// OnChange registers a hook invoked with the new state after each command.
func (s *Simulator) OnChange(fn func(SimState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// checkFault runs the fault hook outside the lock so a panicking hook
// leaves the simulator usable.
func (s *Simulator) checkFault(method string) error {
	s.mu.Lock()
	fault := s.fault
	s.mu.Unlock()
	if fault == nil {
		return nil
	}
	return fault(method)
}

// apply checks faults, runs mutate under the lock and records the call.
func (s *Simulator) apply(c Call, mutate func(*SimState)) error {
	if err := s.checkFault(c.Method); err != nil {
		return err
	}
	s.mu.Lock()
	if s.requireLink && !s.state.Connected && c.Method != MethodConnect {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if mutate != nil {
		mutate(&s.state)
	}
	c.At = time.Now()
	s.calls = append(s.calls, c)
	if len(s.calls) > maxCalls {
		s.calls = append(s.calls[:0:0], s.calls[len(s.calls)-maxCalls:]...)
	}
	hook, snap := s.onChange, s.state
	s.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	return nil
}

func (s *Simulator) SetMovement(heading, speed int, duration time.Duration) error {
	return s.apply(Call{Method: MethodSetMovement, Heading: heading, Speed: speed, Duration: duration}, func(st *SimState) {
		st.Heading = normalizeHeading(heading)
		st.Speed = speed
		st.Spinning = false
	})
}

func (s *Simulator) StopMovement() error {
	return s.apply(Call{Method: MethodStopMovement}, func(st *SimState) {
		st.Speed = 0
		st.Spinning = false
	})
}

func (s *Simulator) Spin(degrees int, duration time.Duration) error {
	return s.apply(Call{Method: MethodSpin, Degrees: degrees, Duration: duration}, func(st *SimState) {
		st.Heading = normalizeHeading(st.Heading + degrees)
		st.Spinning = true
	})
}

func (s *Simulator) SetHeading(heading int) error {
	return s.apply(Call{Method: MethodSetHeading, Heading: heading}, func(st *SimState) {
		st.Heading = normalizeHeading(heading)
	})
}

func (s *Simulator) SetIndicatorColor(which models.Indicator, color models.Color) error {
	return s.apply(Call{Method: MethodSetIndicator, Indicator: which, Color: color}, func(st *SimState) {
		if which == models.IndicatorBack {
			st.Back = color
		} else {
			st.Front = color
		}
	})
}

func (s *Simulator) RenderMatrix(matrix models.Matrix) error {
	return s.apply(Call{Method: MethodRenderMatrix}, func(st *SimState) {
		st.Matrix = matrix
	})
}

func (s *Simulator) ClearMatrix() error {
	return s.apply(Call{Method: MethodClearMatrix}, func(st *SimState) {
		st.Matrix = models.Matrix{}
	})
}

// GetOrientation is not recorded in the call log; it is polled every tick.
func (s *Simulator) GetOrientation() (models.Orientation, error) {
	if err := s.checkFault(MethodOrientation); err != nil {
		return models.Orientation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requireLink && !s.state.Connected {
		return models.Orientation{}, ErrNotConnected
	}
	return s.state.Orientation, nil
}

func (s *Simulator) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply(Call{Method: MethodConnect}, func(st *SimState) {
		st.Connected = true
	})
}

func (s *Simulator) Disconnect() error {
	return s.apply(Call{Method: MethodDisconnect}, func(st *SimState) {
		st.Connected = false
		st.Speed = 0
		st.Spinning = false
	})
}

// OnCollision registers the impact callback.
func (s *Simulator) OnCollision(callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCollision = callback
}

// Collide simulates an impact; the callback runs on its own goroutine.
func (s *Simulator) Collide() {
	s.mu.Lock()
	cb := s.onCollision
	s.state.Speed = 0
	s.mu.Unlock()
	if cb != nil {
		go cb()
	}
}

// SetOrientation overwrites the attitude reported by GetOrientation.
func (s *Simulator) SetOrientation(o models.Orientation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Orientation = o
}

// Jolt nudges pitch and roll, as if the robot were picked up and shaken.
func (s *Simulator) Jolt(pitch, roll float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Orientation.Pitch += pitch
	s.state.Orientation.Roll += roll
}

// State returns a copy of the simulated state.
func (s *Simulator) State() SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Calls returns a copy of the recorded command log.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the command log.
func (s *Simulator) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// CountCalls returns how many times method was recorded.
func (s *Simulator) CountCalls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func normalizeHeading(h int) int {
	h %= 360
	if h < 0 {
		h += 360
	}
	return h
}
