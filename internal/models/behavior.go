// internal/models/behavior.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// State is one named mode of the behavior controller.
type State string

const (
	StateSleep     State = "SLEEP"
	StatePatrol    State = "PATROL"
	StateAngry     State = "ANGRY"
	StateInteract  State = "INTERACT"
	StateSatisfied State = "SATISFIED"
)

// AllStates lists every state in display order.
var AllStates = []State{StateSleep, StatePatrol, StateAngry, StateInteract, StateSatisfied}

// ParseState resolves a state name case-insensitively.
func ParseState(name string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(name)))
	if !IsValidState(s) {
		return "", fmt.Errorf("unknown state %q", name)
	}
	return s, nil
}

// IsValidState reports whether s is one of the known states.
func IsValidState(s State) bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// Trigger names what caused a transition.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerTimeout   Trigger = "timeout"
	TriggerCollision Trigger = "collision"
	TriggerShake     Trigger = "shake"
	TriggerVoice     Trigger = "voice"
	TriggerKey       Trigger = "key"
	TriggerManual    Trigger = "manual"
)

// TransitionRecord is emitted after every completed transition.
type TransitionRecord struct {
	RunID          string        `json:"run_id"`
	Device         string        `json:"device"`
	From           State         `json:"from"`
	To             State         `json:"to"`
	Trigger        Trigger       `json:"trigger"`
	CollisionCount int           `json:"collision_count"`
	TimeInPrevious time.Duration `json:"time_in_previous"`
	At             time.Time     `json:"at"`
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	RunID          string    `json:"run_id"`
	Device         string    `json:"device"`
	State          State     `json:"state"`
	EnteredAt      time.Time `json:"entered_at"`
	CollisionCount int       `json:"collision_count"`
	LastTrigger    Trigger   `json:"last_trigger"`
	Task           string    `json:"task,omitempty"`
	Running        bool      `json:"running"`
}
