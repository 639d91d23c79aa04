// internal/behavior/errors.go
package behavior

import "errors"

var (
	// ErrUnknownState rejects a Goto request naming no known state.
	ErrUnknownState = errors.New("unknown state")
	// ErrUnknownRoutine rejects a routine request naming no registered routine.
	ErrUnknownRoutine = errors.New("unknown routine")
	// ErrRoutineNotAllowed rejects a routine request outside INTERACT.
	ErrRoutineNotAllowed = errors.New("routine not allowed in current state")
	// ErrLeaseRevoked is returned to a worker whose task has been stopped.
	ErrLeaseRevoked = errors.New("effector lease revoked")
	// ErrStopped is returned for requests made after the controller shut down.
	ErrStopped = errors.New("controller stopped")
	// ErrEventDropped is returned when the event queue stays full past the post timeout.
	ErrEventDropped = errors.New("event queue full")
)
