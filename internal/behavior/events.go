// internal/behavior/events.go
package behavior

// EventKind enumerates every stimulus the control loop consumes.
type EventKind int

const (
	EventTick EventKind = iota
	EventCollision
	EventShake
	EventVoicePhrase
	EventKeyPress
	EventFlashDone
	EventGoto
	EventRunRoutine
	EventShutdown
	EventTimeout
)

var eventNames = map[EventKind]string{
	EventTick:        "tick",
	EventCollision:   "collision",
	EventShake:       "shake",
	EventVoicePhrase: "voice_phrase",
	EventKeyPress:    "key_press",
	EventFlashDone:   "flash_done",
	EventGoto:        "goto",
	EventRunRoutine:  "run_routine",
	EventShutdown:    "shutdown",
	EventTimeout:     "timeout",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event is one message on the controller's queue. Only the fields relevant to
// Kind are set. Reply, when non-nil, receives the outcome of Goto and
// RunRoutine requests.
type Event struct {
	Kind    EventKind
	Key     string
	Phrase  string
	State   string
	Routine string
	Reason  string
	Reply   chan error

	flashGen uint64
}

func (e Event) reply(err error) {
	if e.Reply == nil {
		return
	}
	select {
	case e.Reply <- err:
	default:
	}
}
