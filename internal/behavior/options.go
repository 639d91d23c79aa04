// internal/behavior/options.go
package behavior

import (
	"math/rand/v2"
	"time"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/utils"
)

// MaxCollisions is the collision count that turns PATROL into ANGRY.
const MaxCollisions = 5

// Timing holds every duration the controller uses. Zero fields take the default.
type Timing struct {
	Tick             time.Duration
	PatrolTimeout    time.Duration
	AngryTimeout     time.Duration
	InteractTimeout  time.Duration
	SatisfiedTimeout time.Duration

	PatrolInterval  time.Duration
	PatrolMove      time.Duration
	SpinDuration    time.Duration
	SpinPause       time.Duration
	SleepBreath     time.Duration
	SatisfiedBreath time.Duration

	ErrorBackoff   time.Duration
	StopTimeout    time.Duration
	FlashDuration  time.Duration
	PostTimeout    time.Duration
	PickupInterval time.Duration
}

// DefaultTiming returns the production timings.
func DefaultTiming() Timing {
	return Timing{
		Tick:             100 * time.Millisecond,
		PatrolTimeout:    60 * time.Second,
		AngryTimeout:     30 * time.Second,
		InteractTimeout:  30 * time.Second,
		SatisfiedTimeout: 20 * time.Second,

		PatrolInterval:  2500 * time.Millisecond,
		PatrolMove:      2 * time.Second,
		SpinDuration:    2 * time.Second,
		SpinPause:       500 * time.Millisecond,
		SleepBreath:     time.Second,
		SatisfiedBreath: 800 * time.Millisecond,

		ErrorBackoff:   500 * time.Millisecond,
		StopTimeout:    1500 * time.Millisecond,
		FlashDuration:  500 * time.Millisecond,
		PostTimeout:    time.Second,
		PickupInterval: 200 * time.Millisecond,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&t.Tick, d.Tick)
	fill(&t.PatrolTimeout, d.PatrolTimeout)
	fill(&t.AngryTimeout, d.AngryTimeout)
	fill(&t.InteractTimeout, d.InteractTimeout)
	fill(&t.SatisfiedTimeout, d.SatisfiedTimeout)
	fill(&t.PatrolInterval, d.PatrolInterval)
	fill(&t.PatrolMove, d.PatrolMove)
	fill(&t.SpinDuration, d.SpinDuration)
	fill(&t.SpinPause, d.SpinPause)
	fill(&t.SleepBreath, d.SleepBreath)
	fill(&t.SatisfiedBreath, d.SatisfiedBreath)
	fill(&t.ErrorBackoff, d.ErrorBackoff)
	fill(&t.StopTimeout, d.StopTimeout)
	fill(&t.FlashDuration, d.FlashDuration)
	fill(&t.PostTimeout, d.PostTimeout)
	fill(&t.PickupInterval, d.PickupInterval)
	return t
}

// timeout returns how long state may last before falling back to SLEEP.
func (t Timing) timeout(s models.State) (time.Duration, bool) {
	switch s {
	case models.StatePatrol:
		return t.PatrolTimeout, true
	case models.StateAngry:
		return t.AngryTimeout, true
	case models.StateInteract:
		return t.InteractTimeout, true
	case models.StateSatisfied:
		return t.SatisfiedTimeout, true
	}
	return 0, false
}

// Collaborators are the hardware and input ports. Only Effector is required.
type Collaborators struct {
	Effector   interfaces.Effector
	Connection interfaces.Connection
	Collisions interfaces.CollisionSource
	Voice      interfaces.VoiceSource
	Keys       interfaces.KeySource
}

// Options configures a Controller.
type Options struct {
	Device    string
	RunID     string
	Timing    Timing
	Clock     func() time.Time
	Rand      *rand.Rand
	Logger    interfaces.Logger
	Sounder   interfaces.Sounder
	Observers []interfaces.TransitionObserver
}

func (o Options) withDefaults() Options {
	o.Timing = o.Timing.withDefaults()
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.Logger == nil {
		o.Logger = utils.Logger
	}
	return o
}
