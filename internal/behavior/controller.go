// internal/behavior/controller.go
package behavior

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sphero-behavior/internal/expression"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
	"sphero-behavior/internal/routine"

	"github.com/looplab/fsm"
)

// stateInit is the FSM's state before the startup transition into SLEEP.
const stateInit = "INIT"

// FSM event names.
const (
	evStart          = "start"
	evTimeout        = "timeout"
	evCollisionLimit = "collision_limit"
	evShake          = "shake"
	evVoice          = "voice_phrase"
	evKeyPatrol      = "key_patrol"
	evKeyInteract    = "key_interact"
	evKeySleep       = "key_sleep"
	evGotoPrefix     = "goto_"
)

const eventQueueSize = 64

// keyRoutines maps INTERACT keys to the routine they start.
var keyRoutines = map[string]string{
	"h": "heartbeat",
	"w": "wave",
}

// Controller is the behavior state machine. One goroutine (Run) owns all
// mutable state; every external stimulus is posted to its event queue.
type Controller struct {
	device    string
	runID     string
	timing    Timing
	clock     func() time.Time
	log       interfaces.Logger
	sounder   interfaces.Sounder
	observers []interfaces.TransitionObserver
	policy    *patrolPolicy

	bus        *effectorBus
	direct     interfaces.Effector
	conn       interfaces.Connection
	collisions interfaces.CollisionSource
	voice      interfaces.VoiceSource
	keys       interfaces.KeySource

	fsm *fsm.FSM

	// owned by the control goroutine
	state          models.State
	startedAt      time.Time
	collisionCount int
	lastTrigger    models.Trigger
	task           *task
	shake          *shakeDetector
	pickup         *pickupDetector
	sensorRetryAt  time.Time
	sensorFailed   bool
	flashGen       uint64
	flashTimer     *time.Timer
	stopReason     string

	baseCtx    context.Context
	baseCancel context.CancelFunc
	workers    atomic.Int32

	snapMu sync.RWMutex
	snap   models.Snapshot

	events    chan Event
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	started   atomic.Bool
}

// New builds a controller in its pre-start state. Call Run to connect and
// enter SLEEP.
func New(collab Collaborators, opts Options) *Controller {
	opts = opts.withDefaults()
	baseCtx, baseCancel := context.WithCancel(context.Background())

	bus := &effectorBus{eff: collab.Effector}
	c := &Controller{
		device:     opts.Device,
		runID:      opts.RunID,
		timing:     opts.Timing,
		clock:      opts.Clock,
		log:        opts.Logger,
		sounder:    opts.Sounder,
		observers:  opts.Observers,
		policy:     newPatrolPolicy(opts.Rand),
		bus:        bus,
		direct:     bus.lease(context.Background()),
		conn:       collab.Connection,
		collisions: collab.Collisions,
		voice:      collab.Voice,
		keys:       collab.Keys,
		state:      stateInit,
		shake:      newShakeDetector(ShakeThreshold),
		pickup:     newPickupDetector(PickupThreshold, opts.Timing.PickupInterval),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		events:     make(chan Event, eventQueueSize),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.snap = models.Snapshot{RunID: c.runID, Device: c.device}
	c.initializeFSM()
	return c
}

func (c *Controller) initializeFSM() {
	all := make([]string, 0, len(models.AllStates))
	for _, s := range models.AllStates {
		all = append(all, string(s))
	}
	sleep := string(models.StateSleep)
	patrol := string(models.StatePatrol)
	angry := string(models.StateAngry)
	interact := string(models.StateInteract)
	satisfied := string(models.StateSatisfied)

	events := fsm.Events{
		{Name: evStart, Src: []string{stateInit}, Dst: sleep},
		{Name: evTimeout, Src: []string{patrol, angry, interact, satisfied}, Dst: sleep},
		{Name: evCollisionLimit, Src: []string{patrol}, Dst: angry},
		{Name: evShake, Src: []string{sleep, angry}, Dst: satisfied},
		{Name: evVoice, Src: all, Dst: angry},
		{Name: evKeyPatrol, Src: []string{interact, satisfied}, Dst: patrol},
		{Name: evKeyInteract, Src: []string{patrol, angry, satisfied}, Dst: interact},
		{Name: evKeySleep, Src: []string{interact}, Dst: sleep},
	}
	for _, s := range all {
		events = append(events, fsm.EventDesc{Name: evGotoPrefix + s, Src: all, Dst: s})
	}

	c.fsm = fsm.NewFSM(stateInit, events, fsm.Callbacks{
		"leave_state": func(_ context.Context, e *fsm.Event) {
			c.exitState(models.State(e.Src))
		},
		"enter_state": func(_ context.Context, e *fsm.Event) {
			trigger := models.TriggerManual
			if len(e.Args) > 0 {
				if t, ok := e.Args[0].(models.Trigger); ok {
					trigger = t
				}
			}
			c.enterState(models.State(e.Dst), trigger, models.State(e.Src))
		},
	})
}

// apply runs an FSM event. A request for the current state restarts it; an
// event not legal from the current state is ignored.
func (c *Controller) apply(event string, trigger models.Trigger) error {
	err := c.fsm.Event(c.baseCtx, event, trigger)
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	var invalid fsm.InvalidEventError
	switch {
	case errors.As(err, &noTransition):
		c.restart(trigger)
		return nil
	case errors.As(err, &invalid):
		c.log.Debugf("%s ignored in %s", event, c.state)
		return nil
	default:
		return fmt.Errorf("event %s in %s: %w", event, c.state, err)
	}
}

// fire is apply for stimuli with no caller waiting on the result.
func (c *Controller) fire(event string, trigger models.Trigger) {
	if err := c.apply(event, trigger); err != nil {
		c.log.Errorf("❌ %v", err)
	}
}

// restart stops and re-enters the current state.
func (c *Controller) restart(trigger models.Trigger) {
	s := c.state
	c.exitState(s)
	c.enterState(s, trigger, s)
}

func (c *Controller) exitState(s models.State) {
	hadRoutine := c.task != nil && c.task.kind == TaskRoutine
	c.stopTask()
	if s == models.StatePatrol || s == models.StateAngry || hadRoutine {
		if err := c.direct.StopMovement(); err != nil {
			c.log.Warnf("⚠️ Stop movement on leaving %s failed: %v", s, err)
		}
	}
}

func (c *Controller) enterState(dst models.State, trigger models.Trigger, src models.State) {
	now := c.clock()
	var inPrevious time.Duration
	if !c.startedAt.IsZero() {
		inPrevious = now.Sub(c.startedAt)
	}

	c.state = dst
	c.startedAt = now
	c.lastTrigger = trigger
	if dst == models.StatePatrol {
		c.collisionCount = 0
	}

	c.startBehavior(dst)
	if c.sounder != nil {
		c.sounder.PlayCue(dst)
	}
	c.updateSnapshot()

	if src == stateInit {
		src = ""
	}
	c.log.Infof("🔄 %s -> %s (%s)", displayState(src), dst, trigger)

	rec := models.TransitionRecord{
		RunID:          c.runID,
		Device:         c.device,
		From:           src,
		To:             dst,
		Trigger:        trigger,
		CollisionCount: c.collisionCount,
		TimeInPrevious: inPrevious,
		At:             now,
	}
	for _, o := range c.observers {
		o.OnTransition(rec)
	}
}

func displayState(s models.State) string {
	if s == "" {
		return "START"
	}
	return string(s)
}

// startBehavior renders the state's expression and starts its worker.
func (c *Controller) startBehavior(s models.State) {
	switch s {
	case models.StateSleep:
		c.show(expression.Sleep)
		c.startTask(TaskBreathing, func(ctx context.Context, eff interfaces.Effector) {
			c.breathe(ctx, eff, models.ColorWhite, c.timing.SleepBreath)
		})
	case models.StatePatrol:
		c.show(expression.Wave)
		c.startTask(TaskPatrol, c.patrol)
	case models.StateAngry:
		c.show(expression.Angry)
		c.startTask(TaskSpin, c.spinLoop)
	case models.StateInteract:
		c.stopMovement()
		c.show(expression.Neutral)
		c.pickup = newPickupDetector(PickupThreshold, c.timing.PickupInterval)
	case models.StateSatisfied:
		c.stopMovement()
		c.show(expression.Smile)
		c.startTask(TaskBreathing, func(ctx context.Context, eff interfaces.Effector) {
			c.breathe(ctx, eff, models.ColorWarm, c.timing.SatisfiedBreath)
		})
	}
}

func (c *Controller) show(name expression.Name) {
	if err := expression.Show(c.direct, name); err != nil {
		c.log.Warnf("⚠️ Show %s failed: %v", name, err)
	}
}

func (c *Controller) stopMovement() {
	if err := c.direct.StopMovement(); err != nil {
		c.log.Warnf("⚠️ Stop movement failed: %v", err)
	}
}

// dispatch handles one event on the control goroutine. It reports whether
// the controller should shut down.
func (c *Controller) dispatch(ev Event) bool {
	switch ev.Kind {
	case EventTick:
		c.tick(c.clock())
	case EventTimeout:
		c.fire(evTimeout, models.TriggerTimeout)
	case EventCollision:
		c.handleCollision()
	case EventShake:
		c.fire(evShake, models.TriggerShake)
	case EventVoicePhrase:
		c.log.Infof("🗣️ Trigger phrase heard: %q", ev.Phrase)
		c.fire(evVoice, models.TriggerVoice)
	case EventKeyPress:
		return c.handleKey(ev.Key)
	case EventFlashDone:
		if ev.flashGen == c.flashGen {
			c.restoreIndicator()
		}
	case EventGoto:
		ev.reply(c.gotoState(ev.State))
	case EventRunRoutine:
		ev.reply(c.startRoutine(ev.Routine))
	case EventShutdown:
		c.stopReason = ev.Reason
		return true
	default:
		c.log.Warnf("⚠️ Unhandled event %s", ev.Kind)
	}
	return false
}

// tick evaluates the timeout, shake and pickup rules at now.
func (c *Controller) tick(now time.Time) {
	if limit, ok := c.timing.timeout(c.state); ok && now.Sub(c.startedAt) >= limit {
		c.dispatch(Event{Kind: EventTimeout})
	}
	if c.pollOrientation(now) {
		c.dispatch(Event{Kind: EventShake})
	}
}

// pollOrientation samples attitude and reports a shake in SLEEP or ANGRY.
// Sensor errors back off before the next sample; the first sample after a
// failure only primes the detectors.
func (c *Controller) pollOrientation(now time.Time) bool {
	if now.Before(c.sensorRetryAt) {
		return false
	}
	o, err := c.direct.GetOrientation()
	if err != nil {
		c.log.Warnf("⚠️ Orientation read failed: %v", err)
		c.sensorRetryAt = now.Add(c.timing.ErrorBackoff)
		c.sensorFailed = true
		return false
	}
	if c.sensorFailed {
		c.log.Infof("Orientation sensor recovered")
		c.sensorFailed = false
		c.shake.reset()
		c.pickup.reset()
	}
	c.checkPickup(o, now)
	shook := c.shake.observe(o)
	return shook && (c.state == models.StateSleep || c.state == models.StateAngry)
}

// checkPickup shows the angry face while the robot is held in an idle INTERACT.
func (c *Controller) checkPickup(o models.Orientation, now time.Time) {
	held, changed := c.pickup.observe(o, now)
	if !changed || c.state != models.StateInteract || c.task.running() {
		return
	}
	if held {
		c.log.Infof("🤲 Picked up")
		c.show(expression.Angry)
		return
	}
	c.log.Infof("Put down")
	c.show(expression.Neutral)
}

func (c *Controller) handleCollision() {
	c.collisionCount++
	c.log.Infof("💥 Collision #%d in %s", c.collisionCount, c.state)
	c.stopMovement()
	c.flash()
	c.updateSnapshot()

	if c.state == models.StatePatrol && c.collisionCount >= MaxCollisions {
		c.fire(evCollisionLimit, models.TriggerCollision)
	}
}

// flash turns the front indicator red and schedules its restore.
func (c *Controller) flash() {
	if err := c.direct.SetIndicatorColor(models.IndicatorFront, models.ColorRed); err != nil {
		c.log.Warnf("⚠️ Collision flash failed: %v", err)
	}
	c.flashGen++
	gen := c.flashGen
	if c.flashTimer != nil {
		c.flashTimer.Stop()
	}
	c.flashTimer = time.AfterFunc(c.timing.FlashDuration, func() {
		_ = c.post(Event{Kind: EventFlashDone, flashGen: gen})
	})
}

func (c *Controller) restoreIndicator() {
	e, err := expression.Lookup(expression.ForState(c.state))
	if err != nil {
		return
	}
	if err := c.direct.SetIndicatorColor(models.IndicatorFront, e.Indicator); err != nil {
		c.log.Warnf("⚠️ Indicator restore failed: %v", err)
	}
}

// handleKey maps a key press to a transition. It reports whether the key
// requested shutdown.
func (c *Controller) handleKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch k {
	case "r":
		c.fire(evKeyPatrol, models.TriggerKey)
	case "s":
		c.fire(evKeyInteract, models.TriggerKey)
	case "q":
		c.fire(evKeySleep, models.TriggerKey)
	case "x", "esc", "escape":
		c.stopReason = "key " + k
		return true
	default:
		name, ok := keyRoutines[k]
		if !ok {
			c.log.Debugf("Unrecognized key %q", key)
			break
		}
		if err := c.startRoutine(name); err != nil {
			c.log.Infof("Key %s ignored: %v", k, err)
		}
	}
	return false
}

func (c *Controller) gotoState(name string) error {
	s, err := models.ParseState(name)
	if err != nil {
		c.log.Warnf("⚠️ Goto rejected: %v", err)
		return fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	if err := c.apply(evGotoPrefix+string(s), models.TriggerManual); err != nil {
		c.log.Errorf("❌ Goto %s failed: %v", s, err)
		return err
	}
	return nil
}

// startRoutine runs a scripted routine as INTERACT's background task.
func (c *Controller) startRoutine(name string) error {
	r, ok := routine.Lookup(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return fmt.Errorf("%w: %q (available: %v)", ErrUnknownRoutine, name, routine.Names())
	}
	if c.state != models.StateInteract {
		return fmt.Errorf("%w: %s", ErrRoutineNotAllowed, c.state)
	}

	// a routine counts as interaction and refreshes the INTERACT timer
	c.startedAt = c.clock()
	if c.task != nil && c.task.kind == TaskRoutine {
		c.stopTask()
		c.stopMovement()
		c.show(expression.Neutral)
	}
	c.startTask(TaskRoutine, func(ctx context.Context, eff interfaces.Effector) {
		c.log.Infof("🤖 Routine %s started (%s)", r.Name, r.Duration())
		err := routine.Run(ctx, eff, r)
		switch {
		case routine.IsCancelled(err), errors.Is(err, ErrLeaseRevoked):
			c.log.Infof("Routine %s cancelled", r.Name)
			return
		case err != nil:
			c.log.Warnf("⚠️ Routine %s failed: %v", r.Name, err)
		default:
			c.log.Infof("✅ Routine %s finished", r.Name)
		}
		if err := eff.StopMovement(); err != nil && !errors.Is(err, ErrLeaseRevoked) {
			c.log.Warnf("⚠️ Stop after routine %s failed: %v", r.Name, err)
		}
		if err := expression.Show(eff, expression.Neutral); err != nil && !errors.Is(err, ErrLeaseRevoked) {
			c.log.Warnf("⚠️ Face restore after routine %s failed: %v", r.Name, err)
		}
	})
	c.updateSnapshot()
	return nil
}

func (c *Controller) updateSnapshot() {
	var kind string
	if c.task != nil {
		kind = string(c.task.kind)
	}
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	c.snap.State = c.state
	c.snap.EnteredAt = c.startedAt
	c.snap.CollisionCount = c.collisionCount
	c.snap.LastTrigger = c.lastTrigger
	c.snap.Task = kind
}

func (c *Controller) setRunning(running bool) {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	c.snap.Running = running
}
