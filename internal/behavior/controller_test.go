package behavior

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"sphero-behavior/internal/device"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

type recordingObserver struct {
	mu   sync.Mutex
	recs []models.TransitionRecord
}

func (o *recordingObserver) OnTransition(rec models.TransitionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recs = append(o.recs, rec)
}

func (o *recordingObserver) records() []models.TransitionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.TransitionRecord, len(o.recs))
	copy(out, o.recs)
	return out
}

func (o *recordingObserver) countTo(s models.State) int {
	n := 0
	for _, r := range o.records() {
		if r.To == s {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testTiming() Timing {
	return Timing{
		Tick:            10 * time.Millisecond,
		PatrolInterval:  5 * time.Millisecond,
		PatrolMove:      5 * time.Millisecond,
		SpinDuration:    5 * time.Millisecond,
		SpinPause:       time.Millisecond,
		SleepBreath:     50 * time.Millisecond,
		SatisfiedBreath: 50 * time.Millisecond,
		ErrorBackoff:    5 * time.Millisecond,
		StopTimeout:     500 * time.Millisecond,
		FlashDuration:   10 * time.Millisecond,
	}
}

type harness struct {
	c   *Controller
	sim *device.Simulator
	clk *fakeClock
	obs *recordingObserver
}

// newStarted returns a controller already in SLEEP, driven directly without Run.
func newStarted(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sim: device.NewSimulator(),
		clk: &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		obs: &recordingObserver{},
	}
	h.c = New(Collaborators{Effector: h.sim}, Options{
		Device:    "SB-TEST",
		RunID:     "run-test",
		Timing:    testTiming(),
		Clock:     h.clk.Now,
		Rand:      rand.New(rand.NewPCG(1, 2)),
		Logger:    quietLogger(),
		Observers: []interfaces.TransitionObserver{h.obs},
	})
	if err := h.c.apply(evStart, models.TriggerStartup); err != nil {
		t.Fatalf("startup failed: %v", err)
	}
	t.Cleanup(func() { h.c.shutdown("test cleanup") })
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) mustGoto(t *testing.T, s models.State) {
	t.Helper()
	if err := h.c.gotoState(string(s)); err != nil {
		t.Fatalf("goto %s failed: %v", s, err)
	}
	if h.c.state != s {
		t.Fatalf("Expected state %s, got %s", s, h.c.state)
	}
}

func TestStartupEntersSleep(t *testing.T) {
	h := newStarted(t)

	if h.c.state != models.StateSleep {
		t.Fatalf("Expected SLEEP, got %s", h.c.state)
	}
	snap := h.c.Snapshot()
	if snap.Task != string(TaskBreathing) {
		t.Errorf("Expected breathing task, got '%s'", snap.Task)
	}
	if snap.LastTrigger != models.TriggerStartup {
		t.Errorf("Expected startup trigger, got '%s'", snap.LastTrigger)
	}
	if h.sim.CountCalls(device.MethodRenderMatrix) == 0 {
		t.Error("Expected the sleep expression to be rendered")
	}
	recs := h.obs.records()
	if len(recs) != 1 || recs[0].From != "" || recs[0].To != models.StateSleep {
		t.Errorf("Expected one startup record into SLEEP, got %+v", recs)
	}
}

func TestSameStateRequestKeepsSingleWorker(t *testing.T) {
	wantWorkers := map[models.State]int{
		models.StateSleep:     1,
		models.StatePatrol:    1,
		models.StateAngry:     1,
		models.StateInteract:  0,
		models.StateSatisfied: 1,
	}
	for _, s := range models.AllStates {
		t.Run(string(s), func(t *testing.T) {
			h := newStarted(t)
			h.mustGoto(t, s)
			h.mustGoto(t, s)

			if got := h.c.ActiveWorkers(); got != wantWorkers[s] {
				t.Errorf("Expected %d worker(s) after re-entering %s, got %d", wantWorkers[s], s, got)
			}
		})
	}
}

func TestPatrolEntryResetsCollisionCount(t *testing.T) {
	h := newStarted(t)
	for i := 0; i < 3; i++ {
		h.c.handleCollision()
	}
	if h.c.collisionCount != 3 {
		t.Fatalf("Expected 3 collisions, got %d", h.c.collisionCount)
	}

	h.mustGoto(t, models.StatePatrol)
	if h.c.collisionCount != 0 {
		t.Errorf("Expected collision count reset on PATROL entry, got %d", h.c.collisionCount)
	}
}

func TestFifthCollisionTriggersAngryOnce(t *testing.T) {
	h := newStarted(t)
	h.mustGoto(t, models.StatePatrol)

	for i := 1; i <= 4; i++ {
		h.c.dispatch(Event{Kind: EventCollision})
		if h.c.state != models.StatePatrol {
			t.Fatalf("Left PATROL after %d collisions", i)
		}
	}
	h.c.dispatch(Event{Kind: EventCollision})
	if h.c.state != models.StateAngry {
		t.Fatalf("Expected ANGRY after 5th collision, got %s", h.c.state)
	}
	h.c.dispatch(Event{Kind: EventCollision})

	if n := h.obs.countTo(models.StateAngry); n != 1 {
		t.Errorf("Expected exactly one transition to ANGRY, got %d", n)
	}
	last := h.obs.records()[len(h.obs.records())-1]
	if last.Trigger != models.TriggerCollision || last.CollisionCount != 5 {
		t.Errorf("Unexpected record: %+v", last)
	}
}

func TestCollisionFlashRestoresIndicator(t *testing.T) {
	h := newStarted(t)
	h.mustGoto(t, models.StateInteract)
	h.sim.ResetCalls()

	h.c.handleCollision()
	if got := h.sim.State().Front; got != models.ColorRed {
		t.Fatalf("Expected red flash, got %+v", got)
	}
	if h.sim.CountCalls(device.MethodStopMovement) != 1 {
		t.Error("Expected movement to stop on collision")
	}

	// stale generation is ignored
	h.c.dispatch(Event{Kind: EventFlashDone, flashGen: h.c.flashGen - 1})
	if got := h.sim.State().Front; got != models.ColorRed {
		t.Errorf("Stale flash event restored the indicator: %+v", got)
	}
	h.c.dispatch(Event{Kind: EventFlashDone, flashGen: h.c.flashGen})
	if got := h.sim.State().Front; got != models.ColorOff {
		t.Errorf("Expected neutral indicator (off) after flash, got %+v", got)
	}
}

func TestTimeouts(t *testing.T) {
	tests := []struct {
		state models.State
		limit time.Duration
	}{
		{models.StatePatrol, 60 * time.Second},
		{models.StateAngry, 30 * time.Second},
		{models.StateInteract, 30 * time.Second},
		{models.StateSatisfied, 20 * time.Second},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			h := newStarted(t)
			h.mustGoto(t, tt.state)
			t0 := h.c.startedAt

			h.c.tick(t0.Add(tt.limit - 100*time.Millisecond))
			if h.c.state != tt.state {
				t.Fatalf("Expected %s before the limit, got %s", tt.state, h.c.state)
			}
			h.c.tick(t0.Add(tt.limit + 100*time.Millisecond))
			if h.c.state != models.StateSleep {
				t.Fatalf("Expected SLEEP after the limit, got %s", h.c.state)
			}
			recs := h.obs.records()
			if last := recs[len(recs)-1]; last.Trigger != models.TriggerTimeout {
				t.Errorf("Expected timeout trigger, got %s", last.Trigger)
			}
		})
	}

	t.Run("SLEEP has no timeout", func(t *testing.T) {
		h := newStarted(t)
		h.c.tick(h.c.startedAt.Add(time.Hour))
		if h.c.state != models.StateSleep {
			t.Errorf("Expected SLEEP, got %s", h.c.state)
		}
	})
}

func TestShakeDetection(t *testing.T) {
	tests := []struct {
		name  string
		from  models.State
		pitch float64
		want  models.State
	}{
		{"Sleep shaken", models.StateSleep, 0.5, models.StateSatisfied},
		{"Sleep nudged", models.StateSleep, 0.2, models.StateSleep},
		{"Angry shaken", models.StateAngry, 0.5, models.StateSatisfied},
		{"Patrol ignores shake", models.StatePatrol, 0.5, models.StatePatrol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newStarted(t)
			if tt.from != models.StateSleep {
				h.mustGoto(t, tt.from)
			}
			now := h.clk.Now()

			h.sim.SetOrientation(models.Orientation{})
			h.c.tick(now)
			h.sim.SetOrientation(models.Orientation{Pitch: tt.pitch})
			h.c.tick(now)

			if h.c.state != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, h.c.state)
			}
		})
	}
}

func TestShakeDetectorPrimesOnFirstSample(t *testing.T) {
	d := newShakeDetector(ShakeThreshold)
	if d.observe(models.Orientation{Pitch: 10}) {
		t.Error("First sample must not count as a shake")
	}
	if !d.observe(models.Orientation{Pitch: 10, Roll: 0.4}) {
		t.Error("Expected delta 0.4 to count as a shake")
	}
	if d.observe(models.Orientation{Pitch: 10.1, Roll: 0.4}) {
		t.Error("Expected delta 0.1 not to count as a shake")
	}
}

func TestSensorErrorBacksOff(t *testing.T) {
	h := newStarted(t)
	reads := 0
	h.sim.SetFault(func(method string) error {
		if method == device.MethodOrientation {
			reads++
			return errors.New("sensor offline")
		}
		return nil
	})

	now := h.clk.Now()
	h.c.tick(now)
	h.c.tick(now.Add(time.Millisecond))
	if reads != 1 {
		t.Errorf("Expected a single read during backoff, got %d", reads)
	}
	h.c.tick(now.Add(testTiming().ErrorBackoff + time.Millisecond))
	if reads != 2 {
		t.Errorf("Expected a retry after backoff, got %d reads", reads)
	}
	if h.c.state != models.StateSleep {
		t.Errorf("Sensor errors must not change state, got %s", h.c.state)
	}
}

func TestPatrolPickRatio(t *testing.T) {
	p := newPatrolPolicy(rand.New(rand.NewPCG(42, 7)))
	const picks = 10000
	forward := 0
	for i := 0; i < picks; i++ {
		if p.pick().Forward() {
			forward++
		}
	}
	ratio := float64(forward) / picks
	if ratio < 0.68 || ratio > 0.72 {
		t.Errorf("Expected forward ratio near 0.7, got %.3f", ratio)
	}
}

func TestPatrolSurvivesMovementErrors(t *testing.T) {
	h := newStarted(t)
	h.sim.SetFault(func(method string) error {
		if method == device.MethodSetMovement {
			return errors.New("radio busy")
		}
		return nil
	})
	h.mustGoto(t, models.StatePatrol)

	time.Sleep(30 * time.Millisecond)
	if h.c.ActiveWorkers() != 1 {
		t.Errorf("Expected patrol worker to keep running, got %d workers", h.c.ActiveWorkers())
	}

	h.sim.SetFault(nil)
	time.Sleep(30 * time.Millisecond)
	if h.sim.CountCalls(device.MethodSetMovement) == 0 {
		t.Error("Expected patrol to resume moving after the fault cleared")
	}
}

func TestSensorRecoveryPrimesShake(t *testing.T) {
	h := newStarted(t)
	now := h.clk.Now()
	h.sim.SetOrientation(models.Orientation{})
	h.c.tick(now)

	h.sim.SetFault(func(method string) error {
		if method == device.MethodOrientation {
			return errors.New("sensor offline")
		}
		return nil
	})
	h.c.tick(now.Add(time.Millisecond))

	// 복구 직후 첫 샘플은 기준값만 잡는다
	h.sim.SetFault(nil)
	h.sim.SetOrientation(models.Orientation{Pitch: 5})
	now = now.Add(testTiming().ErrorBackoff + 2*time.Millisecond)
	h.c.tick(now)
	if h.c.state != models.StateSleep {
		t.Fatalf("Expected the first sample after recovery not to count as a shake, got %s", h.c.state)
	}

	h.sim.SetOrientation(models.Orientation{Pitch: 5.5})
	h.c.tick(now.Add(time.Millisecond))
	if h.c.state != models.StateSatisfied {
		t.Errorf("Expected shake detection to resume, got %s", h.c.state)
	}
}

func TestFireLogsFailedEvent(t *testing.T) {
	h := newStarted(t)
	logger, hook := logtest.NewNullLogger()
	h.c.log = logger

	if err := h.c.apply("warp", models.TriggerManual); err == nil {
		t.Fatal("Expected an unknown event to fail")
	}
	if len(hook.Entries) != 0 {
		t.Errorf("apply must leave logging to the caller, got %d entries", len(hook.Entries))
	}

	h.c.fire("warp", models.TriggerManual)
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("Expected fire to log the failure at error level, got %+v", entry)
	}
	if h.c.state != models.StateSleep {
		t.Errorf("Expected state unchanged, got %s", h.c.state)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name     string
		from     models.State
		key      string
		want     models.State
		wantStop bool
	}{
		{"R from INTERACT", models.StateInteract, "R", models.StatePatrol, false},
		{"r from SATISFIED", models.StateSatisfied, "r", models.StatePatrol, false},
		{"r ignored in SLEEP", models.StateSleep, "r", models.StateSleep, false},
		{"S from PATROL", models.StatePatrol, "S", models.StateInteract, false},
		{"s from ANGRY", models.StateAngry, "s", models.StateInteract, false},
		{"Q from INTERACT", models.StateInteract, "Q", models.StateSleep, false},
		{"q ignored in PATROL", models.StatePatrol, "q", models.StatePatrol, false},
		{"X stops", models.StatePatrol, "X", models.StatePatrol, true},
		{"ESC stops", models.StateSleep, "ESC", models.StateSleep, true},
		{"unknown key", models.StateInteract, "z", models.StateInteract, false},
		{"H in INTERACT", models.StateInteract, "H", models.StateInteract, false},
		{"w ignored in SLEEP", models.StateSleep, "w", models.StateSleep, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newStarted(t)
			if tt.from != models.StateSleep {
				h.mustGoto(t, tt.from)
			}
			stop := h.c.dispatch(Event{Kind: EventKeyPress, Key: tt.key})
			if stop != tt.wantStop {
				t.Errorf("Expected stop=%v, got %v", tt.wantStop, stop)
			}
			if h.c.state != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, h.c.state)
			}
		})
	}
}

func TestVoicePhraseRestartsAngry(t *testing.T) {
	h := newStarted(t)
	h.c.dispatch(Event{Kind: EventVoicePhrase, Phrase: "your fault"})
	if h.c.state != models.StateAngry {
		t.Fatalf("Expected ANGRY, got %s", h.c.state)
	}
	first := h.c.startedAt

	h.clk.Advance(10 * time.Second)
	h.c.dispatch(Event{Kind: EventVoicePhrase, Phrase: "your fault"})

	if h.c.state != models.StateAngry {
		t.Fatalf("Expected ANGRY, got %s", h.c.state)
	}
	if !h.c.startedAt.After(first) {
		t.Error("Expected the ANGRY timer to be refreshed")
	}
	if h.c.ActiveWorkers() != 1 {
		t.Errorf("Expected one spin worker, got %d", h.c.ActiveWorkers())
	}
	recs := h.obs.records()
	last := recs[len(recs)-1]
	if last.From != models.StateAngry || last.To != models.StateAngry || last.TimeInPrevious != 10*time.Second {
		t.Errorf("Unexpected restart record: %+v", last)
	}
}

func TestGoto(t *testing.T) {
	t.Run("Lower case name", func(t *testing.T) {
		h := newStarted(t)
		if err := h.c.gotoState("patrol"); err != nil {
			t.Fatalf("Goto failed: %v", err)
		}
		if h.c.state != models.StatePatrol {
			t.Errorf("Expected PATROL, got %s", h.c.state)
		}
	})

	t.Run("Unknown state rejected", func(t *testing.T) {
		h := newStarted(t)
		before := len(h.obs.records())
		err := h.c.gotoState("DANCING")
		if !errors.Is(err, ErrUnknownState) {
			t.Fatalf("Expected ErrUnknownState, got %v", err)
		}
		if h.c.state != models.StateSleep || len(h.obs.records()) != before {
			t.Error("Rejected goto must not change state")
		}
	})
}

func TestRoutines(t *testing.T) {
	t.Run("Rejected outside INTERACT", func(t *testing.T) {
		h := newStarted(t)
		err := h.c.startRoutine("triangle")
		if !errors.Is(err, ErrRoutineNotAllowed) {
			t.Fatalf("Expected ErrRoutineNotAllowed, got %v", err)
		}
		if h.c.task == nil || h.c.task.kind != TaskBreathing {
			t.Error("Rejected routine must not replace the SLEEP worker")
		}
	})

	t.Run("Unknown routine", func(t *testing.T) {
		h := newStarted(t)
		h.mustGoto(t, models.StateInteract)
		if err := h.c.startRoutine("moonwalk"); !errors.Is(err, ErrUnknownRoutine) {
			t.Fatalf("Expected ErrUnknownRoutine, got %v", err)
		}
	})

	t.Run("Stopped on leaving INTERACT", func(t *testing.T) {
		h := newStarted(t)
		h.mustGoto(t, models.StateInteract)
		if err := h.c.startRoutine("Spin"); err != nil {
			t.Fatalf("startRoutine failed: %v", err)
		}
		if h.c.task == nil || h.c.task.kind != TaskRoutine {
			t.Fatal("Expected routine task")
		}

		waitFor(t, func() bool { return h.sim.CountCalls(device.MethodSpin) == 1 })

		h.sim.ResetCalls()
		h.c.dispatch(Event{Kind: EventKeyPress, Key: "q"})
		if h.c.state != models.StateSleep {
			t.Fatalf("Expected SLEEP, got %s", h.c.state)
		}
		calls := h.sim.Calls()
		if len(calls) == 0 || calls[0].Method != device.MethodStopMovement {
			t.Errorf("Expected movement to stop first when the routine is cancelled, got %+v", calls)
		}
		if h.c.ActiveWorkers() != 1 {
			t.Errorf("Expected only the breathing worker, got %d", h.c.ActiveWorkers())
		}
	})
}

func TestRoutineKeys(t *testing.T) {
	h := newStarted(t)
	h.mustGoto(t, models.StateInteract)
	h.sim.ResetCalls()

	h.c.dispatch(Event{Kind: EventKeyPress, Key: "h"})
	if h.c.task == nil || h.c.task.kind != TaskRoutine {
		t.Fatal("Expected h to start the heartbeat routine")
	}
	waitFor(t, func() bool { return h.sim.CountCalls(device.MethodSetIndicator) > 3 })

	// 이전 루틴의 LED 를 지우고 새 루틴 시작
	h.c.dispatch(Event{Kind: EventKeyPress, Key: "w"})
	if got := h.sim.State().Front; got != models.ColorOff {
		t.Errorf("Expected the heartbeat LED cleared before the wave, got %+v", got)
	}
	waitFor(t, func() bool { return h.sim.CountCalls(device.MethodRenderMatrix) > 2 })
	if h.c.ActiveWorkers() != 1 {
		t.Errorf("Expected a single routine worker, got %d", h.c.ActiveWorkers())
	}
}

func TestLeaseRevokedAfterCancel(t *testing.T) {
	sim := device.NewSimulator()
	bus := &effectorBus{eff: sim}
	ctx, cancel := context.WithCancel(context.Background())
	l := bus.lease(ctx)

	if err := l.SetMovement(0, 30, time.Second); err != nil {
		t.Fatalf("Live lease failed: %v", err)
	}
	cancel()
	if err := l.SetMovement(0, 30, time.Second); !errors.Is(err, ErrLeaseRevoked) {
		t.Errorf("Expected ErrLeaseRevoked, got %v", err)
	}
	if _, err := l.GetOrientation(); !errors.Is(err, ErrLeaseRevoked) {
		t.Errorf("Expected ErrLeaseRevoked on read, got %v", err)
	}
	if n := sim.CountCalls(device.MethodSetMovement); n != 1 {
		t.Errorf("Expected one command to reach the device, got %d", n)
	}
}

func TestBreathLevels(t *testing.T) {
	levels := breathLevels()
	if len(levels) != 52 {
		t.Fatalf("Expected 52 steps, got %d", len(levels))
	}
	if levels[0] != 0 || levels[25] != 250 || levels[26] != 255 || levels[51] != 5 {
		t.Errorf("Unexpected ramp endpoints: %v", levels)
	}
}
