package behavior

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sphero-behavior/internal/config"
	"sphero-behavior/internal/device"
	"sphero-behavior/internal/messaging"
	"sphero-behavior/internal/models"
)

type fakeKeys struct {
	onKey   func(string)
	stopped bool
}

func (k *fakeKeys) StartListening(onKeyDown func(key string)) error {
	k.onKey = onKeyDown
	return nil
}

func (k *fakeKeys) StopListening() { k.stopped = true }

func newRunController(sim *device.Simulator, keys *fakeKeys) *Controller {
	collab := Collaborators{Effector: sim, Connection: sim, Collisions: sim}
	if keys != nil {
		collab.Keys = keys
	}
	return New(collab, Options{
		Device: "SB-TEST",
		RunID:  "run-test",
		Timing: testTiming(),
		Logger: quietLogger(),
	})
}

func startRun(t *testing.T, c *Controller) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	waitFor(t, func() bool { return c.State() == models.StateSleep })
	return errCh
}

func TestRunLifecycle(t *testing.T) {
	sim := device.NewSimulator()
	keys := &fakeKeys{}
	c := newRunController(sim, keys)
	errCh := startRun(t, c)

	if !sim.State().Connected {
		t.Fatal("Expected the device to be connected")
	}
	if !c.Snapshot().Running {
		t.Error("Expected snapshot to report running")
	}

	sim.Collide()
	waitFor(t, func() bool { return c.Snapshot().CollisionCount == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Goto(ctx, "interact"); err != nil {
		t.Fatalf("Goto failed: %v", err)
	}
	if err := c.RunRoutine(ctx, "triangle"); err != nil {
		t.Fatalf("RunRoutine failed: %v", err)
	}
	if err := c.Goto(ctx, "flying"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("Expected ErrUnknownState, got %v", err)
	}

	keys.onKey("x")
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after 'x'")
	}

	if got := c.StopReason(); got != "key x" {
		t.Errorf("Expected stop reason 'key x', got '%s'", got)
	}
	if sim.State().Connected {
		t.Error("Expected the device to be disconnected")
	}
	if !keys.stopped {
		t.Error("Expected the key source to be stopped")
	}
	if c.ActiveWorkers() != 0 {
		t.Errorf("Expected no workers after shutdown, got %d", c.ActiveWorkers())
	}
	if err := c.Goto(ctx, "sleep"); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after shutdown, got %v", err)
	}
}

func TestRunConnectFailure(t *testing.T) {
	sim := device.NewSimulator()
	sim.SetFault(func(method string) error {
		if method == device.MethodConnect {
			return errors.New("device not found")
		}
		return nil
	})
	c := newRunController(sim, nil)

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Expected connect error")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Expected Done to be closed after a failed run")
	}
	if sim.CountCalls(device.MethodRenderMatrix) != 0 {
		t.Error("State machine must not start when connect fails")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sim := device.NewSimulator()
	c := newRunController(sim, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	waitFor(t, func() bool { return c.State() == models.StateSleep })

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
	if c.StopReason() != "context cancelled" {
		t.Errorf("Unexpected stop reason '%s'", c.StopReason())
	}
}

func TestShutdownFinalCalls(t *testing.T) {
	want := []device.Call{
		{Method: device.MethodStopMovement},
		{Method: device.MethodClearMatrix},
		{Method: device.MethodSetIndicator, Indicator: models.IndicatorFront, Color: models.ColorOff},
		{Method: device.MethodSetIndicator, Indicator: models.IndicatorBack, Color: models.ColorOff},
		{Method: device.MethodSetHeading, Heading: 0},
	}
	for _, s := range models.AllStates {
		for _, faulty := range []bool{false, true} {
			name := string(s)
			if faulty {
				name += " with fault"
			}
			t.Run(name, func(t *testing.T) {
				h := newStarted(t)
				if faulty {
					h.sim.SetFault(func(method string) error {
						switch method {
						case device.MethodSetMovement, device.MethodSpin, device.MethodSetIndicator:
							return errors.New("actuator fault")
						}
						return nil
					})
				}
				h.mustGoto(t, s)
				time.Sleep(15 * time.Millisecond)
				h.sim.SetFault(nil)

				h.c.shutdown("test")

				calls := h.sim.Calls()
				if len(calls) < len(want) {
					t.Fatalf("Expected at least %d calls, got %d", len(want), len(calls))
				}
				tail := calls[len(calls)-len(want):]
				for i, w := range want {
					got := tail[i]
					if got.Method != w.Method || got.Indicator != w.Indicator || got.Color != w.Color || got.Heading != w.Heading {
						t.Errorf("Call %d: expected %+v, got %+v", i, w, got)
					}
				}
				if h.c.ActiveWorkers() != 0 {
					t.Errorf("Expected no workers after shutdown, got %d", h.c.ActiveWorkers())
				}
			})
		}
	}
}

func TestShutdownStepsAreIndependent(t *testing.T) {
	h := newStarted(t)
	h.mustGoto(t, models.StatePatrol)
	h.sim.SetFault(func(method string) error {
		switch method {
		case device.MethodStopMovement:
			return errors.New("stop failed")
		case device.MethodClearMatrix:
			panic("matrix driver crashed")
		}
		return nil
	})

	h.c.shutdown("test")

	st := h.sim.State()
	if st.Front != models.ColorOff || st.Back != models.ColorOff {
		t.Errorf("Expected indicators off, got %+v / %+v", st.Front, st.Back)
	}
	if h.sim.CountCalls(device.MethodSetHeading) == 0 {
		t.Error("Expected heading reset despite earlier failures")
	}
}

func TestShutdownWithStuckBroker(t *testing.T) {
	cfg := &config.Config{
		DeviceName:         "SB-TEST",
		MQTTTopicPrefix:    "sphero",
		ConnectTimeout:     time.Second,
		MQTTPublishTimeout: 50 * time.Millisecond,
	}
	pub := messaging.NewMockPublisher()
	router := messaging.NewRouter()
	gw := device.NewGateway(cfg, pub, router)
	if err := messaging.NewSubscriber(pub, router).SubscribeAll(); err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}
	pub.OnPublish(func(p messaging.Published) {
		var cmd device.Command
		if json.Unmarshal(p.Payload, &cmd) == nil && cmd.Type == device.CmdConnect {
			go pub.Deliver("sphero/SB-TEST/connection", []byte(`{"state":"ONLINE"}`))
		}
	})

	c := New(Collaborators{Effector: gw, Connection: gw, Collisions: gw}, Options{
		Device: "SB-TEST",
		Timing: testTiming(),
		Logger: quietLogger(),
	})
	errCh := startRun(t, c)

	// 브로커가 사라진 상태: 모든 발행이 멈춘다
	release := make(chan struct{})
	defer close(release)
	pub.BlockPublish(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx, "test"); err != nil {
		t.Fatalf("Shutdown blocked: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if gw.ConnectionState() != models.ConnectionOffline {
		t.Errorf("Expected OFFLINE after shutdown, got %s", gw.ConnectionState())
	}
}

func TestPostReportsFullQueue(t *testing.T) {
	sim := device.NewSimulator()
	timing := testTiming()
	timing.PostTimeout = 20 * time.Millisecond
	c := New(Collaborators{Effector: sim}, Options{Device: "SB-TEST", Timing: timing, Logger: quietLogger()})

	// 제어 루프가 없으므로 큐가 비워지지 않는다
	for i := 0; i < eventQueueSize; i++ {
		if err := c.PressKey("r"); err != nil {
			t.Fatalf("PressKey %d failed: %v", i, err)
		}
	}
	if err := c.PressKey("r"); !errors.Is(err, ErrEventDropped) {
		t.Errorf("Expected ErrEventDropped for key, got %v", err)
	}
	if err := c.Say("your fault"); !errors.Is(err, ErrEventDropped) {
		t.Errorf("Expected ErrEventDropped for phrase, got %v", err)
	}

	c.closeQueue()
	if err := c.PressKey("r"); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after close, got %v", err)
	}
}
