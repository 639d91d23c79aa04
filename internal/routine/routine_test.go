package routine

import (
	"context"
	"errors"
	"testing"
	"time"

	"sphero-behavior/internal/device"
	"sphero-behavior/internal/models"
)

func TestRegistry(t *testing.T) {
	want := []string{"backward_roll", "forward_roll", "heartbeat", "led_wave", "program", "spin", "triangle", "wave"}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	p, ok := Lookup("program")
	if !ok {
		t.Fatal("program not registered")
	}
	var parts time.Duration
	for _, n := range []string{"triangle", "forward_roll", "backward_roll", "spin"} {
		r, _ := Lookup(n)
		parts += r.Duration() + time.Second
	}
	if p.Duration() != parts {
		t.Errorf("Expected program duration %v, got %v", parts, p.Duration())
	}
}

func TestRunSteps(t *testing.T) {
	sim := device.NewSimulator()
	r := Routine{Name: "test", Steps: []Step{
		roll(90, 20, time.Millisecond),
		wait(time.Millisecond),
		spin(180, time.Millisecond),
	}}
	if err := Run(context.Background(), sim, r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	calls := sim.Calls()
	if len(calls) != 2 || calls[0].Method != device.MethodSetMovement || calls[1].Method != device.MethodSpin {
		t.Fatalf("Unexpected calls %+v", calls)
	}
	if calls[0].Heading != 90 || calls[0].Speed != 20 || calls[1].Degrees != 180 {
		t.Errorf("Unexpected step arguments %+v", calls)
	}
}

func TestRunCancelled(t *testing.T) {
	sim := device.NewSimulator()
	r, _ := Lookup("forward_roll")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := Run(ctx, sim, r)
	if !IsCancelled(err) {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Run did not return promptly after cancel")
	}
}

func TestRunCommandError(t *testing.T) {
	sim := device.NewSimulator()
	boom := errors.New("boom")
	sim.SetFault(func(string) error { return boom })

	r, _ := Lookup("triangle")
	err := Run(context.Background(), sim, r)
	if !errors.Is(err, boom) || IsCancelled(err) {
		t.Fatalf("Expected command error, got %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	r, ok := Lookup("heartbeat")
	if !ok {
		t.Fatal("heartbeat not registered")
	}
	if !r.Repeat {
		t.Error("heartbeat must repeat")
	}
	if r.Duration() != time.Second {
		t.Errorf("Expected a one second beat cycle, got %v", r.Duration())
	}

	var peak uint8
	for i, s := range r.Steps {
		if s.Type != StepLED {
			t.Fatalf("step %d: expected led step, got %s", i, s.Type)
		}
		if s.Color.G != 0 || s.Color.B != 0 {
			t.Errorf("step %d: expected a pure red, got %+v", i, s.Color)
		}
		if s.Color.R > peak {
			peak = s.Color.R
		}
	}
	if peak != 255 {
		t.Errorf("Expected the strong beat to peak at 255, got %d", peak)
	}
	last := r.Steps[len(r.Steps)-1]
	if last.Color != darkRed || last.Duration != 460*time.Millisecond {
		t.Errorf("Expected a dark red rest, got %+v", last)
	}
}

func TestFade(t *testing.T) {
	steps := fade(models.ColorOff, models.Color{R: 100, G: 200}, 4, 40*time.Millisecond)
	if len(steps) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(steps))
	}
	if steps[0].Color != (models.Color{R: 25, G: 50}) || steps[0].Duration != 10*time.Millisecond {
		t.Errorf("Unexpected first step %+v", steps[0])
	}
	if steps[3].Color != (models.Color{R: 100, G: 200}) {
		t.Errorf("Expected the fade to end on the target, got %+v", steps[3].Color)
	}
}

func TestWave(t *testing.T) {
	r, _ := Lookup("wave")
	if r.Repeat {
		t.Error("wave must end on its own")
	}
	if r.Duration() != 4*time.Second {
		t.Errorf("Expected 4s, got %v", r.Duration())
	}

	frames := 0
	for _, s := range r.Steps {
		if s.Type != StepFrame {
			continue
		}
		frames++
		px := s.Frame[7][0]
		if px == nil || (*px != waveBlue && *px != waveWhite) {
			t.Fatalf("Expected a lit wave pixel at [7][0], got %v", px)
		}
		if s.Frame[0][0] != nil {
			t.Error("Expected [0][0] dark in every frame")
		}
	}
	if frames != waveCycles*len(waveFrames)*2 {
		t.Errorf("Expected %d frames, got %d", waveCycles*len(waveFrames)*2, frames)
	}
}

func TestRunMatrixSteps(t *testing.T) {
	sim := device.NewSimulator()
	m := mask([models.MatrixSize]string{"1"}, models.ColorRed)
	r := Routine{Name: "test", Steps: []Step{
		blank(),
		frame(m, time.Millisecond),
		led(models.ColorWhite, time.Millisecond),
	}}
	if err := Run(context.Background(), sim, r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	calls := sim.Calls()
	if len(calls) != 3 ||
		calls[0].Method != device.MethodClearMatrix ||
		calls[1].Method != device.MethodRenderMatrix ||
		calls[2].Method != device.MethodSetIndicator {
		t.Fatalf("Unexpected calls %+v", calls)
	}
	if calls[2].Indicator != models.IndicatorFront || calls[2].Color != models.ColorWhite {
		t.Errorf("Expected a white front LED, got %+v", calls[2])
	}
	st := sim.State()
	if st.Matrix[0][0] == nil || st.Matrix[0][1] != nil {
		t.Error("Expected only the masked pixel lit")
	}
}

func TestRunRepeat(t *testing.T) {
	t.Run("Loops until cancelled", func(t *testing.T) {
		sim := device.NewSimulator()
		r := Routine{Name: "blink", Repeat: true, Steps: []Step{led(models.ColorRed, 5*time.Millisecond)}}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		if err := Run(ctx, sim, r); !IsCancelled(err) {
			t.Fatalf("Expected cancellation, got %v", err)
		}
		if n := sim.CountCalls(device.MethodSetIndicator); n < 2 {
			t.Errorf("Expected the routine to loop, got %d led calls", n)
		}
	})

	t.Run("Zero duration rejected", func(t *testing.T) {
		sim := device.NewSimulator()
		r := Routine{Name: "busy", Repeat: true, Steps: []Step{led(models.ColorRed, 0)}}
		err := Run(context.Background(), sim, r)
		if err == nil || IsCancelled(err) {
			t.Fatalf("Expected an error, got %v", err)
		}
		if sim.CountCalls(device.MethodSetIndicator) != 0 {
			t.Error("Expected no commands")
		}
	})
}
