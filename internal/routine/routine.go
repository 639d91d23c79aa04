// Package routine defines scripted movement sequences.
package routine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
)

// StepType is the kind of a routine step.
type StepType string

const (
	StepRoll  StepType = "roll"
	StepSpin  StepType = "spin"
	StepWait  StepType = "wait"
	StepLED   StepType = "led"
	StepFrame StepType = "frame"
	StepClear StepType = "clear"
)

// Step is one command in a routine. Duration is how long the step holds
// before the next one.
type Step struct {
	Type     StepType
	Heading  int
	Speed    int
	Degrees  int
	Color    models.Color
	Frame    *models.Matrix
	Duration time.Duration
}

// Routine is a named, ordered list of steps. A Repeat routine loops until
// cancelled.
type Routine struct {
	Name   string
	Steps  []Step
	Repeat bool
}

// Duration is the nominal wall time of the routine, one cycle for Repeat.
func (r Routine) Duration() time.Duration {
	var total time.Duration
	for _, s := range r.Steps {
		total += s.Duration
	}
	return total
}

func roll(heading, speed int, d time.Duration) Step {
	return Step{Type: StepRoll, Heading: heading, Speed: speed, Duration: d}
}

func spin(degrees int, d time.Duration) Step {
	return Step{Type: StepSpin, Degrees: degrees, Duration: d}
}

func wait(d time.Duration) Step {
	return Step{Type: StepWait, Duration: d}
}

func led(c models.Color, d time.Duration) Step {
	return Step{Type: StepLED, Color: c, Duration: d}
}

func frame(m models.Matrix, d time.Duration) Step {
	return Step{Type: StepFrame, Frame: &m, Duration: d}
}

func blank() Step {
	return Step{Type: StepClear}
}

// fade steps the front LED from one color to another in n equal steps.
func fade(from, to models.Color, n int, d time.Duration) []Step {
	steps := make([]Step, 0, n)
	for i := 1; i <= n; i++ {
		steps = append(steps, led(lerp(from, to, float64(i)/float64(n)), d/time.Duration(n)))
	}
	return steps
}

func lerp(from, to models.Color, f float64) models.Color {
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
	}
	return models.Color{R: mix(from.R, to.R), G: mix(from.G, to.G), B: mix(from.B, to.B)}
}

// mask lights every '1' cell of eight rows in c.
func mask(rows [models.MatrixSize]string, c models.Color) models.Matrix {
	var m models.Matrix
	for r, row := range rows {
		for col := 0; col < models.MatrixSize && col < len(row); col++ {
			if row[col] == '1' {
				px := c
				m[r][col] = &px
			}
		}
	}
	return m
}

const cruise = 30

var (
	triangle = []Step{
		roll(0, cruise, time.Second),
		wait(300 * time.Millisecond),
		roll(120, cruise, time.Second),
		wait(300 * time.Millisecond),
		roll(240, cruise, time.Second),
		wait(300 * time.Millisecond),
	}
	forwardRoll  = []Step{roll(0, cruise, 4*time.Second)}
	backwardRoll = []Step{roll(180, cruise, 5*time.Second)}
	spinAround   = []Step{spin(720, 7*time.Second)}
)

var (
	brightRed = models.Color{R: 255}
	mediumRed = models.Color{R: 200}
	dimRed    = models.Color{R: 80}
	darkRed   = models.Color{R: 30}

	deepBlue  = models.Color{G: 40, B: 80}
	softWhite = models.Color{R: 150, G: 180, B: 200}

	waveBlue  = models.Color{B: 255}
	waveWhite = models.ColorWhite
)

var waveFrames = [][models.MatrixSize]string{
	{
		"00000000",
		"00000011",
		"00000010",
		"00001110",
		"00001000",
		"00111000",
		"00100000",
		"11100000",
	},
	{
		"00000010",
		"00001110",
		"00001000",
		"00111000",
		"00100000",
		"11100000",
		"10000000",
		"10000000",
	},
}

const waveCycles = 5

var registry = map[string]Routine{
	"triangle":      {Name: "triangle", Steps: triangle},
	"forward_roll":  {Name: "forward_roll", Steps: forwardRoll},
	"backward_roll": {Name: "backward_roll", Steps: backwardRoll},
	"spin":          {Name: "spin", Steps: spinAround},
	"program":       {Name: "program", Steps: program()},
	"heartbeat":     {Name: "heartbeat", Steps: heartbeat(), Repeat: true},
	"led_wave":      {Name: "led_wave", Steps: ledWave(), Repeat: true},
	"wave":          {Name: "wave", Steps: wave()},
}

// heartbeat is one lub-dub on the front LED: a strong beat, a short pause,
// a weak beat and the rest before the next cycle.
func heartbeat() []Step {
	var steps []Step
	steps = append(steps, fade(darkRed, brightRed, 5, 80*time.Millisecond)...)
	steps = append(steps, led(brightRed, 50*time.Millisecond))
	steps = append(steps, fade(brightRed, dimRed, 5, 80*time.Millisecond)...)
	steps = append(steps, led(dimRed, 150*time.Millisecond))
	steps = append(steps, fade(darkRed, mediumRed, 5, 70*time.Millisecond)...)
	steps = append(steps, led(mediumRed, 40*time.Millisecond))
	steps = append(steps, fade(mediumRed, dimRed, 5, 70*time.Millisecond)...)
	steps = append(steps, led(darkRed, 460*time.Millisecond))
	return steps
}

func ledWave() []Step {
	steps := fade(deepBlue, softWhite, 30, 3*time.Second)
	return append(steps, fade(softWhite, deepBlue, 30, 3*time.Second)...)
}

// wave flashes each matrix frame blue then white.
func wave() []Step {
	var steps []Step
	for i := 0; i < waveCycles; i++ {
		for _, rows := range waveFrames {
			steps = append(steps,
				blank(),
				frame(mask(rows, waveBlue), 200*time.Millisecond),
				frame(mask(rows, waveWhite), 200*time.Millisecond),
			)
		}
	}
	return steps
}

func program() []Step {
	var steps []Step
	for _, part := range [][]Step{triangle, forwardRoll, backwardRoll, spinAround} {
		steps = append(steps, part...)
		steps = append(steps, wait(time.Second))
	}
	return steps
}

// Lookup returns a registered routine by name.
func Lookup(name string) (Routine, bool) {
	r, ok := registry[name]
	return r, ok
}

// Names lists registered routines in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes the steps in order. Movement commands return immediately on the
// device, so each step is followed by a wait for its duration. Run returns
// ctx.Err() when cancelled and the first command error otherwise. A Repeat
// routine runs until cancelled.
func Run(ctx context.Context, eff interfaces.Effector, r Routine) error {
	if r.Repeat && r.Duration() <= 0 {
		return fmt.Errorf("%s: repeating routine has no duration", r.Name)
	}
	for {
		if err := runOnce(ctx, eff, r); err != nil {
			return err
		}
		if !r.Repeat {
			return nil
		}
	}
}

func runOnce(ctx context.Context, eff interfaces.Effector, r Routine) error {
	for i, s := range r.Steps {
		var err error
		switch s.Type {
		case StepRoll:
			err = eff.SetMovement(s.Heading, s.Speed, s.Duration)
		case StepSpin:
			err = eff.Spin(s.Degrees, s.Duration)
		case StepLED:
			err = eff.SetIndicatorColor(models.IndicatorFront, s.Color)
		case StepFrame:
			if s.Frame == nil {
				err = errors.New("frame step without a frame")
			} else {
				err = eff.RenderMatrix(*s.Frame)
			}
		case StepClear:
			err = eff.ClearMatrix()
		case StepWait:
		default:
			err = fmt.Errorf("unknown step type %q", s.Type)
		}
		if err != nil {
			return fmt.Errorf("%s step %d (%s): %w", r.Name, i, s.Type, err)
		}
		if err := sleep(ctx, s.Duration); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCancelled reports whether err came from cancelling the routine.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
