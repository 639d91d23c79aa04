// internal/behavior/effects.go
package behavior

import (
	"context"
	"errors"
	"time"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
)

var indicators = []models.Indicator{models.IndicatorFront, models.IndicatorBack}

// spinLoop spins in place with a pause between turns.
func (c *Controller) spinLoop(ctx context.Context, eff interfaces.Effector) {
	for {
		if err := eff.Spin(360, c.timing.SpinDuration); err != nil {
			if errors.Is(err, ErrLeaseRevoked) {
				return
			}
			c.log.Warnf("⚠️ Spin failed: %v", err)
			if !sleepCtx(ctx, c.timing.ErrorBackoff) {
				return
			}
			continue
		}
		if !sleepCtx(ctx, c.timing.SpinDuration+c.timing.SpinPause) {
			return
		}
	}
}

// breathSteps is the number of brightness steps in one full breath.
const breathSteps = 50

// breathe ramps both indicators up and down through color until ctx is cancelled.
func (c *Controller) breathe(ctx context.Context, eff interfaces.Effector, color models.Color, period time.Duration) {
	step := period / breathSteps
	levels := breathLevels()
	for {
		for _, b := range levels {
			scaled := color.Scale(b)
			var err error
			for _, led := range indicators {
				if e := eff.SetIndicatorColor(led, scaled); e != nil {
					err = e
				}
			}
			if err != nil {
				if errors.Is(err, ErrLeaseRevoked) {
					return
				}
				c.log.Warnf("⚠️ Breathing step failed: %v", err)
				if !sleepCtx(ctx, c.timing.ErrorBackoff) {
					return
				}
				continue
			}
			if !sleepCtx(ctx, step) {
				return
			}
		}
	}
}

// breathLevels returns 0..250 then 255..5 in steps of 10.
func breathLevels() []int {
	levels := make([]int, 0, 52)
	for b := 0; b <= 255; b += 10 {
		levels = append(levels, b)
	}
	for b := 255; b >= 0; b -= 10 {
		levels = append(levels, b)
	}
	return levels
}
