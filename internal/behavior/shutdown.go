// internal/behavior/shutdown.go
package behavior

import (
	"sphero-behavior/internal/models"
)

type cleanupStep struct {
	name string
	fn   func() error
}

// shutdown stops the worker and returns the robot to rest. Each step is
// attempted regardless of earlier failures.
func (c *Controller) shutdown(reason string) {
	if reason == "" {
		reason = "stop requested"
	}
	c.stopReason = reason
	c.log.Infof("🛑 Shutting down %s (%s)", c.device, reason)

	c.stopTask()
	if c.flashTimer != nil {
		c.flashTimer.Stop()
	}
	c.detachSources()

	steps := []cleanupStep{
		{"stop movement", c.direct.StopMovement},
		{"clear matrix", c.direct.ClearMatrix},
		{"front indicator off", func() error {
			return c.direct.SetIndicatorColor(models.IndicatorFront, models.ColorOff)
		}},
		{"back indicator off", func() error {
			return c.direct.SetIndicatorColor(models.IndicatorBack, models.ColorOff)
		}},
		{"reset heading", func() error { return c.direct.SetHeading(0) }},
	}
	if c.conn != nil {
		steps = append(steps, cleanupStep{"disconnect", c.conn.Disconnect})
	}
	failed := 0
	for _, s := range steps {
		if !c.guard(s) {
			failed++
		}
	}

	c.baseCancel()
	c.setRunning(false)
	if failed > 0 {
		c.log.Warnf("⚠️ Shutdown finished with %d failed step(s)", failed)
		return
	}
	c.log.Infof("✅ Shutdown complete")
}

func (c *Controller) guard(s cleanupStep) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("❌ Cleanup %s panicked: %v", s.name, r)
			ok = false
		}
	}()
	if err := s.fn(); err != nil {
		c.log.Warnf("⚠️ Cleanup %s failed: %v", s.name, err)
		return false
	}
	return true
}
