// internal/behavior/patrol.go
package behavior

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"sphero-behavior/internal/interfaces"
)

// Action is one patrol movement.
type Action struct {
	Heading int
	Speed   int
}

// Forward reports whether the action drives straight ahead.
func (a Action) Forward() bool { return a.Heading == 0 }

var (
	forwardActions = []Action{{0, 40}, {0, 40}, {0, 40}}
	turnActions    = []Action{
		{45, 30}, {315, 30},
		{90, 25}, {270, 25},
		{135, 20}, {225, 20},
		{180, 15},
	}
)

// forwardBias is the probability of picking a straight-ahead action.
const forwardBias = 0.7

// patrolPolicy picks weighted random actions. Safe for concurrent use.
type patrolPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newPatrolPolicy(rng *rand.Rand) *patrolPolicy {
	return &patrolPolicy{rng: rng}
}

func (p *patrolPolicy) pick() Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng.Float64() < forwardBias {
		return forwardActions[p.rng.IntN(len(forwardActions))]
	}
	return turnActions[p.rng.IntN(len(turnActions))]
}

// patrol drives random actions until ctx is cancelled.
func (c *Controller) patrol(ctx context.Context, eff interfaces.Effector) {
	for {
		a := c.policy.pick()
		if err := eff.SetMovement(a.Heading, a.Speed, c.timing.PatrolMove); err != nil {
			if errors.Is(err, ErrLeaseRevoked) {
				return
			}
			c.log.Warnf("⚠️ Patrol move (%d°, %d) failed: %v", a.Heading, a.Speed, err)
			if !sleepCtx(ctx, c.timing.ErrorBackoff) {
				return
			}
			continue
		}
		if !sleepCtx(ctx, c.timing.PatrolInterval) {
			return
		}
	}
}
