// internal/behavior/task.go
package behavior

import (
	"context"
	"sync"
	"time"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
)

// TaskKind tags the background task owned by the active state.
type TaskKind string

const (
	TaskPatrol    TaskKind = "patrol"
	TaskSpin      TaskKind = "spin"
	TaskBreathing TaskKind = "breathing"
	TaskRoutine   TaskKind = "routine"
)

// task is the single live background worker.
type task struct {
	kind   TaskKind
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) running() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// effectorBus serializes every effector command. Workers reach it only
// through a lease, so once a task is cancelled none of its commands can
// land after the next state's first command.
type effectorBus struct {
	mu  sync.Mutex
	eff interfaces.Effector
}

func (b *effectorBus) lease(ctx context.Context) *lease {
	return &lease{bus: b, ctx: ctx}
}

// lease is an Effector bound to a task context.
type lease struct {
	bus *effectorBus
	ctx context.Context
}

func (l *lease) call(fn func(eff interfaces.Effector) error) error {
	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	if l.ctx.Err() != nil {
		return ErrLeaseRevoked
	}
	return fn(l.bus.eff)
}

func (l *lease) SetMovement(heading, speed int, duration time.Duration) error {
	return l.call(func(eff interfaces.Effector) error { return eff.SetMovement(heading, speed, duration) })
}

func (l *lease) StopMovement() error {
	return l.call(func(eff interfaces.Effector) error { return eff.StopMovement() })
}

func (l *lease) Spin(degrees int, duration time.Duration) error {
	return l.call(func(eff interfaces.Effector) error { return eff.Spin(degrees, duration) })
}

func (l *lease) SetHeading(heading int) error {
	return l.call(func(eff interfaces.Effector) error { return eff.SetHeading(heading) })
}

func (l *lease) SetIndicatorColor(which models.Indicator, color models.Color) error {
	return l.call(func(eff interfaces.Effector) error { return eff.SetIndicatorColor(which, color) })
}

func (l *lease) RenderMatrix(matrix models.Matrix) error {
	return l.call(func(eff interfaces.Effector) error { return eff.RenderMatrix(matrix) })
}

func (l *lease) ClearMatrix() error {
	return l.call(func(eff interfaces.Effector) error { return eff.ClearMatrix() })
}

func (l *lease) GetOrientation() (models.Orientation, error) {
	var o models.Orientation
	err := l.call(func(eff interfaces.Effector) error {
		var err error
		o, err = eff.GetOrientation()
		return err
	})
	return o, err
}

// startTask replaces the current task with a new worker running fn.
func (c *Controller) startTask(kind TaskKind, fn func(ctx context.Context, eff interfaces.Effector)) {
	c.stopTask()

	ctx, cancel := context.WithCancel(c.baseCtx)
	t := &task{kind: kind, cancel: cancel, done: make(chan struct{})}
	c.task = t

	c.workers.Add(1)
	go func() {
		defer close(t.done)
		defer c.workers.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				c.log.Errorf("❌ %s worker panicked: %v", kind, r)
			}
		}()
		fn(ctx, c.bus.lease(ctx))
	}()
	c.log.Debugf("%s worker started", kind)
}

// stopTask cancels the current task and waits for it up to StopTimeout.
// On timeout the handoff proceeds; the worker's lease is already revoked.
func (c *Controller) stopTask() {
	t := c.task
	if t == nil {
		return
	}
	c.task = nil
	t.cancel()

	timer := time.NewTimer(c.timing.StopTimeout)
	defer timer.Stop()
	select {
	case <-t.done:
		c.log.Debugf("%s worker stopped", t.kind)
	case <-timer.C:
		c.log.Warnf("⚠️ %s worker did not stop within %s", t.kind, c.timing.StopTimeout)
	}
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
