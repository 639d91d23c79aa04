// internal/behavior/run.go
package behavior

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sphero-behavior/internal/models"
)

// Run connects, enters SLEEP and processes ticks and events until a
// shutdown key, Stop, or ctx cancellation. Cleanup always runs once the
// connection is up. Run may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("controller already started")
	}
	defer close(c.done)

	if c.conn != nil {
		c.log.Infof("🔌 Connecting to %s...", c.device)
		if err := c.conn.Connect(ctx); err != nil {
			c.closeQueue()
			c.baseCancel()
			return fmt.Errorf("connect %s: %w", c.device, err)
		}
		c.log.Infof("✅ Connected to %s", c.device)
	}

	c.attachSources()
	c.setRunning(true)
	c.fire(evStart, models.TriggerStartup)

	ticker := time.NewTicker(c.timing.Tick)
	reason := c.loop(ctx, ticker.C)
	ticker.Stop()

	c.closeQueue()
	c.shutdown(reason)
	return nil
}

func (c *Controller) loop(ctx context.Context, tick <-chan time.Time) string {
	for {
		select {
		case <-ctx.Done():
			return "context cancelled"
		case <-tick:
			c.tick(c.clock())
		case ev := <-c.events:
			if c.dispatch(ev) {
				return c.stopReason
			}
		}
	}
}

// closeQueue stops accepting events and fails any pending requests.
func (c *Controller) closeQueue() {
	c.closeOnce.Do(func() { close(c.closing) })
	for {
		select {
		case ev := <-c.events:
			ev.reply(ErrStopped)
		default:
			return
		}
	}
}

func (c *Controller) attachSources() {
	if c.collisions != nil {
		c.collisions.OnCollision(c.Collision)
	}
	if c.voice != nil {
		if err := c.voice.StartListening(c.VoicePhrase); err != nil {
			c.log.Warnf("⚠️ Voice source unavailable: %v", err)
		}
	}
	if c.keys != nil {
		if err := c.keys.StartListening(c.KeyDown); err != nil {
			c.log.Warnf("⚠️ Key source unavailable: %v", err)
		}
	}
}

func (c *Controller) detachSources() {
	if c.voice != nil {
		c.voice.StopListening()
	}
	if c.keys != nil {
		c.keys.StopListening()
	}
	if c.collisions != nil {
		c.collisions.OnCollision(nil)
	}
}

// post enqueues an event for the control goroutine.
func (c *Controller) post(ev Event) error {
	select {
	case <-c.closing:
		return ErrStopped
	default:
	}

	timer := time.NewTimer(c.timing.PostTimeout)
	defer timer.Stop()
	select {
	case c.events <- ev:
		return nil
	case <-c.closing:
		return ErrStopped
	case <-timer.C:
		c.log.Warnf("⚠️ Dropped %s event: queue full", ev.Kind)
		return ErrEventDropped
	}
}

// request posts ev and waits for its reply.
func (c *Controller) request(ctx context.Context, ev Event) error {
	ev.Reply = make(chan error, 1)
	if err := c.post(ev); err != nil {
		return err
	}
	select {
	case err := <-ev.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Collision reports a physical impact.
func (c *Controller) Collision() {
	_ = c.post(Event{Kind: EventCollision})
}

// VoicePhrase is the VoiceSource callback; a dropped event is already logged by post.
func (c *Controller) VoicePhrase(phrase string) {
	_ = c.Say(phrase)
}

// KeyDown is the KeySource callback; keys are case-insensitive.
func (c *Controller) KeyDown(key string) {
	_ = c.PressKey(key)
}

// Say queues a recognized trigger phrase. It fails with ErrEventDropped
// when the queue stays full and ErrStopped after shutdown.
func (c *Controller) Say(phrase string) error {
	return c.post(Event{Kind: EventVoicePhrase, Phrase: phrase})
}

// PressKey queues a key press, failing like Say.
func (c *Controller) PressKey(key string) error {
	return c.post(Event{Kind: EventKeyPress, Key: key})
}

// Goto forces a transition to the named state.
func (c *Controller) Goto(ctx context.Context, state string) error {
	return c.request(ctx, Event{Kind: EventGoto, State: state})
}

// RunRoutine starts a scripted routine. Only allowed in INTERACT.
func (c *Controller) RunRoutine(ctx context.Context, name string) error {
	return c.request(ctx, Event{Kind: EventRunRoutine, Routine: name})
}

// Stop asks the control loop to shut down.
func (c *Controller) Stop(reason string) error {
	return c.post(Event{Kind: EventShutdown, Reason: reason})
}

// Shutdown requests a stop and waits for cleanup to finish or ctx to expire.
func (c *Controller) Shutdown(ctx context.Context, reason string) error {
	if err := c.Stop(reason); err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for shutdown: %w", ctx.Err())
	}
}

// Done is closed after Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// StopReason is the reason for the last shutdown.
func (c *Controller) StopReason() string {
	<-c.done
	return c.stopReason
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() models.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// State returns the active state.
func (c *Controller) State() models.State {
	return c.Snapshot().State
}

// Device is the robot name the controller drives.
func (c *Controller) Device() string { return c.device }

// RunID identifies this controller run.
func (c *Controller) RunID() string { return c.runID }

// ActiveWorkers is the number of background workers still running.
func (c *Controller) ActiveWorkers() int {
	return int(c.workers.Load())
}
