package driver

import (
	"context"
	"time"
)

// waitFor polls pred at the configured interval until it reports true, the
// timeout elapses, or the run is interrupted. Timeouts and interruption are
// reported via the return value, never as errors.
func (d *Driver) waitFor(ctx context.Context, timeout time.Duration, pred func(context.Context) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if d.interrupted(ctx) {
			return false
		}
		if pred(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if !d.sleepInterruptible(ctx, d.cfg.PollInterval) {
			return false
		}
	}
}

// sleepInterruptible pauses for dur, waking early on stop or context
// cancellation. Returns false when interrupted.
func (d *Driver) sleepInterruptible(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return !d.interrupted(ctx)
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !d.interrupted(ctx)
	case <-ctx.Done():
		return false
	case <-d.stopChan():
		return false
	}
}

// evalBool adapts a boolean page script into a waitFor predicate.
func (d *Driver) evalBool(script string) func(context.Context) bool {
	return func(ctx context.Context) bool {
		var ok bool
		if err := d.dom.Eval(ctx, script, &ok); err != nil {
			return false
		}
		return ok
	}
}
