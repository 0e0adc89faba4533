package debounce

import (
	"sync"
	"time"
)

// Debouncer collapses a burst of triggers into a single delayed call.
// A trigger while a fire is pending resets the timer, so fn runs once,
// delay after the last trigger. Safe for concurrent use.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	fn      func()
	stopped bool
}

// New creates a debouncer that invokes fn delay after the most recent Trigger.
func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		delay: delay,
		fn:    fn,
	}
}

// Trigger schedules fn, resetting any pending not-yet-fired invocation.
// No-op after Stop.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A newer trigger may have replaced the timer already.
		if d.timer == t {
			d.timer = nil
		}
		d.mu.Unlock()
		d.fn()
	})
	d.timer = t
}

// Stop cancels any pending invocation and disables the debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a fire is currently scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil && !d.stopped
}
