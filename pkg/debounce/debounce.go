// Package debounce provides a debounced-task primitive with an explicit
// cancel handle and a generation counter. A burst of Do calls within the
// quiet window collapses to a single execution of the most recent task;
// superseded tasks never run. The generation counter lets callers detect
// and discard results of executions that were superseded mid-flight.
package debounce

import (
	"sync"
	"time"
)

// Task is the unit of work scheduled through a Debouncer. It receives the
// generation it was scheduled under; implementations should re-check the
// generation via Current before applying any side effects computed
// asynchronously.
type Task func(gen uint64)

// Debouncer coalesces bursts of calls into one execution per quiet window.
// The zero value is not usable; construct with New.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
}

// New returns a Debouncer with the given quiet window. A non-positive
// delay executes tasks synchronously, which keeps tests deterministic.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules task to run after the quiet window elapses with no further
// calls. A pending earlier task is dropped, not queued. Returns the
// generation the task was scheduled under.
func (d *Debouncer) Do(task Task) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if d.delay <= 0 {
		d.mu.Unlock()
		task(gen)
		d.mu.Lock()
		return gen
	}

	d.timer = time.AfterFunc(d.delay, func() {
		if !d.Current(gen) {
			return
		}
		task(gen)
	})
	return gen
}

// Cancel drops any pending task and invalidates all generations handed
// out so far, so in-flight results are discarded on arrival.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Bump invalidates outstanding generations without scheduling anything.
// Used when shared state changes underneath pending work (e.g. a cache
// invalidation) and stale results must not be applied.
func (d *Debouncer) Bump() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	return d.gen
}

// Current reports whether gen is still the newest generation.
func (d *Debouncer) Current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}
