package store

import (
	"sync"
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/clock"
)

// Debouncer coalesces bursts of values: flush runs once with the latest
// value after window has passed without a new Trigger.
type Debouncer[T any] struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration
	flush   func(T)
	timer   clock.Timer
	pending *T
	gen     uint64
}

func NewDebouncer[T any](clk clock.Clock, window time.Duration, flush func(T)) *Debouncer[T] {
	return &Debouncer[T]{clock: clk, window: window, flush: flush}
}

// Trigger replaces the pending value and restarts the window.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = &v
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	v := *d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	d.flush(v)
}

// Flush runs a pending flush now instead of waiting for the window.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return
	}
	v := *d.pending
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.flush(v)
}

// Stop drops any pending value without flushing it.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a flush is waiting.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
