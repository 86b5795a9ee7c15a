// Package work provides a cancellable delayed work item.
//
// A [Delayed] runs a single function on its own goroutine after a delay.
// It mirrors the semantics drivers expect from delayed work:
//
//   - Scheduling an item that is already pending does nothing.
//   - The function never runs concurrently with itself.
//   - The function may reschedule its own item.
//   - [Delayed.CancelSync] removes a pending run and blocks until any
//     in-flight run has returned; afterwards the item never runs again.
//
// Time is taken from an injected [clock.Clock] so tests can step a fake clock.
package work

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/ardnew/softnic/pkg"
)

// Delayed is a function scheduled to run once per Schedule call.
type Delayed struct {
	name string
	fn   func()
	clk  clock.Clock

	mu        sync.Mutex
	pending   bool
	cancelled bool
	runs      uint64

	fire     chan struct{} // capacity 1; holds at most the one pending run
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	timers   sync.WaitGroup
}

// Option configures a Delayed.
type Option func(*Delayed)

// WithClock sets the clock used for delays. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(d *Delayed) {
		if c != nil {
			d.clk = c
		}
	}
}

// WithName labels the item in log output.
func WithName(name string) Option {
	return func(d *Delayed) { d.name = name }
}

// NewDelayed creates an idle work item that runs fn when scheduled.
func NewDelayed(fn func(), opts ...Option) *Delayed {
	d := &Delayed{
		fn:   fn,
		clk:  clock.RealClock{},
		fire: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.loop()
	return d
}

// Schedule queues a run after delay. It returns false if a run is already
// pending or the item has been cancelled.
func (d *Delayed) Schedule(delay time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelled || d.pending {
		return false
	}
	d.pending = true

	if delay <= 0 {
		d.fire <- struct{}{}
		return true
	}

	t := d.clk.NewTimer(delay)
	d.timers.Add(1)
	go func() {
		defer d.timers.Done()
		select {
		case <-t.C():
			select {
			case d.fire <- struct{}{}:
			case <-d.stop:
			}
		case <-d.stop:
			t.Stop()
		}
	}()
	return true
}

// Pending reports whether a run is queued and has not started.
func (d *Delayed) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Runs returns the number of completed and in-flight runs.
func (d *Delayed) Runs() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

// CancelSync cancels any pending run and waits for an in-flight run to
// return. It must not be called from the item's own function. It returns
// true if a run was pending. Calling it again is a no-op.
func (d *Delayed) CancelSync() bool {
	d.mu.Lock()
	wasPending := d.pending && !d.cancelled
	d.cancelled = true
	d.pending = false
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
	d.timers.Wait()

	if wasPending {
		pkg.LogDebug(pkg.ComponentWork, "pending run cancelled", "work", d.name)
	}
	return wasPending
}

func (d *Delayed) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case <-d.fire:
		}

		d.mu.Lock()
		if d.cancelled {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.runs++
		d.mu.Unlock()

		d.fn()
	}
}
