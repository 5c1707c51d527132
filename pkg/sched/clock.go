// Package sched provides the scheduling primitives the client's
// debouncing and batching heuristics are built on. Everything takes a
// Clock so tests run on virtual time instead of wall-clock sleeps.
package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for schedulable code.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled.
	Sleep(ctx context.Context, d time.Duration) error

	// AfterFunc runs fn after d has elapsed. The returned Timer can
	// stop the call if it has not fired yet.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop cancels the pending call. It reports whether the call was
	// still pending.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool {
	return rt.t.Stop()
}

// Fake is a manually advanced Clock for tests. Advance moves virtual
// time forward, firing timers and waking sleepers in deadline order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	fn       func()        // AfterFunc callback, nil for sleepers
	done     chan struct{} // closed when a sleeper wakes
	clock    *Fake
	stopped  bool
}

// NewFake returns a Fake clock starting at a fixed reference time.
func NewFake() *Fake {
	return &Fake{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	f.mu.Lock()
	w := &fakeWaiter{
		deadline: f.now.Add(d),
		done:     make(chan struct{}),
		clock:    f,
	}
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case <-w.done:
		return nil
	}
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	w := &fakeWaiter{
		deadline: f.now.Add(d),
		fn:       fn,
		clock:    f,
	}
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()
	return w
}

// Advance moves the clock forward by d, firing everything that comes
// due along the way. Callbacks run synchronously on the caller's
// goroutine, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		var due *fakeWaiter
		for _, w := range f.waiters {
			if w.stopped || w.deadline.After(target) {
				continue
			}
			if due == nil || w.deadline.Before(due.deadline) {
				due = w
			}
		}
		if due == nil {
			break
		}
		f.now = due.deadline
		due.stopped = true
		fn := due.fn
		done := due.done
		f.mu.Unlock()
		if fn != nil {
			fn()
		}
		if done != nil {
			close(done)
		}
		f.mu.Lock()
	}
	f.now = target
	f.compact()
	f.mu.Unlock()
}

// PendingDeadlines reports the deadlines of live waiters, soonest
// first. Tests use it to assert that a delay was actually scheduled.
func (f *Fake) PendingDeadlines() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, w := range f.waiters {
		if !w.stopped {
			out = append(out, w.deadline)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (f *Fake) compact() {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	f.waiters = live
}

func (w *fakeWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	if w.stopped {
		return false
	}
	w.stopped = true
	if w.done != nil {
		close(w.done)
	}
	return true
}
