// Package store holds the client's reactive state: named atoms with
// get/set/subscribe semantics and derived views computed on read. The
// store is a pure state container; it performs no I/O and is the only
// shared mutable resource in the client.
package store

import "sync"

// Atom is a single named unit of observable state. Set replaces the
// value wholesale and notifies subscribers synchronously, in
// subscription order. Reads never mutate, so derived values computed
// from atoms are always consistent immediately after any write.
type Atom[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   []subscriber[T]
	nextID int
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// NewAtom creates an atom holding initial.
func NewAtom[T any](initial T) *Atom[T] {
	return &Atom[T]{value: initial}
}

// Get returns the current value.
func (a *Atom[T]) Get() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Set replaces the value and notifies subscribers. Notification runs
// on the caller's goroutine after the lock is released, so a
// subscriber may read any atom, but writing from inside a notification
// that was itself caused by the same atom will loop and is on the
// caller to avoid.
func (a *Atom[T]) Set(v T) {
	a.mu.Lock()
	a.value = v
	subs := make([]subscriber[T], len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn to run after every Set. The returned function
// removes the subscription.
func (a *Atom[T]) Subscribe(fn func(T)) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.subs = append(a.subs, subscriber[T]{id: id, fn: fn})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.subs {
			if s.id == id {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				return
			}
		}
	}
}
