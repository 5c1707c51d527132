package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerTrailingEdge(t *testing.T) {
	f := NewFake()
	d := NewDebouncer(f, time.Second)

	calls := 0
	d.Trigger("k", func() { calls++ })
	assert.True(t, d.Pending("k"))

	f.Advance(time.Second)
	assert.Equal(t, 1, calls)
	assert.False(t, d.Pending("k"))
}

func TestDebouncerReplacesPendingCall(t *testing.T) {
	f := NewFake()
	d := NewDebouncer(f, time.Second)

	var got string
	d.Trigger("k", func() { got = "first" })
	f.Advance(500 * time.Millisecond)
	d.Trigger("k", func() { got = "second" })

	f.Advance(500 * time.Millisecond)
	assert.Empty(t, got, "retrigger resets the delay")

	f.Advance(500 * time.Millisecond)
	assert.Equal(t, "second", got, "only the last trigger's fn runs")
}

func TestDebouncerKeysIndependent(t *testing.T) {
	f := NewFake()
	d := NewDebouncer(f, time.Second)

	calls := map[string]int{}
	d.Trigger("a", func() { calls["a"]++ })
	d.Trigger("b", func() { calls["b"]++ })

	f.Advance(time.Second)
	assert.Equal(t, 1, calls["a"])
	assert.Equal(t, 1, calls["b"])
}

func TestDebouncerCancel(t *testing.T) {
	f := NewFake()
	d := NewDebouncer(f, time.Second)

	calls := 0
	d.Trigger("k", func() { calls++ })
	d.Cancel("k")
	assert.False(t, d.Pending("k"))

	f.Advance(time.Minute)
	assert.Zero(t, calls)

	// Cancelling a key with nothing pending is a no-op.
	d.Cancel("other")
}
