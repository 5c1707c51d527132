package lifecycle_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/parley/pkg/actions"
	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/backendtest"
	"github.com/odvcencio/parley/pkg/config"
	"github.com/odvcencio/parley/pkg/lifecycle"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/sched"
	"github.com/odvcencio/parley/pkg/store"
)

// memAddress is an in-memory Address for tests.
type memAddress struct {
	mu    sync.Mutex
	value string
	sets  []string
}

func (a *memAddress) Get() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

func (a *memAddress) Set(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = id
	a.sets = append(a.sets, id)
}

func (a *memAddress) Sets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.sets))
	copy(out, a.sets)
	return out
}

func newManager(t *testing.T, srv *backendtest.Server, addr *memAddress) (*lifecycle.Manager, *store.Store) {
	t.Helper()
	st := store.New()
	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	act := actions.New(st, client, nil, sched.NewFake(), nil, config.DefaultConfig().Titles)
	return lifecycle.New(act, addr, nil), st
}

func TestStartWithEmptyAddressSelectsFirst(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "First", schema.WireMessage{Role: "user", Content: "hello"})
	srv.Add("c2", "Second")

	addr := &memAddress{}
	m, st := newManager(t, srv, addr)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Equal(t, "c1", st.ActiveID.Get())
	assert.Equal(t, "c1", addr.Get(), "default selection is written back to the address")
	require.Len(t, st.Messages.Get(), 1, "the selected conversation's messages load on mount")
	assert.Equal(t, lifecycle.StateActive, m.State())
	assert.Equal(t, 1, srv.CountRequests("/messages"), "exactly one message load on mount")
}

func TestStartHonorsAddress(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "First")
	srv.Add("c2", "Second", schema.WireMessage{Role: "user", Content: "from address"})

	addr := &memAddress{value: "c2"}
	m, st := newManager(t, srv, addr)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Equal(t, "c2", st.ActiveID.Get(), "the address wins over the default selection")
	require.Len(t, st.Messages.Get(), 1)
	assert.Equal(t, "from address", st.Messages.Get()[0].Content)
	assert.Equal(t, "c2", addr.Get(), "the address still names the active conversation after mount")
	assert.Empty(t, addr.Sets(), "the default selection must not leak into the address")
}

func TestStartWithEmptyList(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()

	addr := &memAddress{}
	m, st := newManager(t, srv, addr)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Empty(t, st.ActiveID.Get())
	assert.Equal(t, lifecycle.StateNoConversation, m.State())
	assert.Zero(t, srv.CountRequests("/messages"))
}

func TestSyncExternalChange(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "First")
	srv.Add("c2", "Second", schema.WireMessage{Role: "user", Content: "switched"})

	addr := &memAddress{}
	m, st := newManager(t, srv, addr)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	require.Equal(t, "c1", st.ActiveID.Get())

	// The user edits the address bar.
	addr.Set("c2")
	require.NoError(t, m.Sync(context.Background(), "c2"))

	assert.Equal(t, "c2", st.ActiveID.Get())
	assert.Equal(t, "switched", st.Messages.Get()[0].Content)
}

func TestSyncEmptyClearsSelection(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "First")

	addr := &memAddress{}
	m, st := newManager(t, srv, addr)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	require.Equal(t, "c1", st.ActiveID.Get())

	require.NoError(t, m.Sync(context.Background(), ""))

	assert.Empty(t, st.ActiveID.Get())
	assert.Empty(t, st.Messages.Get())
	assert.Equal(t, lifecycle.StateNoConversation, m.State())
}

func TestOwnAddressWritesDoNotReplay(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "First")

	addr := &memAddress{}
	m, st := newManager(t, srv, addr)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	loads := srv.CountRequests("/messages")

	// The browser reports back the value the manager itself just wrote.
	require.NoError(t, m.Sync(context.Background(), "c1"))

	assert.Equal(t, loads, srv.CountRequests("/messages"), "own write must not reload")
	assert.Equal(t, "c1", st.ActiveID.Get())
}

func TestSelectWritesAddress(t *testing.T) {
	srv := backendtest.NewServer()
	defer srv.Close()
	srv.Add("c1", "First")
	srv.Add("c2", "Second")

	addr := &memAddress{}
	m, st := newManager(t, srv, addr)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.Select(context.Background(), "c2"))

	assert.Equal(t, "c2", st.ActiveID.Get())
	assert.Equal(t, "c2", addr.Get())
	assert.Contains(t, addr.Sets(), "c2")

	// Re-selecting the active conversation is a no-op.
	loads := srv.CountRequests("/messages")
	require.NoError(t, m.Select(context.Background(), "c2"))
	assert.Equal(t, loads, srv.CountRequests("/messages"))
}
