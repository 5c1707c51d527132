package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/parley/pkg/actions"
	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/backendtest"
	"github.com/odvcencio/parley/pkg/config"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/sched"
	"github.com/odvcencio/parley/pkg/store"
)

func newTestAdapter(t *testing.T) (*Adapter, *actions.Actions, *backendtest.Server) {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)

	st := store.New()
	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	act := actions.New(st, client, nil, sched.NewFake(), nil, config.DefaultConfig().Titles)

	session := NewSession(client, func() schema.ChatConfig { return st.Config.Get() })
	ad := NewAdapter(session, act, nil)
	return ad, act, srv
}

func TestAdapterCommitsStreamedMessages(t *testing.T) {
	ad, act, srv := newTestAdapter(t)
	srv.StreamChunks = []string{"streamed ", "reply"}

	st := act.Store()
	st.Conversations.Set([]schema.Conversation{{ID: "c1", Title: "T"}})
	st.ActiveID.Set("c1")

	ad.Start()
	defer ad.Stop()

	require.NoError(t, ad.Send(context.Background(), "question", ""))

	msgs := st.Messages.Get()
	require.Len(t, msgs, 2, "user message and assistant reply land in the store")
	assert.Equal(t, "question", msgs[0].Content)
	assert.Equal(t, "streamed reply", msgs[1].Content)

	convs := st.Conversations.Get()
	assert.Len(t, convs[0].Messages, 2, "the embedded list tracks the buffer")
}

func TestAdapterRebindsOnSelectionChange(t *testing.T) {
	ad, act, _ := newTestAdapter(t)

	st := act.Store()
	st.ActiveID.Set("c1")
	ad.Start()
	defer ad.Stop()
	require.Equal(t, "c1", ad.session.ID())

	st.ActiveID.Set("c2")
	assert.Equal(t, "c2", ad.session.ID())
	assert.Empty(t, ad.session.Messages(), "rebinding starts from an empty history")

	st.ActiveID.Set("")
	assert.Empty(t, ad.session.ID(), "clearing the selection clears the session")
}

func TestAdapterPushesLoadedHistory(t *testing.T) {
	ad, act, _ := newTestAdapter(t)

	st := act.Store()
	st.ActiveID.Set("c1")
	ad.Start()
	defer ad.Stop()

	history := []schema.Message{
		{ID: "m1", Role: schema.RoleUser, Content: "earlier"},
		{ID: "m2", Role: schema.RoleAssistant, Content: "reply"},
	}
	st.Messages.Set(history)

	assert.Equal(t, history, ad.session.Messages())
}

func TestAdapterNoFeedbackLoop(t *testing.T) {
	ad, act, srv := newTestAdapter(t)
	srv.StreamChunks = []string{"ok"}

	st := act.Store()
	st.Conversations.Set([]schema.Conversation{{ID: "c1", Title: "T"}})
	st.ActiveID.Set("c1")
	ad.Start()
	defer ad.Stop()

	commits := 0
	st.Messages.Subscribe(func([]schema.Message) { commits++ })

	require.NoError(t, ad.Send(context.Background(), "hi", ""))

	settled := commits
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, commits, "the session/store loop terminates")
}

func TestAdapterIgnoresInactiveConversationUpdates(t *testing.T) {
	ad, act, _ := newTestAdapter(t)

	st := act.Store()
	st.Conversations.Set([]schema.Conversation{{ID: "c1"}, {ID: "c2"}})
	st.ActiveID.Set("c1")
	ad.Start()
	defer ad.Stop()

	// A history commit for a non-active conversation must not reach
	// the session.
	act.UpdateMessages("c2", []schema.Message{{ID: "x", Role: schema.RoleUser, Content: "other"}})
	assert.Empty(t, ad.session.Messages())
}

func TestSameMessageIDs(t *testing.T) {
	a := []schema.Message{{ID: "1"}, {ID: "2"}}
	b := []schema.Message{{ID: "1"}, {ID: "2", Content: "different body"}}
	c := []schema.Message{{ID: "1"}, {ID: "3"}}

	assert.True(t, sameMessageIDs(a, b), "identity is by id, not content")
	assert.False(t, sameMessageIDs(a, c))
	assert.False(t, sameMessageIDs(a, a[:1]))
	assert.True(t, sameMessageIDs(nil, nil))
}
