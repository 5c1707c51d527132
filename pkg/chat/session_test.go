package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/backendtest"
	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/schema"
)

func newTestSession(t *testing.T) (*Session, *backendtest.Server) {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)
	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)
	return NewSession(client, nil), srv
}

func TestSendRequiresBinding(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.Send(context.Background(), "hello", "")
	assert.True(t, perrors.IsCode(err, perrors.ErrCodePreconditionFailed))
}

func TestSendStreamsAssistantReply(t *testing.T) {
	s, srv := newTestSession(t)
	srv.StreamChunks = []string{"Hi ", "there!"}
	s.Reset("c1", nil)

	var updates [][]schema.Message
	s.SetOnChange(func(convID string, msgs []schema.Message) {
		assert.Equal(t, "c1", convID)
		updates = append(updates, msgs)
	})

	require.NoError(t, s.Send(context.Background(), "hello", ""))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, schema.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there!", msgs[1].Content)

	require.NotEmpty(t, updates)
	assert.Len(t, updates[0], 1, "first update carries just the user message")
	last := updates[len(updates)-1]
	assert.Equal(t, "Hi there!", last[len(last)-1].Content)
	assert.False(t, s.IsStreaming())
}

func TestSendStreamFailure(t *testing.T) {
	s, srv := newTestSession(t)
	srv.ChatStatus = 502
	s.Reset("c1", nil)

	var streamErr error
	s.SetOnError(func(convID string, err error) { streamErr = err })

	err := s.Send(context.Background(), "hello", "")
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeStreamFailure))
	assert.Error(t, streamErr)

	// The user message stays; failures never roll back.
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.False(t, s.IsStreaming())
}

func TestSetHistory(t *testing.T) {
	s, _ := newTestSession(t)
	s.Reset("c1", nil)

	fired := false
	s.SetOnChange(func(string, []schema.Message) { fired = true })

	history := []schema.Message{{ID: "m1", Role: schema.RoleUser, Content: "old"}}
	s.SetHistory(history)

	assert.Equal(t, history, s.Messages())
	assert.False(t, fired, "history replacement does not echo through the change observer")
}

func TestResetRebinds(t *testing.T) {
	s, _ := newTestSession(t)
	s.Reset("c1", []schema.Message{{ID: "m1", Role: schema.RoleUser, Content: "a"}})
	require.Len(t, s.Messages(), 1)

	s.Reset("c2", nil)
	assert.Equal(t, "c2", s.ID())
	assert.Empty(t, s.Messages())

	s.Clear()
	assert.Empty(t, s.ID())
}

func TestMessagesReturnsSnapshot(t *testing.T) {
	s, _ := newTestSession(t)
	s.Reset("c1", []schema.Message{{ID: "m1", Role: schema.RoleUser, Content: "a"}})

	snap := s.Messages()
	snap[0].Content = "mutated"

	assert.Equal(t, "a", s.Messages()[0].Content)
}

func TestSendUsesConfig(t *testing.T) {
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)
	client := backend.NewClient(srv.URL(), backend.NamespaceNormal)

	cfg := schema.ChatConfig{ModelName: "test/model", Temperature: 0.3}
	s := NewSession(client, func() schema.ChatConfig { return cfg })
	s.Reset("c1", nil)

	require.NoError(t, s.Send(context.Background(), "hello", ""))
	assert.Equal(t, 1, srv.CountRequests("/chat"))
}
