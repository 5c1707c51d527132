// Package chat wraps the token-streaming exchange with the backend in
// a session keyed by conversation id, and bridges that session with
// the reactive store in both directions without feedback loops.
package chat

import (
	"context"
	"sync"

	"github.com/odvcencio/parley/pkg/backend"
	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/schema"
)

// Session is a streaming chat session bound to one conversation at a
// time. It owns its message list; observers receive a snapshot after
// every mutation. Streaming failures surface through the error
// callback and never roll back messages already reported.
type Session struct {
	client   *backend.Client
	configFn func() schema.ChatConfig

	mu             sync.Mutex
	conversationID string
	messages       []schema.Message
	streaming      bool

	onChange func(convID string, msgs []schema.Message)
	onError  func(convID string, err error)
}

// NewSession creates a session over the given client. configFn is
// consulted at send time for the model parameters.
func NewSession(client *backend.Client, configFn func() schema.ChatConfig) *Session {
	if configFn == nil {
		configFn = schema.DefaultChatConfig
	}
	return &Session{
		client:   client,
		configFn: configFn,
	}
}

// SetOnChange registers the observer called after every message-list
// mutation the session itself performs. History replacement via Reset
// or SetHistory does not fire it; that data already came from outside.
func (s *Session) SetOnChange(fn func(convID string, msgs []schema.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetOnError registers the streaming error observer.
func (s *Session) SetOnError(fn func(convID string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// ID returns the bound conversation id, "" when unbound.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a snapshot of the session's message list.
func (s *Session) Messages() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IsStreaming reports whether a send is in flight.
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Reset rebinds the session to a conversation, replacing its message
// list with the given history. Any in-flight stream for the previous
// binding is orphaned: its remaining chunks are dropped at commit time.
func (s *Session) Reset(id string, history []schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
	s.messages = make([]schema.Message, len(history))
	copy(s.messages, history)
	s.streaming = false
}

// Clear unbinds the session and empties its messages.
func (s *Session) Clear() {
	s.Reset("", nil)
}

// SetHistory replaces the message list without rebinding. Ignored
// while a stream is in flight so a background reload cannot tear the
// partial assistant message out from under it.
func (s *Session) SetHistory(history []schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return
	}
	s.messages = make([]schema.Message, len(history))
	copy(s.messages, history)
}

// Send appends a user message and streams the assistant's reply,
// reporting the growing list through the change observer as tokens
// arrive. toolHint passes through to the backend unmodified. Send
// blocks until the stream ends.
func (s *Session) Send(ctx context.Context, content, toolHint string) error {
	s.mu.Lock()
	if s.conversationID == "" {
		s.mu.Unlock()
		return perrors.New(perrors.ErrCodePreconditionFailed, "session not bound to a conversation")
	}
	if s.streaming {
		s.mu.Unlock()
		return perrors.New(perrors.ErrCodePreconditionFailed, "a send is already in flight")
	}
	s.streaming = true
	id := s.conversationID

	s.messages = append(s.snapshotLocked(), schema.Message{
		ID:      schema.NewMessageID(),
		Role:    schema.RoleUser,
		Content: content,
	})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.fireChange(id, snapshot)

	cfg := s.configFn()
	req := backend.ChatRequest{
		ConversationID:  id,
		ModelName:       cfg.ModelName,
		SystemDirective: cfg.SystemDirective,
		Temperature:     cfg.Temperature,
		Messages:        toWire(snapshot),
		ToolWidth:       cfg.ToolWidth,
		ToolHeight:      cfg.ToolHeight,
		ToolPrompt:      cfg.ToolPrompt,
		ToolHint:        toolHint,
	}

	chunks, errs := s.client.StreamChat(ctx, req)

	assistant := schema.Message{
		ID:   schema.NewMessageID(),
		Role: schema.RoleAssistant,
	}
	appended := false

	for chunk := range chunks {
		s.mu.Lock()
		if s.conversationID != id {
			// Rebound mid-stream; the rest of this reply belongs to
			// nobody.
			s.mu.Unlock()
			break
		}
		assistant.Content += chunk
		if !appended {
			s.messages = append(s.messages, assistant)
			appended = true
		} else {
			s.messages[len(s.messages)-1] = assistant
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.fireChange(id, snap)
	}

	err := <-errs

	s.mu.Lock()
	if s.conversationID == id {
		s.streaming = false
	}
	s.mu.Unlock()

	if err != nil {
		wrapped := perrors.Wrap(err, perrors.ErrCodeStreamFailure, "chat stream failed").
			WithContext("conversation", id)
		s.fireError(id, wrapped)
		return wrapped
	}
	return nil
}

func (s *Session) snapshotLocked() []schema.Message {
	out := make([]schema.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) fireChange(id string, msgs []schema.Message) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(id, msgs)
	}
}

func (s *Session) fireError(id string, err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(id, err)
	}
}

func toWire(msgs []schema.Message) []schema.WireMessage {
	out := make([]schema.WireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, schema.WireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
