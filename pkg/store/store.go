package store

import (
	"github.com/odvcencio/parley/pkg/schema"
)

// Operation names the async actions whose loading and error state the
// store tracks. A slot's loading flag is true for exactly the lifetime
// of its action, never left stuck on early return.
type Operation string

const (
	OpConversations Operation = "conversations"
	OpMessages      Operation = "messages"
	OpCreating      Operation = "creating"
	OpDeleting      Operation = "deleting"
	OpSaving        Operation = "saving"
	OpGenerating    Operation = "generating"
	OpSettings      Operation = "settings"
)

// LoadingState maps operations to in-flight flags. Values are replaced
// wholesale on every change; callers never mutate a returned map.
type LoadingState map[Operation]bool

// ErrorState maps operations to their most recent error message, empty
// when the slot is clear.
type ErrorState map[Operation]string

// Store is the client's single source of truth. ActiveID is a weak
// reference: it may name a conversation not (yet) present in
// Conversations, which derived lookups treat as "no selection".
type Store struct {
	Conversations *Atom[[]schema.Conversation]
	ActiveID      *Atom[string]
	Messages      *Atom[[]schema.Message]
	Config        *Atom[schema.ChatConfig]
	Settings      *Atom[schema.Settings]
	Loading       *Atom[LoadingState]
	Errors        *Atom[ErrorState]
}

// New creates an empty store.
func New() *Store {
	return &Store{
		Conversations: NewAtom([]schema.Conversation{}),
		ActiveID:      NewAtom(""),
		Messages:      NewAtom([]schema.Message{}),
		Config:        NewAtom(schema.DefaultChatConfig()),
		Settings:      NewAtom(schema.Settings{}),
		Loading:       NewAtom(LoadingState{}),
		Errors:        NewAtom(ErrorState{}),
	}
}

// ActiveConversation resolves ActiveID against the conversation list.
// A dangling or empty id yields ok=false, never a panic: an id the
// list does not contain is a legal "selection pending load" state.
func (s *Store) ActiveConversation() (schema.Conversation, bool) {
	id := s.ActiveID.Get()
	if id == "" {
		return schema.Conversation{}, false
	}
	for _, c := range s.Conversations.Get() {
		if c.ID == id {
			return c, true
		}
	}
	return schema.Conversation{}, false
}

// CanSend reports whether a new chat message may be sent: a
// conversation is selected and no lifecycle operation that would
// invalidate the target is in flight.
func (s *Store) CanSend() bool {
	if s.ActiveID.Get() == "" {
		return false
	}
	loading := s.Loading.Get()
	return !loading[OpMessages] && !loading[OpCreating] && !loading[OpDeleting]
}

// IsLoading reports the loading flag for op.
func (s *Store) IsLoading(op Operation) bool {
	return s.Loading.Get()[op]
}

// SetLoading sets op's loading flag, replacing the map wholesale.
func (s *Store) SetLoading(op Operation, v bool) {
	cur := s.Loading.Get()
	next := make(LoadingState, len(cur)+1)
	for k, val := range cur {
		next[k] = val
	}
	next[op] = v
	s.Loading.Set(next)
}

// ErrorFor returns op's recorded error message, empty when clear.
func (s *Store) ErrorFor(op Operation) string {
	return s.Errors.Get()[op]
}

// SetError records an error message for op.
func (s *Store) SetError(op Operation, msg string) {
	cur := s.Errors.Get()
	next := make(ErrorState, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[op] = msg
	s.Errors.Set(next)
}

// ClearError clears op's error slot.
func (s *Store) ClearError(op Operation) {
	cur := s.Errors.Get()
	if cur[op] == "" {
		return
	}
	next := make(ErrorState, len(cur))
	for k, v := range cur {
		if k != op {
			next[k] = v
		}
	}
	s.Errors.Set(next)
}

// ReplaceConversation swaps the entry with the given id for the result
// of fn, copying the list so no committed slice is mutated in place.
// It reports whether the id was found.
func (s *Store) ReplaceConversation(id string, fn func(schema.Conversation) schema.Conversation) bool {
	cur := s.Conversations.Get()
	next := make([]schema.Conversation, len(cur))
	copy(next, cur)
	for i, c := range next {
		if c.ID == id {
			next[i] = fn(c)
			s.Conversations.Set(next)
			return true
		}
	}
	return false
}

// RemoveConversation deletes the entry with the given id, reporting
// whether it was present.
func (s *Store) RemoveConversation(id string) bool {
	cur := s.Conversations.Get()
	next := make([]schema.Conversation, 0, len(cur))
	found := false
	for _, c := range cur {
		if c.ID == id {
			found = true
			continue
		}
		next = append(next, c)
	}
	if found {
		s.Conversations.Set(next)
	}
	return found
}
