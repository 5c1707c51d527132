package actions

import (
	"context"

	"github.com/google/uuid"

	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/store"
)

// LoadConversations fetches the conversation list and commits it. When
// nothing is selected and the list is non-empty, the first conversation
// becomes active, selection only. Message loading stays with whichever
// signal caused the selection (the lifecycle manager), so a mount-time
// list load and an address-driven select cannot issue duplicate
// message requests.
func (a *Actions) LoadConversations(ctx context.Context) error {
	done := a.begin(store.OpConversations)
	defer done()

	list, err := a.client.ListConversations(ctx)
	if err != nil {
		a.store.SetError(store.OpConversations, err.Error())
		a.store.Conversations.Set([]schema.Conversation{})
		a.logger.Error(logging.CategoryConversation, "list_failed", err.Error(), nil)
		return err
	}

	a.commitList(list)

	if a.store.ActiveID.Get() == "" && len(list) > 0 {
		a.store.ActiveID.Set(list[0].ID)
	}

	a.logger.Info(logging.CategoryConversation, "list_loaded", "", map[string]any{
		"count": len(list),
	})
	return nil
}

// commitList replaces the conversation list, carrying over embedded
// message lists the list endpoint does not return. Without this a
// title-driven refresh would wipe every loaded history.
func (a *Actions) commitList(list []schema.Conversation) {
	prev := a.store.Conversations.Get()
	byID := make(map[string][]schema.Message, len(prev))
	for _, c := range prev {
		if len(c.Messages) > 0 {
			byID[c.ID] = c.Messages
		}
	}
	for i, c := range list {
		if len(c.Messages) == 0 {
			if kept, ok := byID[c.ID]; ok {
				list[i].Messages = kept
			}
		}
	}
	a.store.Conversations.Set(list)
}

// CreateConversation asks the server for a new conversation and makes
// it active with an empty message buffer. When the create endpoint is
// absent (404), a locally-unique id is synthesized instead so the UI
// stays usable against a partially available backend.
func (a *Actions) CreateConversation(ctx context.Context) (string, error) {
	done := a.begin(store.OpCreating)
	defer done()

	id, err := a.client.CreateConversation(ctx)
	if err != nil {
		if !perrors.IsCode(err, perrors.ErrCodeNotFound) {
			a.store.SetError(store.OpCreating, err.Error())
			a.logger.Error(logging.CategoryConversation, "create_failed", err.Error(), nil)
			return "", err
		}
		id = uuid.NewString()
		a.logger.Warn(logging.CategoryConversation, "create_endpoint_missing", "synthesized local id", map[string]any{
			"id": id,
		})
	}

	conv := schema.Conversation{
		ID:       id,
		Title:    a.client.Namespace().DefaultTitle(),
		Messages: []schema.Message{},
	}

	cur := a.store.Conversations.Get()
	next := make([]schema.Conversation, 0, len(cur)+1)
	next = append(next, conv)
	next = append(next, cur...)
	a.store.Conversations.Set(next)

	a.store.ActiveID.Set(id)
	a.store.Messages.Set([]schema.Message{})

	a.logger.Info(logging.CategoryConversation, "created", "", map[string]any{"id": id})
	return id, nil
}

// DeleteConversation removes a conversation, tolerating 404 as
// already-gone. Deleting the active conversation promotes the first
// remaining one (and loads its messages); deleting the last clears the
// selection entirely.
func (a *Actions) DeleteConversation(ctx context.Context, id string) error {
	done := a.begin(store.OpDeleting)
	defer done()

	if err := a.client.DeleteConversation(ctx, id); err != nil {
		if !perrors.IsCode(err, perrors.ErrCodeNotFound) {
			a.store.SetError(store.OpDeleting, err.Error())
			a.logger.Error(logging.CategoryConversation, "delete_failed", err.Error(), map[string]any{"id": id})
			return err
		}
	}

	wasActive := a.store.ActiveID.Get() == id
	a.store.RemoveConversation(id)

	a.mu.Lock()
	delete(a.titleTriggered, id)
	a.mu.Unlock()
	a.titleDebounce.Cancel(id)

	if wasActive {
		remaining := a.store.Conversations.Get()
		if len(remaining) > 0 {
			next := remaining[0].ID
			a.store.ActiveID.Set(next)
			if err := a.LoadMessages(ctx, next); err != nil {
				a.logger.Warn(logging.CategoryConversation, "reselect_load_failed", err.Error(), map[string]any{"id": next})
			}
		} else {
			a.store.ActiveID.Set("")
			a.store.Messages.Set([]schema.Message{})
		}
	}

	a.logger.Info(logging.CategoryConversation, "deleted", "", map[string]any{"id": id})
	return nil
}
