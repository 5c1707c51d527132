package actions

import (
	"context"

	"github.com/odvcencio/parley/pkg/backend"
	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/store"
)

// LoadMessages fetches the history for a conversation and commits it.
// A 404 means the conversation exists but has no history yet: the
// committed list is empty and no error is recorded. Other failures
// commit an empty list and record the error. Commits are skipped when
// the conversation is no longer the active one, so a slow response for
// a superseded selection can never clobber the buffer.
func (a *Actions) LoadMessages(ctx context.Context, id string) error {
	done := a.begin(store.OpMessages)
	defer done()

	msgs, err := a.client.GetMessages(ctx, id)
	if err != nil {
		if perrors.IsCode(err, perrors.ErrCodeNotFound) {
			msgs = []schema.Message{}
			err = nil
		} else {
			a.store.SetError(store.OpMessages, err.Error())
			a.logger.Error(logging.CategoryConversation, "messages_failed", err.Error(), map[string]any{"id": id})
			msgs = []schema.Message{}
		}
	}

	if a.store.ActiveID.Get() == id {
		a.store.Messages.Set(msgs)
	}
	a.store.ReplaceConversation(id, func(c schema.Conversation) schema.Conversation {
		c.Messages = msgs
		return c
	})

	if err == nil {
		return a.LoadConfig(ctx, id)
	}
	return err
}

// LoadConfig fetches the per-conversation configuration. Absence is
// non-fatal: the current config is silently retained so the UI never
// blocks on this call.
func (a *Actions) LoadConfig(ctx context.Context, id string) error {
	doc, err := a.client.GetConfig(ctx, id)
	if err != nil {
		a.logger.Debug(logging.CategoryConversation, "config_unavailable", err.Error(), map[string]any{"id": id})
		return nil
	}

	a.store.Config.Set(doc.Merge(a.store.Config.Get()))
	return nil
}

// SaveConfig writes the current config for the active conversation.
// It fails with ErrNoActiveConversation, without any network call,
// when nothing is selected. On success the config is reloaded so the
// store reflects exactly what the server persisted rather than an
// optimistic echo.
func (a *Actions) SaveConfig(ctx context.Context) error {
	id := a.store.ActiveID.Get()
	if id == "" {
		return perrors.ErrNoActiveConversation
	}

	done := a.begin(store.OpSaving)
	defer done()

	cfg := a.store.Config.Get()
	temp := schema.ClampTemperature(cfg.Temperature)

	doc := schema.ConfigDocument{
		ConversationID:  id,
		ModelName:       &cfg.ModelName,
		SystemDirective: &cfg.SystemDirective,
		Temperature:     &temp,
	}
	if a.client.Namespace() == backend.NamespaceASCII {
		doc.ToolWidth = &cfg.ToolWidth
		doc.ToolHeight = &cfg.ToolHeight
		doc.ToolPrompt = &cfg.ToolPrompt
	}

	if err := a.client.SaveConfig(ctx, doc); err != nil {
		a.store.SetError(store.OpSaving, err.Error())
		a.logger.Error(logging.CategoryConversation, "config_save_failed", err.Error(), map[string]any{"id": id})
		return err
	}

	return a.LoadConfig(ctx, id)
}

// UpdateMessages is the synchronization point between a streaming chat
// session and the store: it commits the new array into the message
// buffer (when the conversation is active) and into the conversation's
// embedded list, then evaluates the title-trigger policy.
func (a *Actions) UpdateMessages(convID string, msgs []schema.Message) {
	committed := make([]schema.Message, len(msgs))
	copy(committed, msgs)

	if a.store.ActiveID.Get() == convID {
		a.store.Messages.Set(committed)
	}
	a.store.ReplaceConversation(convID, func(c schema.Conversation) schema.Conversation {
		c.Messages = committed
		return c
	})

	a.maybeTriggerTitle(convID, len(committed))
}

// maybeTriggerTitle schedules one debounced title generation when the
// conversation still has a placeholder title and its message count sits
// inside the configured window. The lower bound avoids titling before
// there is context; the upper bound stops long conversations from
// regenerating forever. A conversation triggers at most once.
func (a *Actions) maybeTriggerTitle(convID string, count int) {
	if count < a.titles.TriggerMin || count > a.titles.TriggerMax {
		return
	}

	conv, ok := a.findConversation(convID)
	if !ok || !schema.IsPlaceholderTitle(conv.Title) {
		return
	}

	a.mu.Lock()
	if a.titleTriggered[convID] {
		a.mu.Unlock()
		return
	}
	a.titleTriggered[convID] = true
	a.mu.Unlock()

	a.logger.Debug(logging.CategoryTitle, "trigger_scheduled", "", map[string]any{
		"id":    convID,
		"count": count,
	})

	// The delay lets server-side persistence catch up before the
	// title model reads the history.
	a.titleDebounce.Trigger(convID, func() {
		if err := a.GenerateTitle(context.Background(), convID); err != nil {
			a.logger.Warn(logging.CategoryTitle, "trigger_failed", err.Error(), map[string]any{"id": convID})
		}
	})
}

func (a *Actions) findConversation(id string) (schema.Conversation, bool) {
	for _, c := range a.store.Conversations.Get() {
		if c.ID == id {
			return c, true
		}
	}
	return schema.Conversation{}, false
}
