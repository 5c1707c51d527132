package actions

import (
	"context"

	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/store"
)

// GenerateTitle asks the server to (re)compute a conversation's title.
// The new title is committed into the list immediately; a delayed full
// list refresh then reconciles any other server-derived fields.
func (a *Actions) GenerateTitle(ctx context.Context, id string) error {
	done := a.begin(store.OpGenerating)
	defer done()

	title, err := a.client.GenerateTitle(ctx, id)
	if err != nil {
		a.store.SetError(store.OpGenerating, err.Error())
		a.logger.Error(logging.CategoryTitle, "generate_failed", err.Error(), map[string]any{"id": id})
		return err
	}

	if title != "" {
		a.store.ReplaceConversation(id, func(c schema.Conversation) schema.Conversation {
			c.Title = title
			return c
		})
	}

	a.logger.Info(logging.CategoryTitle, "generated", title, map[string]any{"id": id})

	a.clock.AfterFunc(a.titles.RefreshDelay, func() {
		if err := a.LoadConversations(context.Background()); err != nil {
			a.logger.Warn(logging.CategoryTitle, "refresh_failed", err.Error(), nil)
		}
	})

	return nil
}

// ResetTitleTrigger forgets that a conversation already triggered
// automatic title generation. Used when a regenerated title comes back
// as a placeholder again.
func (a *Actions) ResetTitleTrigger(id string) {
	a.mu.Lock()
	delete(a.titleTriggered, id)
	a.mu.Unlock()
}
