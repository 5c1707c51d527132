package chat

import (
	"context"

	"github.com/odvcencio/parley/pkg/actions"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
)

// Adapter keeps a Session and the reactive store converged:
//
//   - session → store: every session mutation for the currently active
//     conversation is committed through the action layer's
//     UpdateMessages, so the title-trigger policy applies to streamed
//     exchanges the same as to loaded ones.
//   - store → session: when the active conversation changes, the
//     session is rebound and picks up the new history once it loads;
//     clearing the selection clears the session.
//
// The loop is broken structurally: history pushed into the session
// does not fire the session's change observer, and a store commit that
// matches the session's current list is not pushed back.
type Adapter struct {
	session *Session
	actions *actions.Actions
	logger  *logging.Logger

	unsubActive   func()
	unsubMessages func()
}

// NewAdapter wires a session to an action layer.
func NewAdapter(session *Session, act *actions.Actions, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Adapter{
		session: session,
		actions: act,
		logger:  logger,
	}
}

// Start attaches the synchronization in both directions and binds the
// session to whatever is currently active.
func (ad *Adapter) Start() {
	st := ad.actions.Store()

	ad.session.SetOnChange(func(convID string, msgs []schema.Message) {
		if st.ActiveID.Get() == convID {
			ad.actions.UpdateMessages(convID, msgs)
		}
	})
	ad.session.SetOnError(func(convID string, err error) {
		ad.logger.Error(logging.CategoryStream, "stream_error", err.Error(), map[string]any{
			"conversation": convID,
		})
	})

	ad.unsubActive = st.ActiveID.Subscribe(func(id string) {
		if id == "" {
			ad.session.Clear()
			return
		}
		if id != ad.session.ID() {
			ad.session.Reset(id, nil)
		}
	})

	ad.unsubMessages = st.Messages.Subscribe(func(msgs []schema.Message) {
		id := st.ActiveID.Get()
		if id == "" || id != ad.session.ID() {
			return
		}
		if ad.session.IsStreaming() {
			return
		}
		if sameMessageIDs(ad.session.Messages(), msgs) {
			return
		}
		ad.session.SetHistory(msgs)
	})

	if id := st.ActiveID.Get(); id != "" {
		ad.session.Reset(id, st.Messages.Get())
	}
}

// Stop detaches the adapter.
func (ad *Adapter) Stop() {
	if ad.unsubActive != nil {
		ad.unsubActive()
		ad.unsubActive = nil
	}
	if ad.unsubMessages != nil {
		ad.unsubMessages()
		ad.unsubMessages = nil
	}
	ad.session.SetOnChange(nil)
	ad.session.SetOnError(nil)
}

// Send forwards to the session.
func (ad *Adapter) Send(ctx context.Context, content, toolHint string) error {
	return ad.session.Send(ctx, content, toolHint)
}

func sameMessageIDs(a, b []schema.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
