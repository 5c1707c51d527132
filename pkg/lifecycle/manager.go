// Package lifecycle reconciles the mount-time list load, the address
// bar, and explicit user selection into a single "which conversation
// is active" state machine, keeping the address in sync without
// feedback loops.
package lifecycle

import (
	"context"
	"sync"

	"github.com/odvcencio/parley/pkg/actions"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
)

// Address abstracts wherever the active conversation id is exposed to
// the surrounding application: a URL query parameter in a browser
// shell, a state file or in-memory cell elsewhere. Set must not
// re-enter the manager; external changes come back through Sync.
type Address interface {
	// Get returns the currently addressed conversation id, "" for the
	// bare route.
	Get() string

	// Set rewrites the address. Implementations should use
	// non-disruptive navigation (no scroll reset in a browser).
	Set(id string)
}

// State of the conversation lifecycle.
type State string

const (
	StateNoConversation State = "no-conversation"
	StateActive         State = "conversation-active"
)

// Manager drives conversation selection. Reconciliation priority:
// an address naming a different conversation wins and loads its
// messages; otherwise an empty selection defaults to the first listed
// conversation; any selection change from a non-address signal is
// written back to the address.
type Manager struct {
	actions *actions.Actions
	addr    Address
	logger  *logging.Logger

	mu sync.Mutex
	// lastProcessed is the last address value this manager itself
	// handled, in either direction. Writing the address records the
	// value here first, so the write coming back through Sync is
	// recognized as our own and does not replay as an external change.
	lastProcessed string

	unsubscribe func()
}

// New creates a manager over the action layer and an address surface.
func New(act *actions.Actions, addr Address, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		actions: act,
		addr:    addr,
		logger:  logger,
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	if m.actions.Store().ActiveID.Get() == "" {
		return StateNoConversation
	}
	return StateActive
}

// Start performs the mount-time reconciliation: loads the list,
// honors the address if it names a conversation, and otherwise loads
// messages for whatever the list load selected. It also begins
// mirroring selection changes back into the address.
func (m *Manager) Start(ctx context.Context) error {
	st := m.actions.Store()

	// The address is read before the list load so the default
	// selection cannot shadow it.
	initial := m.addr.Get()

	if err := m.actions.LoadConversations(ctx); err != nil {
		m.logger.Warn(logging.CategoryLifecycle, "mount_list_failed", err.Error(), nil)
	}

	// Mirroring starts only once the winner between the address and the
	// default selection is known, so a default pick can never overwrite
	// an address that names another conversation.
	m.unsubscribe = st.ActiveID.Subscribe(m.onActiveChanged)

	var err error
	if initial != "" && initial != st.ActiveID.Get() {
		err = m.Sync(ctx, initial)
	} else if id := st.ActiveID.Get(); id != "" {
		err = m.actions.LoadMessages(ctx, id)
	}

	if id := st.ActiveID.Get(); id != m.addr.Get() {
		m.mu.Lock()
		m.lastProcessed = id
		m.mu.Unlock()
		m.addr.Set(id)
	}
	return err
}

// Stop detaches the manager from the store.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Sync applies an external address change. The address wins over the
// current selection: a different id becomes active and its messages
// load; an empty value clears the selection. Values the manager wrote
// itself are ignored, which is what breaks the rewrite feedback loop.
func (m *Manager) Sync(ctx context.Context, value string) error {
	m.mu.Lock()
	if value == m.lastProcessed {
		m.mu.Unlock()
		return nil
	}
	m.lastProcessed = value
	m.mu.Unlock()

	st := m.actions.Store()

	if value == "" {
		st.ActiveID.Set("")
		st.Messages.Set([]schema.Message{})
		m.logger.Info(logging.CategoryLifecycle, "address_cleared", "", nil)
		return nil
	}

	if value == st.ActiveID.Get() {
		return nil
	}

	m.logger.Info(logging.CategoryLifecycle, "address_selected", "", map[string]any{"id": value})
	st.ActiveID.Set(value)
	return m.actions.LoadMessages(ctx, value)
}

// Select applies an explicit user selection and loads its messages.
// The address is rewritten by the ActiveID subscription.
func (m *Manager) Select(ctx context.Context, id string) error {
	st := m.actions.Store()
	if id == st.ActiveID.Get() {
		return nil
	}
	st.ActiveID.Set(id)
	return m.actions.LoadMessages(ctx, id)
}

// onActiveChanged mirrors selection changes into the address. Changes
// the manager already processed (because the address itself drove
// them) are skipped; everything else (default selection, create,
// delete-reselect, user clicks) rewrites the address so back/forward
// and shareable links stay correct. Clearing the selection rewrites to
// the bare route.
func (m *Manager) onActiveChanged(id string) {
	m.mu.Lock()
	if id == m.lastProcessed {
		m.mu.Unlock()
		return
	}
	m.lastProcessed = id
	m.mu.Unlock()

	m.addr.Set(id)
}
