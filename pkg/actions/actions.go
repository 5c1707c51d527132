// Package actions implements the asynchronous write procedures that
// mediate between the backend and the reactive store. Every action
// follows the same shape: set its loading flag, clear its error slot,
// attempt the network call, commit normalized results on success or a
// defined fallback on failure, and always clear the loading flag on
// the way out.
package actions

import (
	"context"
	"sync"

	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/bus"
	"github.com/odvcencio/parley/pkg/config"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/sched"
	"github.com/odvcencio/parley/pkg/store"
)

// Actions owns the async orchestration for one conversation namespace.
// All state lives in the store; Actions holds no copies that could
// diverge.
type Actions struct {
	store  *store.Store
	client *backend.Client
	bus    bus.MessageBus
	clock  sched.Clock
	logger *logging.Logger
	titles config.TitlesConfig

	titleDebounce *sched.Debouncer

	mu             sync.Mutex
	titleTriggered map[string]bool
}

// New wires an action layer over the given collaborators. A nil bus
// disables broadcasts; a nil logger discards events.
func New(st *store.Store, client *backend.Client, b bus.MessageBus, clock sched.Clock, logger *logging.Logger, titles config.TitlesConfig) *Actions {
	if clock == nil {
		clock = sched.Real()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Actions{
		store:          st,
		client:         client,
		bus:            b,
		clock:          clock,
		logger:         logger,
		titles:         titles,
		titleDebounce:  sched.NewDebouncer(clock, titles.TriggerDelay),
		titleTriggered: make(map[string]bool),
	}
}

// Store returns the reactive store this action layer commits into.
func (a *Actions) Store() *store.Store {
	return a.store
}

// Client returns the backend client.
func (a *Actions) Client() *backend.Client {
	return a.client
}

// begin brackets an operation: clears the error slot, raises the
// loading flag, and returns the function that lowers it. Callers defer
// the result so the flag cannot be left stuck on an early return.
func (a *Actions) begin(op store.Operation) func() {
	a.store.ClearError(op)
	a.store.SetLoading(op, true)
	return func() { a.store.SetLoading(op, false) }
}

func (a *Actions) publish(ctx context.Context, subject string, event any) {
	if a.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, a.bus, subject, event); err != nil {
		a.logger.Warn(logging.CategoryBus, "publish_failed", err.Error(), map[string]any{
			"subject": subject,
		})
	}
}
