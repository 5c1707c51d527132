// Package bus provides the fire-and-forget broadcast channel that
// decouples the settings surface from the conversation-list side of the
// client. Saving settings publishes an event; the title batch processor
// and any interested list view subscribe. The default implementation is
// in-memory; a NATS option exists for multi-process setups.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Subjects published by the parley client. Wildcard "parley.>" catches
// everything.
const (
	SubjectSettingsSaved   = "parley.settings.saved"
	SubjectTitlesRefreshed = "parley.titles.refreshed"
)

// SettingsSavedEvent is broadcast after a successful settings write.
// Subscribers decide for themselves whether the change affects them.
type SettingsSavedEvent struct {
	CentralModel   string    `json:"central_model"`
	PromptChanged  bool      `json:"prompt_changed"`
	ModelChanged   bool      `json:"model_changed"`
	SavedAt        time.Time `json:"saved_at"`
	TriggerRefresh bool      `json:"trigger_refresh"`
}

// TitlesRefreshedEvent is broadcast when a title regeneration batch run
// completes, with per-item outcomes for any interested view.
type TitlesRefreshedEvent struct {
	Namespace  string             `json:"namespace"`
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Results    []TitleItemOutcome `json:"results"`
}

// TitleItemOutcome records one conversation's regeneration result.
type TitleItemOutcome struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title,omitempty"`
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
}

// MessageBus is the broadcast interface. Implementations must be safe
// for concurrent use. Publish returns immediately; delivery is
// best-effort and asynchronous.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The handler runs on the subscription's own goroutine.
	// Supports wildcards: "parley.*" matches one token, "parley.>" any tail.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(msg *Message)

// Message represents an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}

// PublishJSON marshals v and publishes it on subject.
func PublishJSON(ctx context.Context, b MessageBus, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Publish(ctx, subject, data)
}
