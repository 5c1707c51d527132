// Package schema defines the wire types exchanged with the conversation
// backend and the normalization rules that turn loosely-shaped server
// payloads into values the rest of the client can trust.
package schema

import (
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleData      Role = "data"
)

// ValidRole reports whether r is one of the supported roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleData:
		return true
	}
	return false
}

// Temperature bounds enforced before any config write.
const (
	TempMin = 0.0
	TempMax = 2.0
)

// Defaults mirrored from the backend's own fallbacks.
const (
	DefaultModel       = "anthropic/claude-3.5-haiku"
	DefaultTemperature = 0.7
	DefaultTitle       = "New Conversation"
	ASCIIDefaultTitle  = "ASCII Chat"
)

// Message is a single conversation message. IDs are client-generated;
// messages deserialized from the server get a fresh ID on ingest.
// Messages are immutable once created: updates replace whole lists.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is one entry in the conversation list. Entries are
// replaced wholesale on update; nothing mutates a Conversation in place
// once it is committed to the store.
type Conversation struct {
	ID              string
	Title           string
	Messages        []Message
	LastMessageTime time.Time // zero when the server reported none
}

// ChatConfig is the per-conversation model configuration. The tool
// fields only carry meaning on the ASCII-art conversation class and
// stay zero elsewhere.
type ChatConfig struct {
	ModelName       string  `json:"model_name"`
	SystemDirective string  `json:"system_directive"`
	Temperature     float64 `json:"temperature"`
	ToolWidth       int     `json:"tool_width,omitempty"`
	ToolHeight      int     `json:"tool_height,omitempty"`
	ToolPrompt      string  `json:"tool_prompt,omitempty"`
}

// DefaultChatConfig returns the config used before the server has
// reported one.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		ModelName:   DefaultModel,
		Temperature: DefaultTemperature,
	}
}

// Settings is the application-wide settings document. APIKey is
// write-only: the server reports APIKeyConfigured instead of echoing
// the key back.
type Settings struct {
	CentralModel          string `json:"central_model"`
	TitleGenerationPrompt string `json:"title_generation_prompt,omitempty"`
	APIKey                string `json:"api_key,omitempty"`
	APIKeyConfigured      bool   `json:"api_key_configured,omitempty"`
}

// ClampTemperature forces t into [TempMin, TempMax].
func ClampTemperature(t float64) float64 {
	if t < TempMin {
		return TempMin
	}
	if t > TempMax {
		return TempMax
	}
	return t
}

// idStubTitle matches the backend's fallback titles, which embed an
// eight character fragment of the conversation id.
var idStubTitle = regexp.MustCompile(`^(ASCII )?Chat [0-9a-fA-F-]{8}$`)

// IsPlaceholderTitle reports whether a title is still "not yet
// meaningful": the default labels, an id-derived stub, or too short to
// describe anything. Placeholder titles are eligible for automatic
// regeneration.
func IsPlaceholderTitle(title string) bool {
	t := strings.TrimSpace(title)
	if t == "" || t == DefaultTitle || t == ASCIIDefaultTitle {
		return true
	}
	if idStubTitle.MatchString(t) {
		return true
	}
	return len(t) < 4
}

// NewMessageID returns a fresh client-side message id. ULIDs keep ids
// unique and roughly ordered by creation time, which makes logs easier
// to follow.
func NewMessageID() string {
	return ulid.Make().String()
}
