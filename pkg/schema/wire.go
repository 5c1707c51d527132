package schema

import (
	"strings"
	"time"
)

// ConversationListItem is one record of GET /conversations/list. The
// backend has historically emitted both "name" and "title" for the
// display label, so both are accepted here.
type ConversationListItem struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	Title           string   `json:"title,omitempty"`
	LastMessageTime *float64 `json:"last_message_time,omitempty"`
}

// Normalize converts a list record into a Conversation with an empty
// message list. Message bodies are loaded lazily by a separate call, so
// the list endpoint never populates them. Title precedence: explicit
// title, then name, then the supplied default label.
func (it ConversationListItem) Normalize(defaultTitle string) Conversation {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = strings.TrimSpace(it.Name)
	}
	if title == "" {
		title = defaultTitle
	}
	c := Conversation{
		ID:       it.ID,
		Title:    title,
		Messages: []Message{},
	}
	if it.LastMessageTime != nil && *it.LastMessageTime > 0 {
		sec := int64(*it.LastMessageTime)
		nsec := int64((*it.LastMessageTime - float64(sec)) * float64(time.Second))
		c.LastMessageTime = time.Unix(sec, nsec)
	}
	return c
}

// WireMessage is a message as the server stores it: role and content
// only, no client id.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesResponse is the body of GET /conversations/{id}/messages.
type MessagesResponse struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []WireMessage `json:"messages"`
}

// CreateResponse is the body of POST /conversations/create.
type CreateResponse struct {
	ConversationID string `json:"conversation_id"`
}

// TitleResponse is the body of POST /conversations/{id}/generate-title.
// Detail carries a server-side note when the title is a fallback.
type TitleResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// ConfigDocument is the per-conversation config as the server returns
// it. All fields are optional; absent fields keep the client's current
// value on merge.
type ConfigDocument struct {
	ConversationID  string   `json:"conversation_id,omitempty"`
	ModelName       *string  `json:"model_name,omitempty"`
	SystemDirective *string  `json:"system_directive,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Title           *string  `json:"title,omitempty"`
	ToolWidth       *int     `json:"tool_width,omitempty"`
	ToolHeight      *int     `json:"tool_height,omitempty"`
	ToolPrompt      *string  `json:"tool_prompt,omitempty"`
}

// Merge overlays the document's present fields onto cur. Temperatures
// are clamped on the way in so an out-of-range server value can never
// round-trip back out.
func (d ConfigDocument) Merge(cur ChatConfig) ChatConfig {
	if d.ModelName != nil && *d.ModelName != "" {
		cur.ModelName = *d.ModelName
	}
	if d.SystemDirective != nil {
		cur.SystemDirective = *d.SystemDirective
	}
	if d.Temperature != nil {
		cur.Temperature = ClampTemperature(*d.Temperature)
	}
	if d.ToolWidth != nil {
		cur.ToolWidth = *d.ToolWidth
	}
	if d.ToolHeight != nil {
		cur.ToolHeight = *d.ToolHeight
	}
	if d.ToolPrompt != nil {
		cur.ToolPrompt = *d.ToolPrompt
	}
	return cur
}

// NormalizeMessages converts server messages into client messages,
// assigning fresh ids. Unknown roles are coerced to RoleData rather
// than dropped, so nothing the server stored silently disappears.
func NormalizeMessages(wire []WireMessage) []Message {
	out := make([]Message, 0, len(wire))
	for _, wm := range wire {
		role := Role(wm.Role)
		if !ValidRole(role) {
			role = RoleData
		}
		out = append(out, Message{
			ID:      NewMessageID(),
			Role:    role,
			Content: wm.Content,
		})
	}
	return out
}
