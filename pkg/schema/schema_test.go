package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTemperature(t *testing.T) {
	assert.Equal(t, 0.0, ClampTemperature(-1))
	assert.Equal(t, 2.0, ClampTemperature(3.5))
	assert.Equal(t, 0.7, ClampTemperature(0.7))
	assert.Equal(t, 0.0, ClampTemperature(0))
	assert.Equal(t, 2.0, ClampTemperature(2))
}

func TestIsPlaceholderTitle(t *testing.T) {
	placeholders := []string{
		"",
		"   ",
		"New Conversation",
		"ASCII Chat",
		"Chat a1b2c3d4",
		"ASCII Chat deadbeef",
		"Chat 1234-abc",
		"abc",
	}
	for _, title := range placeholders {
		assert.True(t, IsPlaceholderTitle(title), "expected placeholder: %q", title)
	}

	real := []string{
		"Debugging a goroutine leak",
		"Chat about cats",
		"Chat a1b2c3d4e5", // nine hex chars, not an id stub
		"Maps",
	}
	for _, title := range real {
		assert.False(t, IsPlaceholderTitle(title), "expected real title: %q", title)
	}
}

func TestListItemNormalize(t *testing.T) {
	ts := 1700000000.5
	it := ConversationListItem{ID: "c1", Name: "fallback", Title: "Real Title", LastMessageTime: &ts}
	c := it.Normalize(DefaultTitle)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "Real Title", c.Title)
	require.NotNil(t, c.Messages)
	assert.Empty(t, c.Messages)
	assert.Equal(t, int64(1700000000), c.LastMessageTime.Unix())

	c = ConversationListItem{ID: "c2", Name: "only name"}.Normalize(DefaultTitle)
	assert.Equal(t, "only name", c.Title)
	assert.True(t, c.LastMessageTime.IsZero())

	c = ConversationListItem{ID: "c3"}.Normalize(ASCIIDefaultTitle)
	assert.Equal(t, ASCIIDefaultTitle, c.Title)
}

func TestConfigDocumentMerge(t *testing.T) {
	cur := DefaultChatConfig()

	model := "openai/gpt-4o-mini"
	temp := 9.0
	directive := "be brief"
	doc := ConfigDocument{
		ModelName:       &model,
		SystemDirective: &directive,
		Temperature:     &temp,
	}

	merged := doc.Merge(cur)
	assert.Equal(t, model, merged.ModelName)
	assert.Equal(t, directive, merged.SystemDirective)
	assert.Equal(t, TempMax, merged.Temperature)

	// Absent fields keep the current value.
	merged2 := ConfigDocument{}.Merge(merged)
	assert.Equal(t, merged, merged2)

	// An empty model name never clobbers a real one.
	empty := ""
	merged3 := ConfigDocument{ModelName: &empty}.Merge(merged)
	assert.Equal(t, model, merged3.ModelName)
}

func TestNormalizeMessages(t *testing.T) {
	wire := []WireMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool_result", Content: "{}"},
	}
	msgs := NormalizeMessages(wire)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, RoleData, msgs[2].Role, "unknown roles coerce to data, not dropped")

	seen := map[string]bool{}
	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
		assert.False(t, seen[m.ID], "ids must be unique")
		seen[m.ID] = true
	}
}

func TestNewMessageIDUnique(t *testing.T) {
	a, b := NewMessageID(), NewMessageID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
