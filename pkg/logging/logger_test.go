package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestLoggerWritesSessionLog(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir, "sess-1")
	require.NoError(t, err)

	require.NoError(t, l.Info(CategoryConversation, "list_loaded", "", map[string]any{"count": 3}))
	require.NoError(t, l.Error(CategoryNetwork, "http_error", "boom", nil))
	require.NoError(t, l.Close())

	events := readEvents(t, filepath.Join(dir, "sessions", "sess-1.jsonl"))
	require.Len(t, events, 2)
	assert.Equal(t, "list_loaded", events[0].EventType)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, LevelInfo, events[0].Level)
	assert.EqualValues(t, 3, events[0].Details["count"])
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestLoggerDuplicatesErrors(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir, "sess-2")
	require.NoError(t, err)

	require.NoError(t, l.Warn(CategoryTitle, "trigger_failed", "nope", nil))
	require.NoError(t, l.Error(CategoryStream, "stream_error", "cut off", nil))
	require.NoError(t, l.Close())

	errs := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	require.Len(t, errs, 1, "only error-level events land in the shared error log")
	assert.Equal(t, "stream_error", errs[0].EventType)
}

func TestLoggerMinLevel(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir, "sess-3")
	require.NoError(t, err)

	require.NoError(t, l.Debug(CategoryBus, "suppressed", "", nil))
	l.SetMinLevel(LevelDebug)
	require.NoError(t, l.Debug(CategoryBus, "kept", "", nil))
	require.NoError(t, l.Close())

	events := readEvents(t, filepath.Join(dir, "sessions", "sess-3.jsonl"))
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].EventType)
}

func TestNopLoggerSafe(t *testing.T) {
	l := Nop()
	assert.NoError(t, l.Info(CategoryLifecycle, "ignored", "", nil))
	assert.NoError(t, l.Error(CategorySettings, "ignored", "", nil))
	assert.NoError(t, l.Close())
}
