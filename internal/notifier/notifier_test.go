package notifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagehashi-labs/arcadewatchd/internal/retrychan"
)

func readLED(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestLEDNotifierClearOnShutdown(t *testing.T) {
	dir := t.TempDir()
	red := filepath.Join(dir, "red")
	green := filepath.Join(dir, "green")
	require.NoError(t, os.WriteFile(red, []byte("1"), 0644))
	require.NoError(t, os.WriteFile(green, []byte("1"), 0644))

	n := NewLEDNotifier(red, green)
	require.NoError(t, n.clear())
	assert.Equal(t, "0", readLED(t, red))
	assert.Equal(t, "0", readLED(t, green))
}

func TestLEDNotifierBlinkSuccessEndsCleared(t *testing.T) {
	dir := t.TempDir()
	red := filepath.Join(dir, "red")
	green := filepath.Join(dir, "green")
	require.NoError(t, os.WriteFile(red, []byte("0"), 0644))
	require.NoError(t, os.WriteFile(green, []byte("0"), 0644))

	n := NewLEDNotifier(red, green)
	require.NoError(t, n.blinkSuccess(true))
	assert.Equal(t, "0", readLED(t, red))
	assert.Equal(t, "0", readLED(t, green))
}

func TestLEDNotifierIsHighPriorityOnlyForShutdown(t *testing.T) {
	n := NewLEDNotifier("", "")
	assert.False(t, n.IsHighPriority(Event{Kind: EventSuccess}))
	assert.False(t, n.IsHighPriority(Event{Kind: EventError}))
	assert.False(t, n.IsHighPriority(Event{Kind: EventEmergency}))
	assert.True(t, n.IsHighPriority(Event{Kind: EventStartShutdown}))
}

func TestLEDNotifierHandleRetriesOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	n := NewLEDNotifier(filepath.Join(dir, "nonexistent-dir", "red"), filepath.Join(dir, "nonexistent-dir", "green"))
	action := n.Handle(context.Background(), Event{Kind: EventSuccess, Quick: true})
	assert.Equal(t, retrychan.Retry, action)
}

func TestLogNotifierDoesNotPanic(t *testing.T) {
	n := NewLogNotifier()
	n.Success(true, "ok")
	n.Error("bad")
	n.Emergency("help")
	n.StartShutdown()
}
