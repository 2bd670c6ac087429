package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagehashi-labs/arcadewatchd/internal/orchestrator"
)

type fakeOrch struct {
	mu     sync.Mutex
	events []orchestrator.Event
}

func (f *fakeOrch) Send(e orchestrator.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeOrch) snapshot() []orchestrator.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]orchestrator.Event, len(f.events))
	copy(out, f.events)
	return out
}

func TestIsSaveExt(t *testing.T) {
	assert.True(t, isSaveExt(".srm"))
	assert.True(t, isSaveExt(".state"))
	assert.True(t, isSaveExt(".state0"))
	assert.True(t, isSaveExt(".state12"))
	assert.False(t, isSaveExt(".state.auto"))
	assert.True(t, isSaveExt(".sav"))
	assert.False(t, isSaveExt(".png"))
}

func TestBootstrapScanEmitsPreexistingScreenshots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("x"), 0644))

	orch := &fakeOrch{}
	w, err := New([]string{dir}, Screenshots, orch)
	require.NoError(t, err)
	defer w.Shutdown()

	events := orch.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, orchestrator.ScreenshotCreated, events[0].Kind)
}

func TestRunEmitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	orch := &fakeOrch{}
	w, err := New([]string{dir}, Screenshots, orch)
	require.NoError(t, err)
	defer w.Shutdown()

	go w.Run()

	path := filepath.Join(dir, "new.png")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := orch.snapshot()
		for _, e := range events {
			if e.Kind == orchestrator.ScreenshotCreated && e.Path == path {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never observed ScreenshotCreated for %s", path)
}
