// Package watch is the raw filesystem-watch primitive for screenshot and
// save directories: it emits one path per completed file write and
// performs a startup scan of pre-existing files, translating outside-world
// filesystem activity into orchestrator events without holding any session
// state of its own.
package watch

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/orchestrator"
)

// Target distinguishes which orchestrator event kind a Watcher emits.
type Target int

const (
	Screenshots Target = iota
	SaveFiles
)

// screenshotExts are the extensions a screenshot watcher reacts to.
var screenshotExts = map[string]bool{".png": true, ".jpg": true}

// saveExts are the extensions a save-file watcher reacts to. state<digits>
// (e.g. .state0, .state1) is matched separately since it isn't a fixed set.
var saveExts = map[string]bool{
	".srm": true, ".state": true, ".sav": true, ".rtc": true, ".ldci": true,
}

func isSaveExt(ext string) bool {
	if saveExts[ext] {
		return true
	}
	if strings.HasPrefix(ext, ".state") {
		suffix := strings.TrimPrefix(ext, ".state")
		if suffix == "" {
			return true
		}
		if _, err := strconv.Atoi(suffix); err == nil {
			return true
		}
	}
	return false
}

// OrchestratorSender is satisfied by *orchestrator.Orchestrator.
type OrchestratorSender interface {
	Send(e orchestrator.Event)
}

// Watcher drives one fsnotify watch over a set of directories, filtering by
// Target and emitting ScreenshotCreated/SaveFileCreated events.
type Watcher struct {
	fsw    *fsnotify.Watcher
	target Target
	orch   OrchestratorSender
	log    logging.Logger
	done   chan struct{}
}

// New creates a Watcher over the given directories (non-recursive, one
// fsnotify watch per directory) and performs the bootstrap scan of
// pre-existing files for Target Screenshots, matching the external
// interface contract that a bootstrap scan of the screenshot directories
// emits pre-existing files at startup.
func New(dirs []string, target Target, orch OrchestratorSender) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w := &Watcher{
		fsw:    fsw,
		target: target,
		orch:   orch,
		log:    logging.Named("watch"),
		done:   make(chan struct{}),
	}

	if target == Screenshots {
		w.bootstrapScan(dirs)
	}

	return w, nil
}

func (w *Watcher) bootstrapScan(dirs []string) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.log.Warn().Err(err).Str(logging.FieldPath, dir).Msg("could not scan for pre-existing screenshots")
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if w.matches(path) {
				w.emit(path)
			}
		}
	}
}

func (w *Watcher) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if w.target == Screenshots {
		return screenshotExts[ext]
	}
	return isSaveExt(ext)
}

func (w *Watcher) emit(path string) {
	if w.target == Screenshots {
		w.orch.Send(orchestrator.Event{Kind: orchestrator.ScreenshotCreated, Path: path})
	} else {
		w.orch.Send(orchestrator.Event{Kind: orchestrator.SaveFileCreated, Path: path})
	}
}

// Run drives the fsnotify event loop until Shutdown is called. A file is
// considered "creation complete" on fsnotify's Write or Create event —
// fsnotify has no direct equivalent of inotify's IN_CLOSE_WRITE, so a
// Write event (the last one fired before a writer closes the file in
// practice for the emulator's write-once-then-rename save pattern) stands
// in for the prototype's close-after-write detection.
func (w *Watcher) Run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.emit(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("filesystem watch error")

		case <-w.done:
			return
		}
	}
}

// Shutdown satisfies orchestrator.Halter.
func (w *Watcher) Shutdown() {
	close(w.done)
	w.fsw.Close()
}
