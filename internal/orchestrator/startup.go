package orchestrator

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kagehashi-labs/arcadewatchd/internal/db"
	"github.com/kagehashi-labs/arcadewatchd/internal/errors"
	"github.com/kagehashi-labs/arcadewatchd/internal/intake"
	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/saves"
	"github.com/kagehashi-labs/arcadewatchd/internal/screenshots"
)

// screenshotExts are the extensions the bootstrap scan and save-file
// classification treat as screenshot-shaped.
var screenshotExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Start runs the bootstrap sequence before the main loop begins:
// re-enqueuing batched pending screenshots and saves, seeding the
// resumption map for any live play, and replaying the intake backlog.
// A missing or non-directory pending_screenshots is a fatal startup error,
// matching the prototype's precondition — silently skipping it would leave
// already-captured screenshots permanently stuck.
func (o *Orchestrator) Start(ctx context.Context) error {
	info, err := os.Stat(o.paths.PendingScreenshots)
	if err != nil || !info.IsDir() {
		return errors.NewFatalError("pending_screenshots is not a directory: "+o.paths.PendingScreenshots, err)
	}

	if err := o.scanPendingScreenshots(); err != nil {
		return err
	}
	go o.scanExtraDirectory()
	if err := o.scanPendingSaves(); err != nil {
		return err
	}

	previous, found, err := o.database.LoadPreviouslyPlaying(ctx)
	if err != nil {
		return errors.Wrap(err, "load previously playing")
	}
	if found {
		o.log.Info().Int64(logging.FieldPlayID, previous.ID).Msg("found previously-playing game")
		if previous.Live() && previous.IntakeID != nil {
			o.intake.Send(intake.Event{Kind: intake.PreviousGame, PlayID: previous.ID, IntakeID: *previous.IntakeID})
		}
		o.currentPlay = &previous
	} else {
		o.log.Info().Msg("no previously-playing game found")
	}

	backlog, err := o.database.LoadIntakeBacklog(ctx)
	if err != nil {
		return errors.Wrap(err, "load intake backlog")
	}
	if len(backlog) == 0 {
		o.log.Info().Msg("no backlog of intake submissions found")
	} else {
		o.log.Info().Int(logging.FieldRetries, len(backlog)).Msg("replaying intake backlog")
		for _, e := range backlog {
			o.intake.Send(backlogToIntakeEvent(e))
		}
	}

	return nil
}

// scanPendingScreenshots walks pending_screenshots at depth >= 3 (its own
// depth + game-directory depth + filename) for files left over from a
// previous run whose upload never completed, re-enqueuing each one.
func (o *Orchestrator) scanPendingScreenshots() error {
	root := o.paths.PendingScreenshots
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if depth < 3 {
			// Shallower files are not pending game screenshots: latest.png
			// sits at depth 1 and the extra/ bucket (rescanned separately)
			// at depth 2; real game directories nest at least two levels.
			return nil
		}
		directory := filepath.Dir(rel)
		o.log.Info().Str(logging.FieldPath, path).Str("directory", directory).Msg("found batched screenshot")
		o.screenshots.Send(screenshots.Event{Kind: screenshots.UploadScreenshot, Path: path, Directory: directory})
		return nil
	})
}

// scanExtraDirectory enqueues every file already sitting in extra_directory
// as an UploadExtra — run in the background since it doesn't gate startup.
func (o *Orchestrator) scanExtraDirectory() {
	entries, err := os.ReadDir(o.paths.ExtraDirectory)
	if err != nil {
		if !os.IsNotExist(err) {
			o.log.Warn().Err(err).Str(logging.FieldPath, o.paths.ExtraDirectory).Msg("could not scan extra directory")
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(o.paths.ExtraDirectory, entry.Name())
		o.screenshots.Send(screenshots.Event{Kind: screenshots.UploadExtra, Path: path})
	}
}

// scanPendingSaves walks pending_saves for leftover files, classifying by
// extension: screenshot-shaped companions become UploadScreenshot, anything
// else UploadSave. Directory derivation mirrors the screenshot scan.
func (o *Orchestrator) scanPendingSaves() error {
	root := o.paths.PendingSaves
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		directory := filepath.Dir(rel)
		ext := strings.ToLower(filepath.Ext(path))
		if screenshotExts[ext] {
			o.saves.Send(saves.Event{Kind: saves.UploadScreenshot, Path: path, Directory: directory})
		} else {
			o.saves.Send(saves.Event{Kind: saves.UploadSave, Path: path, Directory: directory})
		}
		return nil
	})
}

func backlogToIntakeEvent(e db.IntakeEvent) intake.Event {
	switch e.Kind {
	case db.SubmitStarted:
		return intake.Event{Kind: intake.SubmitStarted, PlayID: e.PlayID, Label: e.GameLabel, Language: e.Language, StartTime: e.StartTime}
	case db.SubmitEnded:
		return intake.Event{Kind: intake.SubmitEnded, PlayID: e.PlayID, IntakeID: e.IntakeID, EndTime: e.EndTime}
	default: // db.SubmitFull
		return intake.Event{Kind: intake.SubmitFull, PlayID: e.PlayID, Label: e.GameLabel, Language: e.Language, StartTime: e.StartTime, EndTime: e.EndTime}
	}
}
