// Package orchestrator is the central state machine: it owns the database
// handle, the current/previous play slots, and the configured filesystem
// layout, and is the only component that mutates play state. Every other
// component — intake, screenshots, saves, the HTTP surface, filesystem
// watchers, the notifier — communicates with it exclusively through the
// single Event queue this package drives.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kagehashi-labs/arcadewatchd/internal/db"
	"github.com/kagehashi-labs/arcadewatchd/internal/domain"
	"github.com/kagehashi-labs/arcadewatchd/internal/errors"
	"github.com/kagehashi-labs/arcadewatchd/internal/intake"
	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/pathutil"
	"github.com/kagehashi-labs/arcadewatchd/internal/saves"
	"github.com/kagehashi-labs/arcadewatchd/internal/screenshots"
)

// EventKind distinguishes the orchestrator's input events.
type EventKind int

const (
	GameStarted EventKind = iota
	GameEnded
	ScreenshotCreated
	SaveFileCreated
	IntakeStarted
	IntakeEnded
	IntakeFull
	IsOnline
	ForceSync
	StartShutdown
)

// Event is the single input type the orchestrator's loop consumes.
type Event struct {
	Kind EventKind

	Path string // raw, untrimmed path for Game*/Screenshot*/SaveFile* events

	PlayID         int64
	IntakeID       string
	SubmittedStart int64
	SubmittedEnd   int64

	Online bool
}

// Paths is every filesystem location the orchestrator manages.
type Paths struct {
	PendingScreenshots string
	PendingSaves       string
	KeepSaves          string
	ExtraDirectory     string
	LatestScreenshot   string
	TrimGamePrefix     string
}

// Notifier is the subset of notifier.Notifier the orchestrator drives.
type Notifier interface {
	Success(quick bool, message string)
	Error(message string)
	StartShutdown()
}

// IntakeSender is satisfied by *intake.Submitter.
type IntakeSender interface {
	Send(e intake.Event)
}

// ScreenshotsSender is satisfied by *screenshots.Uploader.
type ScreenshotsSender interface {
	Send(e screenshots.Event)
}

// SavesSender is satisfied by *saves.Uploader.
type SavesSender interface {
	Send(e saves.Event)
}

// Halter is satisfied by any component whose channel accepts a
// StartShutdown-shaped event; used for the shutdown fan-out.
type Halter interface {
	Shutdown()
}

// Orchestrator is the central state machine.
type Orchestrator struct {
	in chan Event

	database    *db.DB
	intake      IntakeSender
	screenshots ScreenshotsSender
	saves       SavesSender
	notifier    Notifier
	watchers    []Halter
	httpServer  Halter

	paths Paths

	currentPlay  *domain.Play
	previousPlay *domain.Play

	log logging.Logger
	now func() time.Time
}

// New creates an Orchestrator. Call Start before Run to perform the
// bootstrap sequence described in startup.go.
func New(database *db.DB, in IntakeSender, sc ScreenshotsSender, sv SavesSender, notifier Notifier, paths Paths) *Orchestrator {
	return &Orchestrator{
		in:          make(chan Event, 256),
		database:    database,
		intake:      in,
		screenshots: sc,
		saves:       sv,
		notifier:    notifier,
		paths:       paths,
		log:         logging.Named("orchestrator"),
		now:         time.Now,
	}
}

// IntakeCallback adapts intake.Callback onto the orchestrator's own event
// queue, so an intake submission completing routes through the same single
// queue as every other state-altering transition.
type IntakeCallback struct{ O *Orchestrator }

func (c IntakeCallback) IntakeStarted(playID int64, intakeID string, submittedStart int64) {
	c.O.Send(Event{Kind: IntakeStarted, PlayID: playID, IntakeID: intakeID, SubmittedStart: submittedStart})
}
func (c IntakeCallback) IntakeEnded(playID int64, submittedEnd int64) {
	c.O.Send(Event{Kind: IntakeEnded, PlayID: playID, SubmittedEnd: submittedEnd})
}
func (c IntakeCallback) IntakeFull(playID int64, intakeID string, submittedStart, submittedEnd int64) {
	c.O.Send(Event{Kind: IntakeFull, PlayID: playID, IntakeID: intakeID, SubmittedStart: submittedStart, SubmittedEnd: submittedEnd})
}

// SetUploaders wires the three downstream uploader components. Separated
// from New so the intake submitter's callback (which needs a live
// Orchestrator) and the orchestrator (which needs senders for all three)
// can each be constructed against the other without a construction-order
// cycle — see the cyclic-reference note in the package-level design notes.
func (o *Orchestrator) SetUploaders(in IntakeSender, sc ScreenshotsSender, sv SavesSender) {
	o.intake = in
	o.screenshots = sc
	o.saves = sv
}

// AddWatcher registers a component that should receive StartShutdown.
func (o *Orchestrator) AddWatcher(h Halter) { o.watchers = append(o.watchers, h) }

// SetHTTPServer registers the HTTP control surface for shutdown fan-out.
func (o *Orchestrator) SetHTTPServer(h Halter) { o.httpServer = h }

// Send enqueues an event for processing.
func (o *Orchestrator) Send(e Event) { o.in <- e }

// ReportOnline satisfies the intake/screenshots/saves OnlineReporter
// interfaces: an uploader's own observed online/offline transition is
// routed back through the orchestrator's single queue so it can be fanned
// out to all three uploaders, the reporting one included (§4.7), the same as an explicit
// POST /online or /offline.
func (o *Orchestrator) ReportOnline(online bool) {
	o.Send(Event{Kind: IsOnline, Online: online})
}

// Run drives the main loop until a StartShutdown event is handled or ctx
// is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case e := <-o.in:
			if !o.handle(ctx, e) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, e Event) bool {
	switch e.Kind {
	case GameStarted:
		o.handleGameStarted(ctx, e.Path)
	case GameEnded:
		o.handleGameEnded(ctx, e.Path)
	case ScreenshotCreated:
		o.handleScreenshotCreated(e.Path)
	case SaveFileCreated:
		o.handleSaveFileCreated(e.Path)
	case IntakeStarted:
		o.handleIntakeStarted(ctx, e)
	case IntakeEnded:
		o.handleIntakeEnded(ctx, e)
	case IntakeFull:
		o.handleIntakeFull(ctx, e)
	case IsOnline:
		o.fanOutOnline(e.Online)
	case ForceSync:
		o.fanOutForceSync()
	case StartShutdown:
		o.fanOutShutdown()
		return false
	}
	return true
}

// fixedPath trims the configured prefix from a raw path. Returns ("", false)
// if a prefix is configured but the path does not start with it.
func (o *Orchestrator) fixedPath(raw string) (string, bool) {
	if o.paths.TrimGamePrefix == "" {
		return raw, true
	}
	if !strings.HasPrefix(raw, o.paths.TrimGamePrefix) {
		o.log.Error().Str(logging.FieldPath, raw).Msg("path does not start with configured prefix")
		return "", false
	}
	return strings.TrimPrefix(raw, o.paths.TrimGamePrefix), true
}

func (o *Orchestrator) handleGameStarted(ctx context.Context, rawPath string) {
	if o.currentPlay != nil {
		o.log.Warn().Int64(logging.FieldPlayID, o.currentPlay.ID).Msg("already have a current play")
	}

	path, ok := o.fixedPath(rawPath)
	if !ok {
		o.notifier.Error("could not trim configured prefix from path")
		return
	}

	var game domain.Game
	var g errgroup.Group
	g.Go(func() error {
		if err := os.Remove(o.paths.LatestScreenshot); err != nil && !os.IsNotExist(err) {
			return errors.NewFilesystemError("remove latest screenshot", err)
		}
		return nil
	})
	g.Go(func() error {
		found, err := o.database.GameForPath(ctx, path)
		if err != nil {
			return err
		}
		game = found
		return nil
	})
	if err := g.Wait(); err != nil {
		o.log.Error().Err(err).Str(logging.FieldPath, path).Msg("could not prepare game start")
		o.notifier.Error("could not start game: " + path)
		return
	}

	play, err := o.database.StartedPlaying(ctx, game)
	if err != nil {
		o.log.Error().Err(err).Msg("could not start play")
		o.notifier.Error("could not start play")
		return
	}

	o.setCurrentPlay(&play)

	o.intake.Send(intake.Event{
		Kind: intake.SubmitStarted, PlayID: play.ID, Label: game.Label,
		Language: game.Language, StartTime: play.StartTime,
	})

	if err := o.makeGameDirectories(game, path); err != nil {
		o.log.Error().Err(err).Msg("could not create game directories")
		o.notifier.Error("could not create game directories")
		return
	}

	o.notifier.Success(false, "game started: "+game.Label)
}

func (o *Orchestrator) makeGameDirectories(game domain.Game, trimmedPath string) error {
	rel := pathutil.RemoveFullExtension(trimmedPath)
	dirs := []string{
		filepath.Join(o.paths.PendingScreenshots, game.Directory),
		filepath.Join(o.paths.PendingSaves, rel),
		filepath.Join(o.paths.KeepSaves, rel),
	}
	var g errgroup.Group
	for _, d := range dirs {
		d := d
		g.Go(func() error {
			if err := os.MkdirAll(d, 0755); err != nil {
				return errors.NewFilesystemError("mkdir "+d, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) handleGameEnded(ctx context.Context, rawPath string) {
	path, ok := o.fixedPath(rawPath)
	if !ok {
		o.notifier.Error("could not trim configured prefix from path")
		return
	}

	if o.currentPlay == nil {
		o.log.Error().Msg("no current play")
		o.notifier.Error("no current play")
		return
	}
	if o.currentPlay.Game.Path != path {
		o.log.Error().Str(logging.FieldPath, path).Msg("game-ended path does not match current play")
		o.notifier.Error("game-ended path mismatch")
		return
	}

	done, err := o.database.FinishedPlaying(ctx, *o.currentPlay)
	if err != nil {
		o.log.Error().Err(err).Msg("could not finish play")
		o.notifier.Error("could not finish play")
		return
	}
	o.currentPlay = &done

	o.intake.Send(intake.Event{
		Kind: intake.SubmitFull, PlayID: done.ID, Label: done.Game.Label,
		Language: done.Game.Language, StartTime: done.StartTime, EndTime: *done.EndTime,
	})

	o.notifier.Success(false, "game ended: "+done.Game.Label)
}

func (o *Orchestrator) handleScreenshotCreated(path string) {
	play := o.playing()
	if play == nil {
		destination := filepath.Join(o.paths.ExtraDirectory, filepath.Base(path))
		if err := os.Rename(path, destination); err != nil {
			o.log.Error().Err(err).Str(logging.FieldPath, path).Msg("could not move screenshot to extra directory")
			o.notifier.Error("could not move orphan screenshot")
			return
		}
		o.screenshots.Send(screenshots.Event{Kind: screenshots.UploadExtra, Path: destination})
		return
	}

	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".png"
	}
	destination := filepath.Join(o.paths.PendingScreenshots, play.Game.Directory, o.nowMillis()+ext)

	if err := os.Rename(path, destination); err != nil {
		o.log.Error().Err(err).Str(logging.FieldPath, path).Msg("could not move screenshot")
		o.notifier.Error("could not move screenshot")
		return
	}

	if err := os.Remove(o.paths.LatestScreenshot); err != nil && !os.IsNotExist(err) {
		o.log.Error().Err(err).Msg("could not remove latest screenshot")
		o.notifier.Error("could not remove latest screenshot")
		return
	}
	if err := os.Link(destination, o.paths.LatestScreenshot); err != nil {
		o.log.Error().Err(err).Msg("could not hard-link latest screenshot")
		o.notifier.Error("could not hard-link latest screenshot")
		return
	}

	o.screenshots.Send(screenshots.Event{Kind: screenshots.UploadScreenshot, Path: destination, Directory: play.Game.Directory})
}

func (o *Orchestrator) handleSaveFileCreated(path string) {
	rel, ok := o.fixedPath(path)
	if !ok {
		o.notifier.Error("could not trim configured prefix from save path")
		return
	}
	ext := pathutil.FullExtension(rel)
	relDir := pathutil.RemoveFullExtension(rel)
	relDir = strings.TrimPrefix(relDir, string(filepath.Separator))

	target := o.today() + "." + ext
	pendingDest := filepath.Join(o.paths.PendingSaves, relDir, target)
	keepDest := filepath.Join(o.paths.KeepSaves, relDir, target)

	pendingOK := o.hardLinkTolerant(path, pendingDest)
	o.hardLinkTolerant(path, keepDest)

	pendingShot := filepath.Join(o.paths.PendingSaves, relDir, o.today()+".png")
	keepShot := filepath.Join(o.paths.KeepSaves, relDir, o.today()+".png")
	shotLinked := o.hardLinkTolerant(o.paths.LatestScreenshot, pendingShot)
	o.hardLinkTolerant(o.paths.LatestScreenshot, keepShot)

	if !pendingOK {
		return
	}
	o.saves.Send(saves.Event{Kind: saves.UploadSave, Path: pendingDest, Directory: relDir})
	if shotLinked {
		o.saves.Send(saves.Event{Kind: saves.UploadScreenshot, Path: pendingShot, Directory: relDir})
	}
}

// hardLinkTolerant hard-links src to dest, logging and reporting but not
// treating a missing source as fatal — the companion screenshot link is
// best-effort.
func (o *Orchestrator) hardLinkTolerant(src, dest string) bool {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		o.log.Error().Err(err).Str(logging.FieldPath, dest).Msg("could not create save directory")
		o.notifier.Error("could not create save directory")
		return false
	}
	if err := os.Link(src, dest); err != nil {
		if os.IsNotExist(err) {
			o.log.Debug().Str(logging.FieldPath, src).Msg("hard-link source missing, skipping")
			return false
		}
		o.log.Error().Err(err).Str(logging.FieldPath, dest).Msg("could not hard-link save")
		o.notifier.Error("could not hard-link save")
		return false
	}
	return true
}

func (o *Orchestrator) handleIntakeStarted(ctx context.Context, e Event) {
	if o.currentPlay != nil && o.currentPlay.ID == e.PlayID {
		intakeID := e.IntakeID
		submittedStart := e.SubmittedStart
		o.currentPlay.IntakeID = &intakeID
		o.currentPlay.SubmittedStart = &submittedStart
	}
	if err := o.database.InitialIntake(ctx, e.PlayID, e.IntakeID, e.SubmittedStart); err != nil {
		o.log.Error().Err(err).Int64(logging.FieldPlayID, e.PlayID).Msg("could not persist initial intake")
		return
	}
	o.notifier.Success(true, "intake started")
}

func (o *Orchestrator) handleIntakeEnded(ctx context.Context, e Event) {
	if o.currentPlay != nil && o.currentPlay.ID == e.PlayID {
		submittedEnd := e.SubmittedEnd
		o.currentPlay.SubmittedEnd = &submittedEnd
	}
	if err := o.database.FinalIntake(ctx, e.PlayID, e.SubmittedEnd); err != nil {
		o.log.Error().Err(err).Int64(logging.FieldPlayID, e.PlayID).Msg("could not persist final intake")
		return
	}
	o.notifier.Success(true, "intake ended")
}

func (o *Orchestrator) handleIntakeFull(ctx context.Context, e Event) {
	if o.currentPlay != nil && o.currentPlay.ID == e.PlayID {
		intakeID := e.IntakeID
		submittedStart := e.SubmittedStart
		submittedEnd := e.SubmittedEnd
		o.currentPlay.IntakeID = &intakeID
		o.currentPlay.SubmittedStart = &submittedStart
		o.currentPlay.SubmittedEnd = &submittedEnd
	}
	if err := o.database.FullIntake(ctx, e.PlayID, e.IntakeID, e.SubmittedStart, e.SubmittedEnd); err != nil {
		o.log.Error().Err(err).Int64(logging.FieldPlayID, e.PlayID).Msg("could not persist full intake")
		return
	}
	o.notifier.Success(true, "intake recorded")
}

func (o *Orchestrator) fanOutOnline(online bool) {
	o.intake.Send(intake.Event{Kind: intake.IsOnline, Online: online})
	o.screenshots.Send(screenshots.Event{Kind: screenshots.IsOnline, Online: online})
	o.saves.Send(saves.Event{Kind: saves.IsOnline, Online: online})
}

func (o *Orchestrator) fanOutForceSync() {
	o.intake.Send(intake.Event{Kind: intake.ForceSync})
	o.screenshots.Send(screenshots.Event{Kind: screenshots.ForceSync})
	o.saves.Send(saves.Event{Kind: saves.ForceSync})
}

func (o *Orchestrator) fanOutShutdown() {
	o.intake.Send(intake.Event{Kind: intake.StartShutdown})
	o.screenshots.Send(screenshots.Event{Kind: screenshots.StartShutdown})
	o.saves.Send(saves.Event{Kind: saves.StartShutdown})
	for _, w := range o.watchers {
		w.Shutdown()
	}
	if o.httpServer != nil {
		o.httpServer.Shutdown()
	}
	o.notifier.StartShutdown()
}

// playing returns current_play, falling back to previous_play — a Play in
// the Ended state remains addressable by either slot until a new game
// starts and overwrites previous_play.
func (o *Orchestrator) playing() *domain.Play {
	if o.currentPlay != nil {
		return o.currentPlay
	}
	return o.previousPlay
}

// setCurrentPlay moves any existing current play into the previous slot
// and persists the new singleton asynchronously.
func (o *Orchestrator) setCurrentPlay(play *domain.Play) {
	if o.currentPlay != nil {
		o.previousPlay = o.currentPlay
	}
	o.currentPlay = play

	var id *int64
	if play != nil {
		v := play.ID
		id = &v
	}
	o.database.DetachSaveCurrentlyPlaying(id, func(err error) {
		o.log.Error().Err(err).Msg("could not persist currently-playing singleton")
	})
}

func (o *Orchestrator) nowMillis() string {
	return strconv.FormatInt(o.now().UnixMilli(), 10)
}

func (o *Orchestrator) today() string {
	return o.now().Format("2006-01-02")
}
