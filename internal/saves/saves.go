// Package saves is the uploader component for save-state files: it
// streams pending saves (and their screenshot companions) to the remote
// save directory, deleting each local pending copy once acknowledged. The
// permanent keep_saves copies made by the orchestrator are never touched
// here.
package saves

import (
	"context"
	"os"
	"sync"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/retrychan"
	"github.com/kagehashi-labs/arcadewatchd/internal/uploader"
	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

// EventKind distinguishes save uploads (no content-type, server infers)
// from their screenshot companions (content-type inferred from extension).
type EventKind int

const (
	UploadSave EventKind = iota
	UploadScreenshot
	IsOnline
	ForceSync
	StartShutdown
)

// Event is the single input type handled by the saves channel.
type Event struct {
	Kind      EventKind
	Path      string
	Directory string
	Online    bool
}

func (e Event) isHighPriority() bool {
	switch e.Kind {
	case IsOnline, ForceSync, StartShutdown:
		return true
	default:
		return false
	}
}

// Notifier is the subset of notifier.Notifier this component needs.
type Notifier interface {
	Success(quick bool, message string)
	Error(message string)
}

// OnlineReporter receives this component's online/offline observations so
// the orchestrator can fan them out to the intake and screenshots uploaders.
type OnlineReporter interface {
	ReportOnline(online bool)
}

// Uploader is the saves component.
type Uploader struct {
	ch *retrychan.Channel[Event]

	baseURL  string
	up       *uploader.Uploader
	notifier Notifier
	log      logging.Logger

	mu     sync.Mutex
	online bool

	reporter OnlineReporter
}

// New creates a saves Uploader posting to baseURL.
func New(baseURL string, notifier Notifier, pool *workerpool.Pool) *Uploader {
	u := &Uploader{
		baseURL:  baseURL,
		up:       uploader.New(pool, "saves"),
		notifier: notifier,
		online:   true,
		log:      logging.Named("saves"),
	}
	u.ch = retrychan.New[Event](u, 64, "saves")
	return u
}

func (u *Uploader) Run(ctx context.Context) { u.ch.Run(ctx) }
func (u *Uploader) Send(e Event)            { u.ch.Send(e) }

// SetOnlineReporter wires r to receive this component's online/offline
// observations, so an upload failure or success here can be fanned out to
// the intake and screenshots uploaders too.
func (u *Uploader) SetOnlineReporter(r OnlineReporter) { u.reporter = r }

func (u *Uploader) IsOnline() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.online
}

func (u *Uploader) ObservedOnline()  { u.setOnlineAndReport(true) }
func (u *Uploader) ObservedOffline() { u.setOnlineAndReport(false) }

func (u *Uploader) setOnline(v bool) {
	u.mu.Lock()
	u.online = v
	u.mu.Unlock()
}

// setOnlineAndReport is used for observations derived from the uploader
// primitive itself (not from an IsOnline event received via the channel),
// so they propagate back up to the orchestrator for fan-out.
func (u *Uploader) setOnlineAndReport(v bool) {
	u.setOnline(v)
	if u.reporter != nil {
		u.reporter.ReportOnline(v)
	}
}

func (u *Uploader) IsHighPriority(e Event) bool { return e.isHighPriority() }

func (u *Uploader) Handle(ctx context.Context, e Event) retrychan.Action {
	switch e.Kind {
	case UploadSave:
		return u.upload(ctx, e, "")
	case UploadScreenshot:
		return u.upload(ctx, e, uploader.ScreenshotContentType(e.Path))
	case IsOnline:
		u.setOnline(e.Online)
		return retrychan.Continue
	case ForceSync:
		u.setOnline(true)
		return retrychan.ResetTimeout
	case StartShutdown:
		return retrychan.Halt
	}
	return retrychan.Continue
}

func (u *Uploader) upload(ctx context.Context, e Event, contentType string) retrychan.Action {
	if err := u.up.Upload(ctx, u, u.baseURL, e.Path, e.Directory, contentType); err != nil {
		u.log.Warn().Err(err).Str(logging.FieldPath, e.Path).Msg("save upload failed")
		return retrychan.Retry
	}

	if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
		u.log.Warn().Err(err).Str(logging.FieldPath, e.Path).Msg("failed to delete uploaded save")
	}
	u.notifier.Success(true, "save uploaded")
	return retrychan.Continue
}
