// Package screenshots is the uploader component for screenshot files: it
// streams each pending screenshot to the remote screenshot directory,
// deleting the local file once the upload is acknowledged.
package screenshots

import (
	"context"
	"os"
	"sync"

	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/retrychan"
	"github.com/kagehashi-labs/arcadewatchd/internal/uploader"
	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

// EventKind distinguishes the upload targets this component handles.
type EventKind int

const (
	UploadScreenshot EventKind = iota
	UploadExtra
	IsOnline
	ForceSync
	StartShutdown
)

// Event is the single input type handled by the screenshots channel.
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
// the orchestrator can fan them out to the intake and saves uploaders.
type OnlineReporter interface {
	ReportOnline(online bool)
}

// Uploader is the component: a priority-retry channel driving the shared
// content-addressed uploader primitive against the screenshot base URL.
type Uploader struct {
	ch *retrychan.Channel[Event]

	baseURL     string
	extraURL    string
	up          *uploader.Uploader
	notifier    Notifier
	log         logging.Logger

	mu     sync.Mutex
	online bool

	reporter OnlineReporter
}

// New creates a screenshots Uploader. baseURL is the screenshot service
// root; extraURL is the fixed bucket for screenshots with no active play.
func New(baseURL, extraURL string, notifier Notifier, pool *workerpool.Pool) *Uploader {
	u := &Uploader{
		baseURL:  baseURL,
		extraURL: extraURL,
		up:       uploader.New(pool, "screenshots"),
		notifier: notifier,
		online:   true,
		log:      logging.Named("screenshots"),
	}
	u.ch = retrychan.New[Event](u, 64, "screenshots")
	return u
}

func (u *Uploader) Run(ctx context.Context) { u.ch.Run(ctx) }
func (u *Uploader) Send(e Event)            { u.ch.Send(e) }

// SetOnlineReporter wires r to receive this component's online/offline
// observations, so an upload failure or success here can be fanned out to
// the intake and saves uploaders too.
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
	case UploadScreenshot:
		return u.upload(ctx, e, u.baseURL, e.Directory)
	case UploadExtra:
		return u.upload(ctx, e, u.extraURL, "")
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

func (u *Uploader) upload(ctx context.Context, e Event, baseURL, directory string) retrychan.Action {
	contentType := uploader.ScreenshotContentType(e.Path)
	if err := u.up.Upload(ctx, u, baseURL, e.Path, directory, contentType); err != nil {
		u.log.Warn().Err(err).Str(logging.FieldPath, e.Path).Msg("screenshot upload failed")
		return retrychan.Retry
	}

	if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
		u.log.Warn().Err(err).Str(logging.FieldPath, e.Path).Msg("failed to delete uploaded screenshot")
	}
	u.notifier.Success(true, "screenshot uploaded")
	return retrychan.Continue
}
