// Package intake wraps the priority-retry channel with the resumable
// submission state machine: it tracks which plays have an outstanding
// remote rowid and drives the POST-to-create / PATCH-to-finish exchange
// against the intake service.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/kagehashi-labs/arcadewatchd/internal/domain"
	"github.com/kagehashi-labs/arcadewatchd/internal/errors"
	"github.com/kagehashi-labs/arcadewatchd/internal/httpclient"
	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/retrychan"
)

// EventKind distinguishes the shapes an Event can take.
type EventKind int

const (
	PreviousGame EventKind = iota
	SubmitStarted
	SubmitEnded
	SubmitFull
	IsOnline
	ForceSync
	StartShutdown
)

// Event is the single input type handled by the intake channel.
type Event struct {
	Kind EventKind

	PlayID    int64
	IntakeID  string
	Label     string
	Language  domain.Language
	StartTime int64
	EndTime   int64

	Online bool
}

func (e Event) isHighPriority() bool {
	switch e.Kind {
	case IsOnline, ForceSync, StartShutdown:
		return true
	default:
		return false
	}
}

// Callback reports completed submissions back to the orchestrator.
type Callback interface {
	IntakeStarted(playID int64, intakeID string, submittedStart int64)
	IntakeEnded(playID int64, submittedEnd int64)
	IntakeFull(playID int64, intakeID string, submittedStart, submittedEnd int64)
}

// OnlineReporter receives this component's online/offline observations so
// the orchestrator can fan them out to the other uploaders (§4.7).
type OnlineReporter interface {
	ReportOnline(online bool)
}

type createResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Object  struct {
		RowID string `json:"rowid"`
	} `json:"object"`
}

// Submitter is the intake component: a priority-retry channel with a
// play_id → intake_id resumption map.
type Submitter struct {
	ch *retrychan.Channel[Event]

	baseURL  string
	client   *http.Client
	callback Callback
	now      func() int64
	log      logging.Logger

	mu       sync.Mutex
	online   bool
	byPlayID map[int64]string

	reporter OnlineReporter
}

// New creates a Submitter posting to baseURL. now returns unix-seconds
// timestamps; tests inject a fixed clock.
func New(baseURL string, callback Callback, now func() int64) *Submitter {
	s := &Submitter{
		baseURL:  baseURL,
		client:   httpclient.New(httpclient.IntakeTimeout),
		callback: callback,
		now:      now,
		online:   true,
		byPlayID: make(map[int64]string),
		log:      logging.Named("intake"),
	}
	s.ch = retrychan.New[Event](s, 64, "intake")
	return s
}

// SetOnlineReporter wires r to receive this component's online/offline
// observations, so a network-shaped failure or success here can be fanned
// out to the screenshots and saves uploaders too.
func (s *Submitter) SetOnlineReporter(r OnlineReporter) { s.reporter = r }

// Run drives the channel until ctx is cancelled or StartShutdown halts it.
func (s *Submitter) Run(ctx context.Context) { s.ch.Run(ctx) }

// Send enqueues e for processing.
func (s *Submitter) Send(e Event) { s.ch.Send(e) }

func (s *Submitter) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// setOnline updates the local online flag and reports the observation
// upstream so the orchestrator can fan it out to the other uploaders.
func (s *Submitter) setOnline(v bool) {
	s.mu.Lock()
	s.online = v
	s.mu.Unlock()
	if s.reporter != nil {
		s.reporter.ReportOnline(v)
	}
}

func (s *Submitter) IsHighPriority(e Event) bool { return e.isHighPriority() }

func (s *Submitter) Handle(ctx context.Context, e Event) retrychan.Action {
	switch e.Kind {
	case PreviousGame:
		s.mu.Lock()
		s.byPlayID[e.PlayID] = e.IntakeID
		s.mu.Unlock()
		return retrychan.Continue

	case SubmitStarted:
		return s.handleSubmitStarted(ctx, e)

	case SubmitEnded:
		return s.handleSubmitEnded(ctx, e)

	case SubmitFull:
		s.mu.Lock()
		_, started := s.byPlayID[e.PlayID]
		s.mu.Unlock()
		if started {
			return s.handleSubmitEnded(ctx, Event{
				Kind: SubmitEnded, PlayID: e.PlayID, EndTime: e.EndTime,
			})
		}
		return s.handleSubmitFull(ctx, e)

	case IsOnline:
		s.mu.Lock()
		s.online = e.Online
		s.mu.Unlock()
		return retrychan.Continue

	case ForceSync:
		s.mu.Lock()
		s.online = true
		s.mu.Unlock()
		return retrychan.ResetTimeout

	case StartShutdown:
		return retrychan.Halt
	}
	return retrychan.Continue
}

func (s *Submitter) handleSubmitStarted(ctx context.Context, e Event) retrychan.Action {
	if e.Language.IsOther() {
		s.log.Warn().Int64(logging.FieldPlayID, e.PlayID).Msg("language falls back to English for the remote")
	}
	body := map[string]interface{}{
		"startTime": e.StartTime,
		"game":      e.Label,
		"language":  e.Language.RemoteLabel(),
	}
	rowID, err := s.post(ctx, body)
	if err != nil {
		s.log.Warn().Err(err).Int64(logging.FieldPlayID, e.PlayID).Msg("intake create failed")
		return retrychan.Retry
	}

	submittedStart := s.now()
	s.mu.Lock()
	s.byPlayID[e.PlayID] = rowID
	s.mu.Unlock()
	s.callback.IntakeStarted(e.PlayID, rowID, submittedStart)
	return retrychan.Continue
}

func (s *Submitter) handleSubmitEnded(ctx context.Context, e Event) retrychan.Action {
	s.mu.Lock()
	rowID, ok := s.byPlayID[e.PlayID]
	s.mu.Unlock()
	if !ok {
		s.log.Warn().Int64(logging.FieldPlayID, e.PlayID).Msg("submit-ended for unknown play, dropping")
		return retrychan.Continue
	}

	body := map[string]interface{}{
		"rowid":   rowID,
		"endTime": e.EndTime,
	}
	if err := s.patch(ctx, body); err != nil {
		s.log.Warn().Err(err).Int64(logging.FieldPlayID, e.PlayID).Msg("intake finish failed")
		return retrychan.Retry
	}

	s.mu.Lock()
	delete(s.byPlayID, e.PlayID)
	s.mu.Unlock()
	s.callback.IntakeEnded(e.PlayID, s.now())
	return retrychan.Continue
}

func (s *Submitter) handleSubmitFull(ctx context.Context, e Event) retrychan.Action {
	if e.Language.IsOther() {
		s.log.Warn().Int64(logging.FieldPlayID, e.PlayID).Msg("language falls back to English for the remote")
	}
	body := map[string]interface{}{
		"startTime": e.StartTime,
		"endTime":   e.EndTime,
		"game":      e.Label,
		"language":  e.Language.RemoteLabel(),
	}
	rowID, err := s.post(ctx, body)
	if err != nil {
		s.log.Warn().Err(err).Int64(logging.FieldPlayID, e.PlayID).Msg("intake full submit failed")
		return retrychan.Retry
	}

	now := s.now()
	s.callback.IntakeFull(e.PlayID, rowID, now, now)
	return retrychan.Continue
}

func (s *Submitter) post(ctx context.Context, body map[string]interface{}) (string, error) {
	return s.send(ctx, http.MethodPost, body)
}

func (s *Submitter) patch(ctx context.Context, body map[string]interface{}) error {
	_, err := s.send(ctx, http.MethodPatch, body)
	return err
}

func (s *Submitter) send(ctx context.Context, method string, body map[string]interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, "encode intake request")
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "build intake request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.setOnline(false)
		return "", errors.NewNetworkError("intake request", err)
	}
	defer resp.Body.Close()

	s.setOnline(true)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewRemoteError(fmt.Sprintf("intake %s returned %d: %s", method, resp.StatusCode, raw), nil)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return "", nil
	}

	var parsed createResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrap(err, "decode intake response")
	}
	if parsed.Error != "" {
		return "", errors.NewRemoteError("intake rejected: "+parsed.Error, nil)
	}
	return parsed.Object.RowID, nil
}
