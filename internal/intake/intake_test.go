package intake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagehashi-labs/arcadewatchd/internal/domain"
	"github.com/kagehashi-labs/arcadewatchd/internal/retrychan"
)

type fakeCallback struct {
	mu       sync.Mutex
	started  []int64
	ended    []int64
	full     []int64
	rowIDs   map[int64]string
}

func newFakeCallback() *fakeCallback {
	return &fakeCallback{rowIDs: make(map[int64]string)}
}

func (f *fakeCallback) IntakeStarted(playID int64, intakeID string, submittedStart int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, playID)
	f.rowIDs[playID] = intakeID
}
func (f *fakeCallback) IntakeEnded(playID int64, submittedEnd int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, playID)
}
func (f *fakeCallback) IntakeFull(playID int64, intakeID string, submittedStart, submittedEnd int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = append(f.full, playID)
	f.rowIDs[playID] = intakeID
}

func fixedClock() int64 { return 1000 }

func TestHandleSubmitStartedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Game A", body["game"])
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": map[string]string{"rowid": "R1"},
		})
	}))
	defer srv.Close()

	cb := newFakeCallback()
	s := New(srv.URL, cb, fixedClock)

	action := s.Handle(context.Background(), Event{
		Kind: SubmitStarted, PlayID: 1, Label: "Game A",
		Language: domain.Language{Known: domain.English}, StartTime: 100,
	})
	assert.Equal(t, retrychan.Continue, action)
	assert.Equal(t, []int64{1}, cb.started)
	assert.Equal(t, "R1", cb.rowIDs[1])
}

func TestHandleSubmitStartedRetriesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := newFakeCallback()
	s := New(srv.URL, cb, fixedClock)

	action := s.Handle(context.Background(), Event{Kind: SubmitStarted, PlayID: 1, Label: "Game A"})
	assert.Equal(t, retrychan.Retry, action)
	assert.Empty(t, cb.started)
}

func TestHandleSubmitEndedDropsUnknownPlay(t *testing.T) {
	cb := newFakeCallback()
	s := New("http://unused", cb, fixedClock)

	action := s.Handle(context.Background(), Event{Kind: SubmitEnded, PlayID: 99, EndTime: 200})
	assert.Equal(t, retrychan.Continue, action)
	assert.Empty(t, cb.ended)
}

func TestHandleSubmitEndedSuccessClearsMap(t *testing.T) {
	var gotRowID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotRowID, _ = body["rowid"].(string)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cb := newFakeCallback()
	s := New(srv.URL, cb, fixedClock)
	s.byPlayID[1] = "R1"

	action := s.Handle(context.Background(), Event{Kind: SubmitEnded, PlayID: 1, EndTime: 200})
	assert.Equal(t, retrychan.Continue, action)
	assert.Equal(t, "R1", gotRowID)
	assert.Equal(t, []int64{1}, cb.ended)
	_, stillPresent := s.byPlayID[1]
	assert.False(t, stillPresent)
}

func TestHandleSubmitFullRoutesToEndedWhenAlreadyStarted(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cb := newFakeCallback()
	s := New(srv.URL, cb, fixedClock)
	s.byPlayID[1] = "R1"

	action := s.Handle(context.Background(), Event{Kind: SubmitFull, PlayID: 1, EndTime: 300})
	assert.Equal(t, retrychan.Continue, action)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, []int64{1}, cb.ended)
}

func TestHandleSubmitFullPostsWhenNeverStarted(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": map[string]string{"rowid": "R2"},
		})
	}))
	defer srv.Close()

	cb := newFakeCallback()
	s := New(srv.URL, cb, fixedClock)

	action := s.Handle(context.Background(), Event{
		Kind: SubmitFull, PlayID: 2, Label: "Game B", StartTime: 100, EndTime: 300,
	})
	assert.Equal(t, retrychan.Continue, action)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, []int64{2}, cb.full)
}

func TestHandlePreviousGameSeedsMap(t *testing.T) {
	cb := newFakeCallback()
	s := New("http://unused", cb, fixedClock)

	action := s.Handle(context.Background(), Event{Kind: PreviousGame, PlayID: 5, IntakeID: "R5"})
	assert.Equal(t, retrychan.Continue, action)
	assert.Equal(t, "R5", s.byPlayID[5])
}

func TestHandleIsOnlineAndForceSync(t *testing.T) {
	cb := newFakeCallback()
	s := New("http://unused", cb, fixedClock)

	action := s.Handle(context.Background(), Event{Kind: IsOnline, Online: false})
	assert.Equal(t, retrychan.Continue, action)
	assert.False(t, s.IsOnline())

	action = s.Handle(context.Background(), Event{Kind: ForceSync})
	assert.Equal(t, retrychan.ResetTimeout, action)
	assert.True(t, s.IsOnline())
}

func TestHandleStartShutdownHalts(t *testing.T) {
	cb := newFakeCallback()
	s := New("http://unused", cb, fixedClock)
	assert.Equal(t, retrychan.Halt, s.Handle(context.Background(), Event{Kind: StartShutdown}))
}

func TestIsHighPriority(t *testing.T) {
	cb := newFakeCallback()
	s := New("http://unused", cb, fixedClock)
	assert.True(t, s.IsHighPriority(Event{Kind: IsOnline}))
	assert.True(t, s.IsHighPriority(Event{Kind: ForceSync}))
	assert.True(t, s.IsHighPriority(Event{Kind: StartShutdown}))
	assert.False(t, s.IsHighPriority(Event{Kind: SubmitStarted}))
}

func TestRemoteErrorFieldTreatedAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "duplicate rowid"})
	}))
	defer srv.Close()

	cb := newFakeCallback()
	s := New(srv.URL, cb, fixedClock)
	action := s.Handle(context.Background(), Event{Kind: SubmitStarted, PlayID: 1})
	assert.Equal(t, retrychan.Retry, action)
}
