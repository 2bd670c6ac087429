package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

type fakeObserver struct {
	online  int
	offline int
}

func (f *fakeObserver) ObservedOnline()  { f.online++ }
func (f *fakeObserver) ObservedOffline() { f.offline++ }

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestUploadSuccessSetsOnline(t *testing.T) {
	var gotDigest, gotBasename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDigest = r.URL.Query().Get("digest")
		gotBasename = r.Header.Get("X-Study-Basename")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	path := writeTempFile(t, "hello world")
	u := New(workerpool.New(2), "test")
	obs := &fakeObserver{}

	err := u.Upload(context.Background(), obs, srv.URL, path, "dirA", "")
	require.NoError(t, err)
	assert.Equal(t, 1, obs.online)
	assert.Equal(t, 0, obs.offline)
	assert.NotEmpty(t, gotDigest)
	assert.Equal(t, "payload.bin", gotBasename)
}

func TestUploadFailureSetsOffline(t *testing.T) {
	u := New(workerpool.New(2), "test")
	obs := &fakeObserver{}
	path := writeTempFile(t, "x")

	err := u.Upload(context.Background(), obs, "http://127.0.0.1:1", path, "dirA", "")
	require.Error(t, err)
	assert.Equal(t, 0, obs.online)
	assert.Equal(t, 1, obs.offline)
}

func TestUploadRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	u := New(workerpool.New(2), "test")
	obs := &fakeObserver{}
	path := writeTempFile(t, "x")

	err := u.Upload(context.Background(), obs, srv.URL, path, "dirA", "")
	require.Error(t, err)
	assert.Equal(t, 1, obs.online, "a response at all, even non-2xx, counts as reachable")
}

func TestDigestCacheReusesLastPath(t *testing.T) {
	u := New(workerpool.New(2), "test")
	pathA := writeTempFile(t, "aaa")
	pathB := writeTempFile(t, "bbb")

	dA1, err := u.digestFor(context.Background(), pathA)
	require.NoError(t, err)
	dB, err := u.digestFor(context.Background(), pathB)
	require.NoError(t, err)
	assert.NotEqual(t, dA1, dB)

	dA2, err := u.digestFor(context.Background(), pathA)
	require.NoError(t, err)
	assert.Equal(t, dA1, dA2, "re-hashing the same content should be deterministic")
	assert.Equal(t, dA2, u.digestValue, "cache should now hold pathA's digest again")
}

func TestScreenshotContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ScreenshotContentType("shot.jpg"))
	assert.Equal(t, "image/jpeg", ScreenshotContentType("shot.JPG"))
	assert.Equal(t, "image/png", ScreenshotContentType("shot.png"))
	assert.Equal(t, "image/png", ScreenshotContentType("shot"))
}
