// Package uploader provides the content-addressed streaming upload
// primitive shared by the screenshots and saves components: hash
// a file, stream it to a remote directory, and report online/offline
// observations derived from the outcome.
package uploader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kagehashi-labs/arcadewatchd/internal/errors"
	"github.com/kagehashi-labs/arcadewatchd/internal/httpclient"
	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

// Observer receives online/offline observations derived from upload
// outcomes — implemented by whichever component embeds an Uploader.
type Observer interface {
	ObservedOnline()
	ObservedOffline()
}

// Uploader streams files to a content-addressed remote directory. It is
// not safe for concurrent use by multiple goroutines; each priority-retry
// channel owns exactly one.
type Uploader struct {
	client *http.Client
	pool   *workerpool.Pool
	log    logging.Logger

	digestPath   string
	digestValue  string
	haveDigest   bool
}

// New creates an Uploader. pool is typically shared with the rest of the
// component's blocking work (database calls, other uploads).
func New(pool *workerpool.Pool, component string) *Uploader {
	return &Uploader{
		client: httpclient.New(httpclient.UploadTimeout),
		pool:   pool,
		log:    logging.Named(component),
	}
}

// digestFor returns the SHA-1 hex digest of path, using the single-slot
// cache when the path matches the last one computed.
func (u *Uploader) digestFor(ctx context.Context, path string) (string, error) {
	if u.haveDigest && u.digestPath == path {
		return u.digestValue, nil
	}

	out := u.pool.Submit(ctx, func() (interface{}, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		h := sha1.New()
		if _, err := io.Copy(h, f); err != nil {
			return nil, err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	})

	res := <-out
	if res.Err != nil {
		return "", res.Err
	}

	digest := res.Value.(string)
	u.digestPath = path
	u.digestValue = digest
	u.haveDigest = true
	return digest, nil
}

// Upload streams path to {baseURL}/{directory}, optionally setting
// contentType, and reports the outcome to observer. Target URL carries
// ?digest={hex} when the hash could be computed; a hashing failure is
// logged but does not abort the upload.
func (u *Uploader) Upload(ctx context.Context, observer Observer, baseURL, path, directory, contentType string) error {
	basename := filepath.Base(path)

	url := fmt.Sprintf("%s/%s", baseURL, directory)
	if digest, err := u.digestFor(ctx, path); err != nil {
		u.log.Warn().Err(err).Str(logging.FieldPath, path).Msg("could not compute digest")
	} else {
		url = fmt.Sprintf("%s?digest=%s", url, digest)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.NewFilesystemError("open upload source", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return errors.Wrap(err, "build upload request")
	}
	req.Header.Set("X-Study-Basename", basename)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		observer.ObservedOffline()
		return errors.NewNetworkError("upload request", err)
	}
	defer resp.Body.Close()

	observer.ObservedOnline()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.NewRemoteError(
			fmt.Sprintf("upload %s returned %d: %s", url, resp.StatusCode, body), nil)
	}

	u.log.Debug().Str(logging.FieldPath, path).Msg("upload succeeded")
	return nil
}

// ScreenshotContentType returns the content type for a screenshot-like
// file based on its extension, ignoring case: image/jpeg for .jpg or .jpeg,
// image/png otherwise.
func ScreenshotContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".jpg" || ext == ".jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}
