// Package httpclient constructs *http.Client values for the uploader and
// intake submitter. Both need their own transport rather than
// http.DefaultClient so a slow remote can't exhaust connections shared with
// unrelated code in the same process.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// UploadTimeout is the request timeout for the uploader primitive's
// streaming upload calls.
const UploadTimeout = 30 * time.Second

// IntakeTimeout is the request timeout for intake POST/PATCH calls.
const IntakeTimeout = 30 * time.Second

// New returns an *http.Client with a fresh, unshared transport and the
// given timeout. cleanhttp.DefaultPooledTransport avoids the global
// connection pool on http.DefaultTransport, whose idle settings are not
// tuned for this daemon's long-lived, low-traffic connections.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: cleanhttp.DefaultPooledTransport(),
		Timeout:   timeout,
	}
}
