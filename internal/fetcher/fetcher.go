package fetcher

import (
	"context"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
)

// ErrStatus marks a final HTTP status the caller cannot use.
var ErrStatus = eris.New("unexpected http status")

// Response is the final, non-transient answer to a GET. Body is always
// non-nil and must be closed.
type Response struct {
	URL        string
	StatusCode int
	// Attempts is how many requests it took, including retried failures.
	Attempts int
	Body     io.ReadCloser
}

// Close closes the body.
func (r *Response) Close() error {
	return r.Body.Close()
}

// HasContent reports whether the status carries a decodable body.
func (r *Response) HasContent() bool {
	return r.StatusCode == http.StatusOK
}

// Err returns nil for 200 and 204, and an ErrStatus-wrapped error otherwise.
func (r *Response) Err() error {
	switch r.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	}
	return eris.Wrapf(ErrStatus, "status %d from %s", r.StatusCode, r.URL)
}

// Fetcher issues GETs against the upstream API. Transient failures that
// outlast the retry budget are returned as errors; any other status comes
// back as a Response for the caller to interpret.
type Fetcher interface {
	Get(ctx context.Context, url string) (*Response, error)
}
