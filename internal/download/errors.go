package download

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoDownload is returned when a browsing session exhausts its page
// budget without observing a downloadable response.
var ErrNoDownload = errors.New("no download observed")

// NetworkError reports a failed fetch, download or browsing session.
type NetworkError struct {
	Op  string // "fetch", "download" or "browse"
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the transfer exceeded its time bound.
func (e *NetworkError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// StatusError is a non-success HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Code)
}
