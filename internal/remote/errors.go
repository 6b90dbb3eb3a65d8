package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInconclusive marks a request that produced no verdict, either because
// retries ran out or because the archive answered with an unexpected status.
var ErrInconclusive = errors.New("inconclusive archive response")

// Error represents a failed archive request.
type Error struct {
	StatusCode int
	Message    string
	Op         string // Operation that failed (e.g., "search", "probe")
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
}

// IsNotFound reports whether err indicates a 404 response.
func IsNotFound(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsTransient reports whether err is worth retrying: a transport failure,
// a rate limit, or a server error.
func IsTransient(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 0 ||
		apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode >= 500
}
