package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound is returned when the backend reports the note does not
// exist. For deletes this means the delete is already satisfied.
var ErrNotFound = errors.New("note not found on server")

// ConflictError is the backend's 409 response: its stored revision for
// the note is newer than the one the operation was based on. It carries
// the server's current version so the reconciliation policy can retain
// it without an extra round-trip.
type ConflictError struct {
	ServerRevision int64  `json:"currentServerRevision"`
	Title          string `json:"currentTitle"`
	Body           string `json:"currentBody"`
	Deleted        bool   `json:"deleted,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.Deleted {
		return fmt.Sprintf("revision conflict: note deleted server-side (revision %d)", e.ServerRevision)
	}
	return fmt.Sprintf("revision conflict: server holds revision %d", e.ServerRevision)
}

// ValidationError is a non-conflict 4xx: the backend rejected the
// mutation outright (malformed payload, unknown topic, id collision).
// Never retried; the note is surfaced as needing attention.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend rejected request (status %d)", e.Status)
	}
	return fmt.Sprintf("backend rejected request (status %d): %s", e.Status, e.Message)
}

// ServerError is a 5xx response. Always retryable.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server unavailable (status %d)", e.Status)
}

// IsRetryable reports whether the error is transient: network failures,
// timeouts, and 5xx responses trigger backoff-and-retry, everything
// else is routed elsewhere (conflict handling or permanent failure).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var conflict *ConflictError
	var validation *ValidationError
	if errors.As(err, &conflict) || errors.As(err, &validation) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Remaining transport-level failures (connection refused, DNS, reset
	// by peer) arrive as *url.Error wrapping *net.OpError; errors.As on
	// net.Error catches those above. Anything still unclassified is a
	// transport failure of some kind.
	return true
}
