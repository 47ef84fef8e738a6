package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single tagged error surfaced by remote clients.
//
// Status carries the HTTP-like code of the provider response (0 when the
// request never produced one). Callers branch on Status; they never parse
// the message.
type Error struct {
	// Op is the client operation, e.g. "metadata" or "read_file".
	Op string

	// Path is the remote path involved, if any.
	Path string

	// Status is the HTTP-like status code.
	Status int

	// Err is the underlying provider error.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("remote %s", e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a *Error.
func NewError(op, path string, status int, err error) *Error {
	return &Error{Op: op, Path: path, Status: status, Err: err}
}

// StatusOf returns the status carried by a *Error in err's chain, or 0.
func StatusOf(err error) int {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Status
	}
	return 0
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsConflict reports whether err is a remote 409.
func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}

// IsRateLimited reports whether the remote refused the call for load
// reasons (429 or 503).
func IsRateLimited(err error) bool {
	s := StatusOf(err)
	return s == http.StatusServiceUnavailable || s == http.StatusTooManyRequests
}
