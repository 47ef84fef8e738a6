package vfs

import (
	"errors"
	"fmt"
)

// Error is the error type of the virtual filesystem.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the remote path related to the error (if applicable)
	Path string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c})
// works as a category test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Message == "" && t.Path == ""
}

// ErrorCode represents the category of a filesystem error.
type ErrorCode int

const (
	// ErrNotDirectory indicates a directory operation on a file node
	ErrNotDirectory ErrorCode = iota + 1

	// ErrIsDirectory indicates a file operation on a directory node
	ErrIsDirectory

	// ErrDeleted indicates construction from tombstoned metadata
	ErrDeleted

	// ErrNotRenderable indicates rendering a file without a renderable type
	ErrNotRenderable

	// ErrAuthorizationMissing indicates no author capability is available
	ErrAuthorizationMissing

	// ErrIncompleteListing indicates a directory could not be fully listed
	ErrIncompleteListing
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotDirectory:
		return "not_directory"
	case ErrIsDirectory:
		return "is_directory"
	case ErrDeleted:
		return "deleted"
	case ErrNotRenderable:
		return "not_renderable"
	case ErrAuthorizationMissing:
		return "authorization_missing"
	case ErrIncompleteListing:
		return "incomplete_listing"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

func newError(code ErrorCode, path, message string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// CodeOf returns the code of a *Error in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	return 0
}

// IsPrecondition reports whether err is an operation invoked against a node
// of the wrong kind. These are programmer errors, not recoverable.
func IsPrecondition(err error) bool {
	switch CodeOf(err) {
	case ErrNotDirectory, ErrIsDirectory, ErrDeleted, ErrNotRenderable:
		return true
	default:
		return false
	}
}
