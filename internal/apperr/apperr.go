// Package apperr defines the application error taxonomy shared by the
// database controllers, the access resolver and the upload pipeline.
// Every error that crosses a package boundary is classified into one of
// the kinds below so the web layer can map it to an HTTP status without
// inspecting error strings.
package apperr

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// Kind classifies an application error.
type Kind int

const (
	// KindInternal is an unexpected error wrapped for logging; never retried.
	KindInternal Kind = iota
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindForbidden means a role or ownership check failed; never retried.
	KindForbidden
	// KindConflict means a uniqueness violation not caused by a deadlock.
	KindConflict
	// KindDeadlockExhausted means the transaction retry budget ran out.
	KindDeadlockExhausted
	// KindExtractionFailed means the remote extraction service failed after
	// its own retries. Non-fatal to an upload.
	KindExtractionFailed
	// KindCancelled means the operation was aborted by the user.
	KindCancelled
)

// Error is a classified application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}

	return e.Msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error. A nil cause yields nil.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Internal wraps an unexpected error as an internal one.
func Internal(err error, msg string) *Error {
	return Wrap(KindInternal, err, msg)
}

// NotFound creates a not-found error for the named entity.
func NotFound(entity string) *Error {
	return New(KindNotFound, entity+" not found")
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return New(KindForbidden, msg)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}

	return false
}

// Classified reports whether err is an intentional application-level error,
// i.e. one that must propagate unchanged and must never be retried.
func Classified(err error) bool {
	var ae *Error

	return errors.As(err, &ae)
}

// HTTPStatus maps an error kind to a fiber status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindConflict:
		return fiber.StatusBadRequest
	case KindDeadlockExhausted:
		return fiber.StatusServiceUnavailable
	case KindCancelled:
		return fiber.StatusConflict
	case KindExtractionFailed, KindInternal:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}
