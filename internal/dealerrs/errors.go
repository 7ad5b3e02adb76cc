// Package dealerrs defines the error kinds shared across the table, store,
// query, and HTTP layers, and the mapping from kind to HTTP status.
package dealerrs

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec.md §7 describes: by audience and
// by the HTTP status the adapter renders it to.
type Kind string

const (
	// KindBadParameter is a validation failure in client-supplied input.
	// Never logged as a server error; rendered as 400.
	KindBadParameter Kind = "bad_parameter"
	// KindLockTimeout means a named lock could not be acquired within the
	// bounded wait. Rendered as 500; the process keeps serving.
	KindLockTimeout Kind = "lock_timeout"
	// KindStoreFull means a table has no free pages and nothing evictable.
	KindStoreFull Kind = "store_full"
	// KindRecordTooLarge means a record batch exceeds elements_per_page.
	KindRecordTooLarge Kind = "record_too_large"
	// KindLowMemory is a warning-level condition, not normally surfaced to
	// a client; kept here so callers that do want to report it can.
	KindLowMemory Kind = "low_memory"
	// KindNameCollision/KindOutOfMemory are fatal to the single request
	// that triggered them; the operation is retried once by the caller.
	KindNameCollision Kind = "name_collision"
	KindOutOfMemory   Kind = "out_of_memory"
	// KindInternal covers everything unexpected.
	KindInternal Kind = "internal"
)

// Error is a typed error carrying a Kind and a human-readable message,
// grounded on the original's types::Error{message, code} and on this
// repo's teacher's rpc.ErrDaemonUnavailable sentinel-error style.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// is not one of ours.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code spec.md §7 assigns it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadParameter:
		return 400
	case KindLockTimeout, KindStoreFull, KindRecordTooLarge, KindNameCollision, KindOutOfMemory, KindInternal:
		return 500
	default:
		return 500
	}
}
