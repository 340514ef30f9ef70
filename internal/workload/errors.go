package workload

import (
	"errors"
	"fmt"
)

// Kind is a taxonomy of error categories a caller can branch on, independent
// of any particular error message. Every Error carries exactly one Kind.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindControllerUnavailable
	KindProcessFailed
	KindIOError
	KindInvalidState
)

// String returns the stable, human-readable label for the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindPermissionDenied:
		return "permission_denied"
	case KindControllerUnavailable:
		return "controller_unavailable"
	case KindProcessFailed:
		return "process_failed"
	case KindIOError:
		return "io_error"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every supervision-engine operation. It
// pairs a stable Kind with an optional wrapped cause and, for NotFound /
// AlreadyExists, the id involved.
type Error struct {
	Kind Kind
	ID   ID
	Err  error
}

func (e *Error) Error() string {
	if e.ID != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, letting callers
// write errors.Is(err, &workload.Error{Kind: workload.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError constructs an *Error of the given kind, optionally scoped to an id
// and wrapping a lower-level cause.
func NewError(kind Kind, id ID, err error) *Error {
	return &Error{Kind: kind, ID: id, Err: err}
}

// IsKind reports whether err (or any error it wraps) is a *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
