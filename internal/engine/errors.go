package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a mutation was rejected. None of them are
// transient; retrying the same request fails the same way.
type ErrorKind int

const (
	OrderingViolation ErrorKind = iota + 1
	DuplicateEvent
	MissingDescription
	UnknownThread
	InvalidState
	MalformedEdit
)

func (k ErrorKind) String() string {
	switch k {
	case OrderingViolation:
		return "ordering violation"
	case DuplicateEvent:
		return "duplicate event"
	case MissingDescription:
		return "missing description"
	case UnknownThread:
		return "unknown thread"
	case InvalidState:
		return "invalid state"
	case MalformedEdit:
		return "malformed edit"
	}
	return "unknown error"
}

// Error is returned by every rejected mutation. It is raised before any
// persisted state is touched.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches another *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrOrderingViolation  = &Error{Kind: OrderingViolation}
	ErrDuplicateEvent     = &Error{Kind: DuplicateEvent}
	ErrMissingDescription = &Error{Kind: MissingDescription}
	ErrUnknownThread      = &Error{Kind: UnknownThread}
	ErrInvalidState       = &Error{Kind: InvalidState}
	ErrMalformedEdit      = &Error{Kind: MalformedEdit}
)

func errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not an engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
