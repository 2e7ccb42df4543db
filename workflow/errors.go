package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidState       = errors.New("invalid state")
	ErrMismatch           = errors.New("mismatch")
	ErrCollaborator       = errors.New("collaborator failure")
)

// Error carries a human readable reason on top of one of the sentinel kinds.
// errors.Is(err, ErrPreconditionFailed) matches while Error() returns only the reason.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound for the named entity
func NotFound(entity, id string) error {
	return newError(ErrNotFound, "%s %s not found", entity, id)
}

func preconditionFailed(format string, args ...any) error {
	return newError(ErrPreconditionFailed, format, args...)
}

func invalidArgument(format string, args ...any) error {
	return newError(ErrInvalidArgument, format, args...)
}

func invalidState(format string, args ...any) error {
	return newError(ErrInvalidState, format, args...)
}

// Errorf builds an *Error of the given kind for callers outside the package
func Errorf(kind error, format string, args ...any) error {
	return newError(kind, format, args...)
}
