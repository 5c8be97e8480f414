// Package apperror holds the error taxonomy shared by the aggregates, the
// outbound clients and the reconciliation jobs.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates an illegal status transition was requested.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrNotFound indicates an aggregate id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrExternalUnavailable indicates a carrier, wallet or shop API call failed.
	ErrExternalUnavailable = errors.New("external service unavailable")
	// ErrValidation indicates malformed input to a constructor or setter.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the stored version changed since the aggregate was loaded.
	ErrConflict = errors.New("concurrent modification")
)

// StateError carries the attempted source/target pair of a rejected transition.
type StateError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s -> %s", e.Entity, ErrInvalidState, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// NewStateError builds a StateError for entity moving from -> to.
func NewStateError(entity, from, to, reason string) error {
	return &StateError{Entity: entity, From: from, To: to, Reason: reason}
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err is expected to clear up on a later run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalUnavailable) || errors.Is(err, ErrConflict)
}
