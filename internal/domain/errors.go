package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared across services and repositories. Callers classify
// failures with errors.Is; handlers map each kind to an HTTP status.
var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that is valid in shape but illegal in the
	// current state: duplicate registration, time overlap, capacity reached,
	// or a transition attempted from the wrong status.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks a caller lacking the required role or ownership.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a missing entity. It is checked before ownership so
	// the two failure modes stay distinguishable.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrForbidden)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
