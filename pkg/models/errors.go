package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the store, the lifecycle engine and the
// dispatcher. Callers match with errors.Is.
var (
	// ErrNotFound reports an unknown task, subscription or deliverable path.
	ErrNotFound = errors.New("not found")
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition reports a status change from a terminal status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrCorrupt reports a stored document that fails validation on read.
	ErrCorrupt = errors.New("corrupt record")
	// ErrStoreFailure reports an I/O error while reading or writing records.
	ErrStoreFailure = errors.New("store failure")
	// ErrDeliveryFailure reports a failed webhook delivery. It never
	// propagates out of asynchronous dispatch.
	ErrDeliveryFailure = errors.New("delivery failure")
)

// ValidationError lists every rule a value violated.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// validationErrors accumulates problems and turns them into a ValidationError.
type validationErrors []string

func (v *validationErrors) addf(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v validationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Problems: v}
}

// NewValidationError builds a ValidationError from a single problem.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}
