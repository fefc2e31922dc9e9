package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Gate or output validation failed
	ErrCatState      ErrorCategory = "state"      // Illegal transition or corrupt state
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatLock       ErrorCategory = "lock"       // Lock acquisition failed
	ErrCatIO         ErrorCategory = "io"         // Filesystem failure
)

// DomainError represents a structured error from the state machine.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{Category: ErrCatState, Code: code, Message: message}
}

// ErrNotFound creates a not-found error.
func ErrNotFound(code, message string) *DomainError {
	return &DomainError{Category: ErrCatNotFound, Code: code, Message: message}
}

// ErrLock creates a lock error.
func ErrLock(message string) *DomainError {
	return &DomainError{Category: ErrCatLock, Code: "LOCK_FAILED", Message: message}
}

// ErrIO creates an IO error.
func ErrIO(message string) *DomainError {
	return &DomainError{Category: ErrCatIO, Code: "IO_FAILED", Message: message}
}

// ValidationError aggregates every reason a validation pass rejected a
// phase. Gate checks never fail fast; callers receive all reasons in
// one error.
type ValidationError struct {
	Phase    string
	Reasons  []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("phase %q validation failed: %s", e.Phase, strings.Join(e.Reasons, "; "))
}

// NewValidationError creates an aggregated validation error.
func NewValidationError(phase string, reasons, warnings []string) *ValidationError {
	return &ValidationError{Phase: phase, Reasons: reasons, Warnings: warnings}
}

// IsNotFound reports whether err is a not-found DomainError.
func IsNotFound(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Category == ErrCatNotFound
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
