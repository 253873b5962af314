// Package errors defines the decoder's sentinel errors and a wrapper that
// carries a human-readable message plus an HTTP status for the service
// surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput marks malformed decode requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingStack marks a lookup into a result stack that was never
	// created or never filled; fatal for the current sentence.
	ErrMissingStack = errors.New("missing result stack")
	// ErrInconsistentDerivation marks a mismatch between a rule and the
	// sub-derivations supplied for it; fatal for the current sentence.
	ErrInconsistentDerivation = errors.New("inconsistent derivation")
	// ErrAlignmentConflict marks a duplicate alignment point during
	// reconstruction; fatal for the current sentence.
	ErrAlignmentConflict = errors.New("alignment point conflict")
	// ErrInternal marks any other internal consistency violation.
	ErrInternal = errors.New("internal error")
	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// AppError attaches a message to a sentinel error.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a fixed message.
func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

// Newf wraps a sentinel with a formatted message.
func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatusCode maps an error to the HTTP status the service surface
// should report.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
