package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/slowforest/internal/cancel"
)

var (
	// ErrClosed is returned by mutations issued after Close.
	ErrClosed = errors.New("controller closed")

	// ErrCanceled is returned by Submit when the attempt was cancelled or
	// superseded before its handler returned. Aliases cancel.ErrCanceled so
	// errors.Is matches context causes produced by Token.Context too.
	ErrCanceled = cancel.ErrCanceled
)

// ProtocolError reports collaborator code breaking the controller's
// contract: a validator or submit handler returning no result, or a
// request naming a validator that does not exist.
//
// Protocol errors are programming errors. They are reported to the caller
// and logged, never folded into the form's validation errors.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// ValidationKind names the validator involved, if any.
	ValidationKind string

	// AttemptID identifies the run or submit attempt, if any.
	AttemptID string
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeMissingResult indicates a validator or handler returned
	// neither a result nor an error.
	ErrCodeMissingResult ProtocolErrorCode = "MISSING_RESULT"

	// ErrCodeUnknownValidator indicates a request for a validation kind
	// with no configured async validator.
	ErrCodeUnknownValidator ProtocolErrorCode = "UNKNOWN_VALIDATOR"

	// ErrCodeNoAsyncValidators indicates an async run on a controller
	// configured without async validators.
	ErrCodeNoAsyncValidators ProtocolErrorCode = "NO_ASYNC_VALIDATORS"

	// ErrCodeInvalidConfig indicates a malformed Config passed to New.
	ErrCodeInvalidConfig ProtocolErrorCode = "INVALID_CONFIG"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.ValidationKind != "" && e.AttemptID != "" {
		return fmt.Sprintf("%s: %s (kind=%s, attempt=%s)", e.Code, e.Message, e.ValidationKind, e.AttemptID)
	}
	if e.ValidationKind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.ValidationKind)
	}
	if e.AttemptID != "" {
		return fmt.Sprintf("%s: %s (attempt=%s)", e.Code, e.Message, e.AttemptID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsMissingResult returns true if err is a MISSING_RESULT protocol error.
// Uses errors.As to handle wrapped errors.
func IsMissingResult(err error) bool {
	return hasCode(err, ErrCodeMissingResult)
}

// IsUnknownValidator returns true if err is an UNKNOWN_VALIDATOR protocol
// error.
func IsUnknownValidator(err error) bool {
	return hasCode(err, ErrCodeUnknownValidator)
}

// IsInvalidConfig returns true if err is an INVALID_CONFIG protocol error.
func IsInvalidConfig(err error) bool {
	return hasCode(err, ErrCodeInvalidConfig)
}

func hasCode(err error, code ProtocolErrorCode) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

func newMissingResultError(kind, attemptID string) *ProtocolError {
	what := "submit handler"
	if kind != "" {
		what = "async validator"
	}
	return &ProtocolError{
		Code:           ErrCodeMissingResult,
		Message:        what + " returned neither a result nor an error",
		ValidationKind: kind,
		AttemptID:      attemptID,
	}
}

func newUnknownValidatorError(kind string) *ProtocolError {
	return &ProtocolError{
		Code:           ErrCodeUnknownValidator,
		Message:        "no async validator is configured for this kind",
		ValidationKind: kind,
	}
}

func newConfigError(format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf(format, args...),
	}
}
