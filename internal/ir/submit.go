package ir

import "github.com/roach88/slowforest/internal/cancel"

// SubmitResult is the structured outcome returned by a submit handler.
// An empty Errors slice means the submission succeeded.
type SubmitResult struct {
	Errors []FormError `json:"errors"`
	Meta   IRValue     `json:"meta,omitempty"`
}

// Success builds a SubmitResult with no errors.
func Success(meta IRValue) *SubmitResult {
	return &SubmitResult{Errors: []FormError{}, Meta: meta}
}

// Failure builds a SubmitResult carrying errors.
func Failure(errs []FormError, meta IRValue) *SubmitResult {
	return &SubmitResult{Errors: errs, Meta: meta}
}

// Succeeded reports whether the result carries no errors.
func (r SubmitResult) Succeeded() bool { return len(r.Errors) == 0 }

// SubmitAttempt is one submission. Sealed sum type over PendingSubmit and
// ResolvedSubmit.
type SubmitAttempt interface {
	submitAttempt()
	// Started returns the logical time the attempt started.
	Started() Time
}

// PendingSubmit is an attempt whose handler has not returned yet.
// At most one exists per controller.
type PendingSubmit struct {
	ID        string
	StartTime Time
	Token     *cancel.Token
	// Values is the snapshot handed to the handler.
	Values Values
}

func (PendingSubmit) submitAttempt()  {}
func (s PendingSubmit) Started() Time { return s.StartTime }

// ResolvedSubmit is the latest accepted submit outcome.
type ResolvedSubmit struct {
	ID        string
	StartTime Time
	EndTime   Time
	Result    SubmitResult
}

func (ResolvedSubmit) submitAttempt()  {}
func (s ResolvedSubmit) Started() Time { return s.StartTime }
