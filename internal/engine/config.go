package engine

import (
	"context"
	"slices"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
)

// SyncFunc is a synchronous validator. It must be pure: it is re-run on
// every error query with the current values restricted to the
// validator's field filter.
type SyncFunc func(values ir.Values) []ir.FormError

// AsyncFunc is an asynchronous validator. It runs on its own goroutine
// with the values persisted at run start. Returning (nil, nil) is a
// protocol violation.
//
// Cancellation is cooperative: poll token or register on it. The
// controller ignores the result of a cancelled or superseded run.
type AsyncFunc func(ctx context.Context, req ir.RunningRequest, values ir.Values, token *cancel.Token) (*ir.ValidationResult, error)

// SubmitHandler performs a submission. Returning (nil, nil) is a protocol
// violation; use ir.Success or ir.Failure.
type SubmitHandler func(ctx context.Context, values ir.Values, token *cancel.Token) (*ir.SubmitResult, error)

// AfterSubmitFunc is notified after a submit result has been accepted.
// It runs on the goroutine that called Submit, outside the state loop, and
// may call back into the controller.
type AfterSubmitFunc func(c *Controller)

// Validator describes one configured validator. Exactly one of Sync and
// Async must be set.
type Validator struct {
	// ID names the validator. For async validators it is the validation
	// kind passed to RequestAsyncValidation.
	ID string

	// Fields filters the values the validator sees and declares which
	// fields it validates. AllFields() (or the zero value) means the whole
	// form.
	Fields ir.FieldList

	Sync  SyncFunc
	Async AsyncFunc
}

// IsAsync reports whether v is an async validator.
func (v Validator) IsAsync() bool { return v.Async != nil }

// Config holds the collaborator inputs of a controller.
type Config struct {
	// InitialValues seed the value history as the first persisted
	// baseline. May be nil.
	InitialValues ir.Values

	// SubmitHandler performs submissions. Without one, Submit only
	// cancels a pending attempt.
	SubmitHandler SubmitHandler

	// Validators in evaluation order. Synchronous errors are reported in
	// this order.
	Validators []Validator

	// AfterSubmit is notified after every accepted submit result.
	AfterSubmit AfterSubmitFunc

	// UnvalidatedFieldsAreValid decides what IsValidated reports for a
	// field no validator covers.
	UnvalidatedFieldsAreValid bool
}

// normalize checks the configuration, defaults empty validator filters to
// the whole form and indexes async validators by kind.
func (cfg *Config) normalize() (map[string]Validator, error) {
	cfg.Validators = slices.Clone(cfg.Validators)
	async := make(map[string]Validator)
	seen := make(map[string]bool)
	for i := range cfg.Validators {
		v := &cfg.Validators[i]
		if !v.Fields.IsAll() && v.Fields.Len() == 0 {
			v.Fields = ir.AllFields()
		}
		if v.ID == "" {
			return nil, newConfigError("validator %d: empty id", i)
		}
		if seen[v.ID] {
			return nil, newConfigError("validator %q: duplicate id", v.ID)
		}
		seen[v.ID] = true

		switch {
		case v.Sync != nil && v.Async != nil:
			return nil, newConfigError("validator %q: both sync and async set", v.ID)
		case v.Sync == nil && v.Async == nil:
			return nil, newConfigError("validator %q: neither sync nor async set", v.ID)
		case v.Async != nil:
			async[v.ID] = *v
		}
	}
	for field, value := range cfg.InitialValues {
		if value == nil {
			return nil, newConfigError("initial value %q: nil, use ir.IRNull{}", field)
		}
	}
	return async, nil
}
