package schema

import (
	"cuelang.org/go/cue"

	"github.com/roach88/slowforest/internal/engine"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/rules"
)

// Validator IDs produced by Validators.
const (
	FieldsValidatorID = "fields"
	RulesValidatorID  = "rules"
	ChecksValidatorID = "checks"
)

// Validators returns the synchronous validators the form defines, in
// evaluation order: field constraints, tag rules, then whole-form checks.
// Sections the form leaves empty produce no validator.
func (f *Form) Validators() ([]engine.Validator, error) {
	var out []engine.Validator

	if len(f.Fields) > 0 {
		names := make([]string, len(f.Fields))
		for i, fd := range f.Fields {
			names[i] = fd.Name
		}
		out = append(out, engine.Validator{
			ID:     FieldsValidatorID,
			Fields: ir.Fields(names...),
			Sync:   f.checkFields,
		})
	}

	if len(f.Rules) > 0 {
		v, err := rules.New(RulesValidatorID, f.Rules...)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	if len(f.Checks) > 0 {
		out = append(out, engine.Validator{
			ID:     ChecksValidatorID,
			Fields: ir.AllFields(),
			Sync:   f.runChecks,
		})
	}
	return out, nil
}

// Config returns a controller configuration seeded with the form's initial
// values and validators. Callers add the submit handler and async
// validators.
func (f *Form) Config() (engine.Config, error) {
	validators, err := f.Validators()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		InitialValues: f.Initial.Clone(),
		Validators:    validators,
	}, nil
}

func (f *Form) checkFields(values ir.Values) []ir.FormError {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ir.FormError
	for _, fd := range f.Fields {
		v, ok := values[fd.Name]
		if !ok && fd.Optional {
			continue
		}
		if err := f.unify(fd.constraint, v); err != nil {
			msg := fd.Message
			if msg == "" {
				msg = cueMessage(err)
			}
			out = append(out, ir.FieldError(msg, fd.Name))
		}
	}
	return out
}

func (f *Form) runChecks(values ir.Values) []ir.FormError {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ir.FormError
	for _, c := range f.Checks {
		if c.when.Exists() && !f.satisfies(c.when, values) {
			continue
		}
		if !f.satisfies(c.require, values) {
			out = append(out, ir.FormError{Fields: c.Fields, Message: c.Message})
		}
	}
	return out
}

// satisfies reports whether every field constraint in cond holds. A field
// cond names but values lack does not satisfy it.
func (f *Form) satisfies(cond cue.Value, values ir.Values) bool {
	iter, err := cond.Fields()
	if err != nil {
		return false
	}
	for iter.Next() {
		v, ok := values[iter.Label()]
		if !ok || f.unify(iter.Value(), v) != nil {
			return false
		}
	}
	return true
}

// unify checks v against constraint. A nil v is checked as null. Must be
// called with f.mu held.
func (f *Form) unify(constraint cue.Value, v ir.IRValue) error {
	encoded := f.ctx.Encode(ir.ToNative(v))
	return constraint.Unify(encoded).Validate(cue.Concrete(true))
}
