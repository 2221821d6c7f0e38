package engine

import (
	"slices"

	"github.com/roach88/slowforest/internal/ir"
)

// ErrorQuery selects errors from GetErrors. The zero value selects every
// fresh error.
type ErrorQuery struct {
	// Field keeps errors about this field (whole-form errors always
	// match). Empty means every error.
	Field string

	// IncludeOutdated keeps errors whose inputs changed since they were
	// computed, or whose validation is being re-run.
	IncludeOutdated bool
}

// errorInputs is the part of the state error aggregation needs, captured
// inside the loop so validators can run outside it.
type errorInputs struct {
	now            ir.Time
	values         ir.Values
	derived        []ir.ProcessedError
	syncValidators []Validator
}

// GetErrors returns the current errors: synchronous validator errors, then
// the latest resolved submit's errors, then resolved async validation
// errors (most recently resolved first). Producer order is kept within
// each group.
//
// Errors that name no field are reported as whole-form errors.
//
// Synchronous errors are always fresh. A submit error is outdated once a
// field it names (any field, for whole-form errors) changed after the
// submit started. An async error is outdated while a pending or running
// request exists for its key.
//
// Synchronous validators run on the calling goroutine.
func (c *Controller) GetErrors(q ErrorQuery) []ir.ProcessedError {
	var in errorInputs
	c.view(func(s *state) { in = c.captureErrorInputs(s) })

	all := make([]ir.ProcessedError, 0, len(in.derived))
	for _, v := range in.syncValidators {
		for _, fe := range v.Sync(restrict(in.values, v.Fields)) {
			all = append(all, ir.ProcessedError{
				FormError: fe.Normalized(),
				Time:      in.now,
				Source:    ir.SourceSynchronous{},
			})
		}
	}
	all = append(all, in.derived...)

	return slices.DeleteFunc(all, func(e ir.ProcessedError) bool {
		if e.IsOutdated && !q.IncludeOutdated {
			return true
		}
		return q.Field != "" && !e.Fields.Contains(q.Field)
	})
}

// HasErrors reports whether GetErrors(q) is non-empty.
func (c *Controller) HasErrors(q ErrorQuery) bool {
	return len(c.GetErrors(q)) > 0
}

func (c *Controller) captureErrorInputs(s *state) errorInputs {
	in := errorInputs{
		now:    c.clock.Current(),
		values: s.values.AllValues(),
	}
	for _, v := range c.cfg.Validators {
		if v.Sync != nil {
			in.syncValidators = append(in.syncValidators, v)
		}
	}

	if sub := s.resolvedSubmit; sub != nil {
		for _, fe := range sub.Result.Errors {
			fe = fe.Normalized()
			in.derived = append(in.derived, ir.ProcessedError{
				FormError:  fe,
				Time:       sub.StartTime,
				Source:     ir.SourceSubmit{},
				IsOutdated: s.values.ChangedSince(fe.Fields, sub.StartTime),
			})
		}
	}

	for _, r := range s.resolved {
		outdated := s.awaitingRefresh(r.Key)
		for _, fe := range r.Errors {
			fe = fe.Normalized()
			in.derived = append(in.derived, ir.ProcessedError{
				FormError:  fe,
				Time:       r.StartTime,
				Source:     ir.SourceAsynchronous{Kind: r.Key.Kind, Fields: r.Key.Fields},
				IsOutdated: outdated,
			})
		}
	}
	return in
}
