package engine

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
)

type pendingEntry struct {
	req ir.PendingRequest
	src *cancel.Source
}

type runningEntry struct {
	req ir.RunningRequest
	src *cancel.Source
}

// launch is one validator call prepared inside the loop and executed
// outside it.
type launch struct {
	entry  *runningEntry
	fn     AsyncFunc
	values ir.Values
}

// RequestAsyncValidation records the intent to run validator kind against
// fields. A pending request with the same (kind, fields) key is replaced
// and its token cancelled. Nothing runs until RunAsyncValidations.
//
// Returns an UNKNOWN_VALIDATOR protocol error if kind names no async
// validator.
func (c *Controller) RequestAsyncValidation(kind string, fields ir.FieldList) error {
	if _, ok := c.async[kind]; !ok {
		return newUnknownValidatorError(kind)
	}
	key := ir.RequestKey{Kind: kind, Fields: fields}

	return c.update(func(tx *txn) error {
		t := tx.tick()

		if i := slices.IndexFunc(tx.s.pending, func(p *pendingEntry) bool { return p.req.Key.Equal(key) }); i >= 0 {
			old := tx.s.pending[i]
			tx.s.pending = slices.Delete(tx.s.pending, i, i+1)
			tx.later(old.src.Cancel)
			tx.emit(ir.Event{Kind: ir.EventValidationRequestReplaced, Time: t, ValidationKind: kind, Fields: fieldsPtr(fields)})
			tx.c.logger.Debug("validation request replaced", "key", key.String(), "requested_at", old.req.RequestTime)
		}

		src := cancel.NewSource()
		tx.s.pending = append(tx.s.pending, &pendingEntry{
			req: ir.PendingRequest{Key: key, RequestTime: t, Token: src.Token()},
			src: src,
		})
		tx.emit(ir.Event{Kind: ir.EventValidationRequested, Time: t, ValidationKind: kind, Fields: fieldsPtr(fields)})
		return nil
	})
}

// RunAsyncValidations starts every pending request whose fields include
// field (the AllFields sentinel includes every field) and blocks until
// all of the started validators have returned.
//
// Values are persisted and every started request shares one start time.
// A running request with the same key is superseded: its token is
// cancelled and its eventual result discarded. Results are accepted only
// for requests that are still current when they arrive.
//
// The first validator error (or protocol violation) is returned; a failed
// request is cleared and earlier resolved results for its key are kept.
func (c *Controller) RunAsyncValidations(ctx context.Context, field string) error {
	return c.runValidations(ctx, func(p ir.PendingRequest) bool { return p.Key.Fields.Contains(field) })
}

// RunAllAsyncValidations starts every pending request. See
// RunAsyncValidations.
func (c *Controller) RunAllAsyncValidations(ctx context.Context) error {
	return c.runValidations(ctx, func(ir.PendingRequest) bool { return true })
}

func (c *Controller) runValidations(ctx context.Context, match func(ir.PendingRequest) bool) error {
	if len(c.async) == 0 {
		return &ProtocolError{
			Code:    ErrCodeNoAsyncValidators,
			Message: "async validations requested but no async validator is configured",
		}
	}

	var launches []launch
	err := c.update(func(tx *txn) error {
		var selected []*pendingEntry
		tx.s.pending = slices.DeleteFunc(tx.s.pending, func(p *pendingEntry) bool {
			if match(p.req) {
				selected = append(selected, p)
				return true
			}
			return false
		})
		if len(selected) == 0 {
			return nil
		}

		tx.persist()
		start := tx.tick()

		for _, p := range selected {
			key := p.req.Key
			if i := tx.s.runningIndex(key); i >= 0 {
				old := tx.s.running[i]
				tx.s.running = slices.Delete(tx.s.running, i, i+1)
				tx.later(old.src.Cancel)
				tx.emit(ir.Event{Kind: ir.EventValidationSuperseded, Time: start, ValidationKind: key.Kind, Fields: fieldsPtr(key.Fields), AttemptID: old.req.ID})
				tx.c.logger.Debug("validation superseded", "key", key.String(), "attempt", old.req.ID)
			}

			entry := &runningEntry{
				req: ir.RunningRequest{
					ID:          tx.c.ids.Generate(),
					Key:         key,
					RequestTime: p.req.RequestTime,
					StartTime:   start,
					Token:       p.req.Token,
				},
				src: p.src,
			}
			tx.s.running = append(tx.s.running, entry)
			tx.emit(ir.Event{Kind: ir.EventValidationStarted, Time: start, ValidationKind: key.Kind, Fields: fieldsPtr(key.Fields), AttemptID: entry.req.ID})

			v := tx.c.async[key.Kind]
			launches = append(launches, launch{
				entry:  entry,
				fn:     v.Async,
				values: restrict(tx.s.values.AllValues(), v.Fields),
			})
		}
		return nil
	})
	if err != nil || len(launches) == 0 {
		return err
	}

	var g errgroup.Group
	for _, l := range launches {
		g.Go(func() error {
			result, callErr := l.fn(ctx, l.entry.req, l.values, l.entry.req.Token)
			return c.finishValidation(l.entry, result, callErr)
		})
	}
	return g.Wait()
}

// finishValidation applies the outcome of one validator call.
func (c *Controller) finishValidation(entry *runningEntry, result *ir.ValidationResult, callErr error) error {
	req := entry.req
	return c.update(func(tx *txn) error {
		i := slices.Index(tx.s.running, entry)
		if i < 0 {
			tx.emit(ir.Event{Kind: ir.EventValidationDiscarded, ValidationKind: req.Key.Kind, Fields: fieldsPtr(req.Key.Fields), AttemptID: req.ID})
			tx.c.logger.Debug("stale validation result discarded", "key", req.Key.String(), "attempt", req.ID)
			return nil
		}
		tx.s.running = slices.Delete(tx.s.running, i, i+1)
		entry.src.Close()

		if callErr == nil && result == nil {
			callErr = newMissingResultError(req.Key.Kind, req.ID)
		}
		if callErr != nil {
			t := tx.tick()
			tx.emit(ir.Event{Kind: ir.EventValidationFailed, Time: t, ValidationKind: req.Key.Kind, Fields: fieldsPtr(req.Key.Fields), AttemptID: req.ID, Err: callErr.Error()})
			tx.c.logger.Error("async validation failed", "key", req.Key.String(), "attempt", req.ID, "error", callErr)
			return fmt.Errorf("async validation %s: %w", req.Key, callErr)
		}

		end := tx.tick()
		resolved := ir.ResolvedRequest{
			ID:          req.ID,
			Key:         req.Key,
			RequestTime: req.RequestTime,
			StartTime:   req.StartTime,
			EndTime:     end,
			Errors:      slices.Clone(result.Errors),
		}
		tx.s.resolved = slices.DeleteFunc(tx.s.resolved, func(r ir.ResolvedRequest) bool { return r.Key.Equal(req.Key) })
		tx.s.resolved = slices.Insert(tx.s.resolved, 0, resolved)

		tx.emit(ir.Event{Kind: ir.EventValidationResolved, Time: end, ValidationKind: req.Key.Kind, Fields: fieldsPtr(req.Key.Fields), AttemptID: req.ID, ErrorCount: len(resolved.Errors)})
		tx.c.logger.Debug("validation resolved", "key", req.Key.String(), "attempt", req.ID, "errors", len(resolved.Errors))
		return nil
	})
}

// CancelAsyncValidation drops the pending and running requests for
// (kind, fields) and cancels their tokens. A running request's result is
// discarded when it arrives. The resolved result, if any, is kept.
func (c *Controller) CancelAsyncValidation(kind string, fields ir.FieldList) error {
	key := ir.RequestKey{Kind: kind, Fields: fields}
	return c.update(func(tx *txn) error {
		var canceled []*cancel.Source
		var attempts []string

		tx.s.pending = slices.DeleteFunc(tx.s.pending, func(p *pendingEntry) bool {
			if p.req.Key.Equal(key) {
				canceled = append(canceled, p.src)
				attempts = append(attempts, "")
				return true
			}
			return false
		})
		if i := tx.s.runningIndex(key); i >= 0 {
			r := tx.s.running[i]
			tx.s.running = slices.Delete(tx.s.running, i, i+1)
			canceled = append(canceled, r.src)
			attempts = append(attempts, r.req.ID)
		}
		if len(canceled) == 0 {
			return nil
		}

		t := tx.tick()
		for i, src := range canceled {
			tx.later(src.Cancel)
			tx.emit(ir.Event{Kind: ir.EventValidationCanceled, Time: t, ValidationKind: kind, Fields: fieldsPtr(fields), AttemptID: attempts[i]})
		}
		tx.c.logger.Debug("validation canceled", "key", key.String())
		return nil
	})
}

// GetAsyncValidationStatus reports the pending, running and resolved
// stages recorded for (kind, fields).
func (c *Controller) GetAsyncValidationStatus(kind string, fields ir.FieldList) (status ir.ValidationStatus) {
	key := ir.RequestKey{Kind: kind, Fields: fields}
	c.view(func(s *state) { status = s.status(key) })
	return status
}

// AsyncValidationStatuses reports every key with at least one recorded
// stage, in the order the keys were first seen: pending, then running,
// then resolved.
func (c *Controller) AsyncValidationStatuses() (out []ir.ValidationStatus) {
	c.view(func(s *state) {
		var keys []ir.RequestKey
		add := func(k ir.RequestKey) {
			if !slices.ContainsFunc(keys, k.Equal) {
				keys = append(keys, k)
			}
		}
		for _, p := range s.pending {
			add(p.req.Key)
		}
		for _, r := range s.running {
			add(r.req.Key)
		}
		for _, r := range s.resolved {
			add(r.Key)
		}
		for _, k := range keys {
			out = append(out, s.status(k))
		}
	})
	return out
}

// IsAwaitingValidation reports whether a pending request covers field.
func (c *Controller) IsAwaitingValidation(field string) (awaiting bool) {
	c.view(func(s *state) {
		awaiting = slices.ContainsFunc(s.pending, func(p *pendingEntry) bool { return p.req.Key.Fields.Contains(field) })
	})
	return awaiting
}

// IsValidating reports whether a running request covers field.
func (c *Controller) IsValidating(field string) (validating bool) {
	c.view(func(s *state) {
		validating = slices.ContainsFunc(s.running, func(r *runningEntry) bool { return r.req.Key.Fields.Contains(field) })
	})
	return validating
}

// IsValidated reports whether validation of field has settled: no pending
// or running request covers it, and either a sync validator's filter covers
// it or a resolved request does. An async validator that has not resolved
// yet does not count. Fields nothing covers report
// Config.UnvalidatedFieldsAreValid.
func (c *Controller) IsValidated(field string) (validated bool) {
	c.view(func(s *state) {
		inFlight := slices.ContainsFunc(s.pending, func(p *pendingEntry) bool { return p.req.Key.Fields.Contains(field) }) ||
			slices.ContainsFunc(s.running, func(r *runningEntry) bool { return r.req.Key.Fields.Contains(field) })
		if inFlight {
			validated = false
			return
		}

		covered := slices.ContainsFunc(c.cfg.Validators, func(v Validator) bool { return v.Sync != nil && v.Fields.Contains(field) }) ||
			slices.ContainsFunc(s.resolved, func(r ir.ResolvedRequest) bool { return r.Key.Fields.Contains(field) })
		if !covered {
			validated = c.cfg.UnvalidatedFieldsAreValid
			return
		}
		validated = true
	})
	return validated
}

func (s *state) runningIndex(key ir.RequestKey) int {
	return slices.IndexFunc(s.running, func(r *runningEntry) bool { return r.req.Key.Equal(key) })
}

// awaitingRefresh reports whether a pending or running request exists for
// key, which outdates the key's resolved result.
func (s *state) awaitingRefresh(key ir.RequestKey) bool {
	return slices.ContainsFunc(s.pending, func(p *pendingEntry) bool { return p.req.Key.Equal(key) }) ||
		s.runningIndex(key) >= 0
}

func (s *state) status(key ir.RequestKey) ir.ValidationStatus {
	status := ir.ValidationStatus{Key: key}
	if i := slices.IndexFunc(s.pending, func(p *pendingEntry) bool { return p.req.Key.Equal(key) }); i >= 0 {
		p := s.pending[i].req
		status.Pending = &p
	}
	if i := s.runningIndex(key); i >= 0 {
		r := s.running[i].req
		status.Running = &r
	}
	if i := slices.IndexFunc(s.resolved, func(r ir.ResolvedRequest) bool { return r.Key.Equal(key) }); i >= 0 {
		r := s.resolved[i]
		status.Resolved = &r
	}
	return status
}

// restrict returns the values visible through fields.
func restrict(values ir.Values, fields ir.FieldList) ir.Values {
	if fields.IsAll() {
		return values
	}
	out := make(ir.Values, fields.Len())
	for _, name := range fields.Names() {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}
