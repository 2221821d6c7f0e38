package engine

import (
	"context"
	"fmt"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
)

type submitEntry struct {
	attempt ir.PendingSubmit
	src     *cancel.Source
}

// Submit runs the submit handler against the current values.
//
// Any pending attempt is cancelled and discarded first, so at most one
// attempt is in flight. Values are persisted, a fresh token is created and
// the handler is invoked on the calling goroutine with a snapshot of the
// values. When the handler returns:
//   - if the attempt was cancelled or superseded meanwhile, the result is
//     discarded and ErrCanceled is returned
//   - an error or a (nil, nil) return clears the attempt and is returned;
//     the previous resolved submit is kept
//   - otherwise the attempt becomes the resolved submit and AfterSubmit is
//     notified
//
// Without a configured handler Submit only cancels a pending attempt.
func (c *Controller) Submit(ctx context.Context) error {
	var attempt ir.PendingSubmit
	start := c.update(func(tx *txn) error {
		if c.cfg.SubmitHandler == nil {
			tx.cancelPendingSubmit(0)
			return nil
		}

		tx.persist()
		t := tx.tick()
		tx.cancelPendingSubmit(t)
		src := cancel.NewSource()
		attempt = ir.PendingSubmit{
			ID:        tx.c.ids.Generate(),
			StartTime: t,
			Token:     src.Token(),
			Values:    tx.s.values.AllValues(),
		}
		tx.s.submit = &submitEntry{attempt: attempt, src: src}
		tx.emit(ir.Event{Kind: ir.EventSubmitStarted, Time: t, AttemptID: attempt.ID})
		tx.c.logger.Debug("submit started", "attempt", attempt.ID, "time", t)
		return nil
	})
	if start != nil || c.cfg.SubmitHandler == nil {
		return start
	}

	result, callErr := c.cfg.SubmitHandler(ctx, attempt.Values.Clone(), attempt.Token)
	return c.finishSubmit(attempt, result, callErr)
}

func (c *Controller) finishSubmit(attempt ir.PendingSubmit, result *ir.SubmitResult, callErr error) error {
	return c.update(func(tx *txn) error {
		current := tx.s.submit
		if current == nil || current.attempt.StartTime != attempt.StartTime {
			tx.emit(ir.Event{Kind: ir.EventSubmitDiscarded, AttemptID: attempt.ID})
			tx.c.logger.Debug("stale submit result discarded", "attempt", attempt.ID)
			return ErrCanceled
		}
		tx.s.submit = nil
		current.src.Close()

		if callErr == nil && result == nil {
			callErr = newMissingResultError("", attempt.ID)
		}
		if callErr != nil {
			t := tx.tick()
			tx.emit(ir.Event{Kind: ir.EventSubmitFailed, Time: t, AttemptID: attempt.ID, Err: callErr.Error()})
			tx.c.logger.Error("submit failed", "attempt", attempt.ID, "error", callErr)
			return fmt.Errorf("submit %s: %w", attempt.ID, callErr)
		}

		end := tx.tick()
		tx.s.resolvedSubmit = &ir.ResolvedSubmit{
			ID:        attempt.ID,
			StartTime: attempt.StartTime,
			EndTime:   end,
			Result: ir.SubmitResult{
				Errors: append([]ir.FormError(nil), result.Errors...),
				Meta:   result.Meta,
			},
		}
		tx.emit(ir.Event{Kind: ir.EventSubmitResolved, Time: end, AttemptID: attempt.ID, ErrorCount: len(result.Errors)})
		tx.c.logger.Info("submit resolved",
			"attempt", attempt.ID,
			"start", attempt.StartTime,
			"end", end,
			"errors", len(result.Errors),
		)

		if hook := tx.c.cfg.AfterSubmit; hook != nil {
			tx.later(func() { hook(tx.c) })
		}
		return nil
	})
}

// CancelSubmit clears the pending attempt, if any, and cancels its token.
// The handler's eventual result is discarded.
func (c *Controller) CancelSubmit() error {
	return c.update(func(tx *txn) error {
		tx.cancelPendingSubmit(0)
		return nil
	})
}

// cancelPendingSubmit drops the pending attempt at time at. A zero at
// ticks; inside Submit the new attempt's start tick covers the change.
func (tx *txn) cancelPendingSubmit(at ir.Time) {
	current := tx.s.submit
	if current == nil {
		return
	}
	tx.s.submit = nil

	t := at
	if t == 0 {
		t = tx.tick()
	}
	tx.later(current.src.Cancel)
	tx.emit(ir.Event{Kind: ir.EventSubmitCanceled, Time: t, AttemptID: current.attempt.ID})
	tx.c.logger.Debug("submit canceled", "attempt", current.attempt.ID)
}

// GetPendingSubmit returns the in-flight submit attempt, if any.
func (c *Controller) GetPendingSubmit() (attempt ir.PendingSubmit, ok bool) {
	c.view(func(s *state) {
		if s.submit != nil {
			attempt, ok = s.submit.attempt, true
		}
	})
	return attempt, ok
}

// GetResolvedSubmit returns the latest accepted submit, if any.
func (c *Controller) GetResolvedSubmit() (resolved ir.ResolvedSubmit, ok bool) {
	c.view(func(s *state) {
		if s.resolvedSubmit != nil {
			resolved, ok = *s.resolvedSubmit, true
		}
	})
	return resolved, ok
}

// GetTimeResolvedSubmit returns the start time of the latest accepted
// submit.
func (c *Controller) GetTimeResolvedSubmit() (t ir.Time, ok bool) {
	c.view(func(s *state) {
		if s.resolvedSubmit != nil {
			t, ok = s.resolvedSubmit.StartTime, true
		}
	})
	return t, ok
}

// GetTimeLatestSubmit returns the start time of the pending attempt, or
// of the latest accepted submit when none is pending.
func (c *Controller) GetTimeLatestSubmit() (t ir.Time, ok bool) {
	c.view(func(s *state) {
		switch {
		case s.submit != nil:
			t, ok = s.submit.attempt.StartTime, true
		case s.resolvedSubmit != nil:
			t, ok = s.resolvedSubmit.StartTime, true
		}
	})
	return t, ok
}
