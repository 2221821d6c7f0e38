package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/testutil"
)

func staticSubmit(result *ir.SubmitResult, err error) SubmitHandler {
	return func(context.Context, ir.Values, *cancel.Token) (*ir.SubmitResult, error) {
		return result, err
	}
}

func TestSubmit_Resolves(t *testing.T) {
	gate := testutil.NewGate[*ir.SubmitResult]()
	c, rec := newTestController(t, Config{
		InitialValues: ir.Values{"name": ir.IRString("Ann")},
		SubmitHandler: gatedSubmit(gate),
	})
	ctx := testContext(t)

	require.NoError(t, c.SetValue("pet", ir.IRString("cat")))
	done := runAsync(func() error { return c.Submit(ctx) })
	call, err := gate.Await(ctx, "submit", 1)
	require.NoError(t, err)

	pending, ok := c.GetPendingSubmit()
	require.True(t, ok)
	assert.Equal(t, "id-2", pending.ID)
	assert.Equal(t, ir.Time(3), pending.StartTime)
	assert.Equal(t, ir.Values{"name": ir.IRString("Ann"), "pet": ir.IRString("cat")}, pending.Values)
	assert.Equal(t, pending.Values, call.Values)
	assert.Equal(t, 1, rec.Count(ir.EventValuesPersisted))

	latest, ok := c.GetTimeLatestSubmit()
	require.True(t, ok)
	assert.Equal(t, ir.Time(3), latest)
	_, ok = c.GetTimeResolvedSubmit()
	assert.False(t, ok)

	call.Resolve(ir.Success(ir.IRString("receipt-7")))
	require.NoError(t, waitErr(t, done))

	_, ok = c.GetPendingSubmit()
	assert.False(t, ok)
	resolved, ok := c.GetResolvedSubmit()
	require.True(t, ok)
	assert.Equal(t, "id-2", resolved.ID)
	assert.Equal(t, ir.Time(3), resolved.StartTime)
	assert.Equal(t, ir.Time(4), resolved.EndTime)
	assert.True(t, resolved.Result.Succeeded())
	assert.Equal(t, ir.IRString("receipt-7"), resolved.Result.Meta)
	assert.Equal(t, cancel.Closed, call.Token.State())

	at, ok := c.GetTimeResolvedSubmit()
	require.True(t, ok)
	assert.Equal(t, ir.Time(3), at)

	assert.Equal(t, []ir.EventKind{
		ir.EventInitialized,
		ir.EventValueSet,
		ir.EventValuesPersisted,
		ir.EventSubmitStarted,
		ir.EventSubmitResolved,
	}, rec.Kinds())
}

func TestSubmit_Supersession(t *testing.T) {
	gate := testutil.NewGate[*ir.SubmitResult]()
	c, rec := newTestController(t, Config{SubmitHandler: gatedSubmit(gate)})
	ctx := testContext(t)

	a := runAsync(func() error { return c.Submit(ctx) })
	callA, err := gate.Await(ctx, "submit", 1)
	require.NoError(t, err)

	b := runAsync(func() error { return c.Submit(ctx) })
	callB, err := gate.Await(ctx, "submit", 2)
	require.NoError(t, err)

	assert.True(t, callA.Token.IsCancellationRequested())
	assert.False(t, callB.Token.IsCancellationRequested())

	canceled, ok := rec.Last(ir.EventSubmitCanceled)
	require.True(t, ok)
	assert.Equal(t, "id-2", canceled.AttemptID)
	started, _ := rec.Last(ir.EventSubmitStarted)
	assert.Equal(t, started.Time, canceled.Time, "replacement shares the new start tick")

	// A resolving after B started is discarded.
	callA.Resolve(ir.Failure([]ir.FormError{ir.FormLevelError("from A")}, nil))
	assert.ErrorIs(t, waitErr(t, a), ErrCanceled)

	_, ok = c.GetResolvedSubmit()
	assert.False(t, ok, "A's result must never be visible")
	pending, ok := c.GetPendingSubmit()
	require.True(t, ok)
	assert.Equal(t, "id-3", pending.ID)
	assert.Equal(t, 1, rec.Count(ir.EventSubmitDiscarded))

	callB.Resolve(ir.Success(nil))
	require.NoError(t, waitErr(t, b))

	resolved, ok := c.GetResolvedSubmit()
	require.True(t, ok)
	assert.Equal(t, "id-3", resolved.ID)
	assert.Empty(t, c.GetErrors(ErrorQuery{IncludeOutdated: true}))
}

func TestSubmit_HandlerError(t *testing.T) {
	boom := errors.New("network down")
	calls := 0
	c, rec := newTestController(t, Config{
		SubmitHandler: func(context.Context, ir.Values, *cancel.Token) (*ir.SubmitResult, error) {
			calls++
			if calls == 1 {
				return ir.Success(nil), nil
			}
			return nil, boom
		},
	})
	ctx := testContext(t)

	require.NoError(t, c.Submit(ctx))
	err := c.Submit(ctx)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "submit id-3")

	_, ok := c.GetPendingSubmit()
	assert.False(t, ok)
	resolved, ok := c.GetResolvedSubmit()
	require.True(t, ok)
	assert.Equal(t, "id-2", resolved.ID, "failed attempt keeps previous result")

	ev, ok := rec.Last(ir.EventSubmitFailed)
	require.True(t, ok)
	assert.Equal(t, "id-3", ev.AttemptID)
	assert.Contains(t, ev.Err, "network down")
}

func TestSubmit_MissingResult(t *testing.T) {
	c, _ := newTestController(t, Config{SubmitHandler: staticSubmit(nil, nil)})

	err := c.Submit(testContext(t))
	require.Error(t, err)
	assert.True(t, IsMissingResult(err))

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "id-2", perr.AttemptID)
	assert.Empty(t, perr.ValidationKind)
}

func TestSubmit_NoHandler(t *testing.T) {
	c, rec := newTestController(t, Config{})

	require.NoError(t, c.Submit(testContext(t)))
	assert.Equal(t, ir.Time(1), c.GetTimeCurrent())
	assert.Equal(t, []ir.EventKind{ir.EventInitialized}, rec.Kinds())

	_, ok := c.GetTimeLatestSubmit()
	assert.False(t, ok)
}

func TestCancelSubmit(t *testing.T) {
	gate := testutil.NewGate[*ir.SubmitResult]()
	c, rec := newTestController(t, Config{SubmitHandler: gatedSubmit(gate)})
	ctx := testContext(t)

	done := runAsync(func() error { return c.Submit(ctx) })
	call, err := gate.Await(ctx, "submit", 1)
	require.NoError(t, err)

	require.NoError(t, c.CancelSubmit())
	at := c.GetTimeCurrent()
	require.NoError(t, c.CancelSubmit())
	assert.Equal(t, at, c.GetTimeCurrent(), "second cancel is a no-op")
	assert.Equal(t, 1, rec.Count(ir.EventSubmitCanceled))
	assert.True(t, call.Token.IsCancellationRequested())

	call.Resolve(ir.Success(nil))
	assert.ErrorIs(t, waitErr(t, done), ErrCanceled)

	_, ok := c.GetResolvedSubmit()
	assert.False(t, ok)
	_, ok = c.GetPendingSubmit()
	assert.False(t, ok)
}

func TestSubmit_HandlerObservesCancellation(t *testing.T) {
	started := make(chan struct{})
	c, _ := newTestController(t, Config{
		SubmitHandler: func(ctx context.Context, _ ir.Values, token *cancel.Token) (*ir.SubmitResult, error) {
			tctx, stop := token.Context(ctx)
			defer stop()
			close(started)
			<-tctx.Done()
			return nil, context.Cause(tctx)
		},
	})
	ctx := testContext(t)

	done := runAsync(func() error { return c.Submit(ctx) })
	<-started
	require.NoError(t, c.CancelSubmit())

	// The discard check wins over the handler's own error.
	assert.ErrorIs(t, waitErr(t, done), ErrCanceled)
}

func TestSubmit_AfterSubmitHook(t *testing.T) {
	var hooked atomic.Int32
	c, _ := newTestController(t, Config{
		SubmitHandler: staticSubmit(ir.Success(nil), nil),
		AfterSubmit: func(c *Controller) {
			hooked.Add(1)
			// Hooks may re-enter the controller.
			_ = c.SetTouched("submitted")
		},
	})

	require.NoError(t, c.Submit(testContext(t)))
	assert.Equal(t, int32(1), hooked.Load())
	assert.True(t, c.IsTouched("submitted"))
}

func TestSubmit_AfterSubmitSkippedOnFailure(t *testing.T) {
	var hooked atomic.Int32
	c, _ := newTestController(t, Config{
		SubmitHandler: staticSubmit(nil, errors.New("nope")),
		AfterSubmit:   func(*Controller) { hooked.Add(1) },
	})

	require.Error(t, c.Submit(testContext(t)))
	assert.Zero(t, hooked.Load())
}

func TestSubmit_ErrorsOutdatedByLaterEdits(t *testing.T) {
	c, _ := newTestController(t, Config{
		InitialValues: ir.Values{"name": ir.IRString("Ann"), "pet": ir.IRString("cat")},
		SubmitHandler: staticSubmit(ir.Failure([]ir.FormError{
			ir.FieldError("name taken", "name"),
			ir.FormLevelError("try again"),
		}, nil), nil),
	})

	require.NoError(t, c.Submit(testContext(t)))
	assert.Equal(t, []string{"name taken", "try again"}, ir.Messages(c.GetErrors(ErrorQuery{Field: "name"})))

	// Editing pet outdates the whole-form error only.
	require.NoError(t, c.SetValue("pet", ir.IRString("dog")))
	assert.Equal(t, []string{"name taken"}, ir.Messages(c.GetErrors(ErrorQuery{Field: "name"})))

	require.NoError(t, c.SetValue("name", ir.IRString("Bea")))
	assert.Empty(t, c.GetErrors(ErrorQuery{Field: "name"}))

	all := c.GetErrors(ErrorQuery{Field: "name", IncludeOutdated: true})
	require.Len(t, all, 2)
	for _, e := range all {
		assert.True(t, e.IsOutdated)
		assert.Equal(t, ir.SourceSubmit{}, e.Source)
		assert.Equal(t, ir.Time(2), e.Time)
	}
}

func TestClose_CancelsInflightSubmit(t *testing.T) {
	gate := testutil.NewGate[*ir.SubmitResult]()
	c, err := New(Config{SubmitHandler: gatedSubmit(gate)}, WithLogger(testLogger()))
	require.NoError(t, err)
	ctx := testContext(t)

	done := runAsync(func() error { return c.Submit(ctx) })
	call, err := gate.Await(ctx, "submit", 1)
	require.NoError(t, err)

	c.Close()
	assert.True(t, call.Token.IsCancellationRequested())

	call.Resolve(ir.Success(nil))
	assert.ErrorIs(t, waitErr(t, done), ErrClosed)
}
