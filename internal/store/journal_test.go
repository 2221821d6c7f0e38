package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/engine"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/testutil"
)

func TestWriteForm_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := Form{
		ID:   "form-1",
		Name: "basic",
		InitialValues: ir.Values{
			"name":  ir.IRString(""),
			"age":   ir.IRInt(9007199254740993),
			"flags": ir.IRArray{ir.IRBool(true), ir.IRNull{}},
			"pet":   ir.IRObject{"kind": ir.IRString("cat"), "lives": ir.IRInt(9)},
		},
	}
	require.NoError(t, s.WriteForm(ctx, in))
	require.NoError(t, s.WriteForm(ctx, Form{ID: "form-1", Name: "ignored"}))

	out, err := s.ReadForm(ctx, "form-1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadForm_EmptyInitialValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteForm(ctx, Form{ID: "empty", Name: "empty"}))
	out, err := s.ReadForm(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, ir.Values{}, out.InitialValues)
}

func TestUnmarshalValues_RejectsFloats(t *testing.T) {
	_, err := unmarshalValues(`{"ratio":0.5}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestReadForm_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadForm(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestListForms_Sorted(t *testing.T) {
	s := createTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		createTestForm(t, s, id)
	}

	ids, err := s.ListForms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestWriteEvent_RequiresForm(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvent(context.Background(), ir.Event{FormID: "nope", Kind: ir.EventValueSet, Time: 2})
	assert.Error(t, err)
}

func TestReadEvents_OrderedByTimeThenID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestForm(t, s, "f")

	events := []ir.Event{
		{FormID: "f", Kind: ir.EventValueSet, Time: 3, Field: "b"},
		{FormID: "f", Kind: ir.EventInitialized, Time: 1, Fields: fieldsPtr(ir.Fields("a", "b"))},
		{FormID: "f", Kind: ir.EventValuesPersisted, Time: 3, Fields: fieldsPtr(ir.AllFields())},
		{FormID: "f", Kind: ir.EventSubmitStarted, Time: 3, AttemptID: "s-1"},
	}
	for _, ev := range events {
		require.NoError(t, s.WriteEvent(ctx, ev))
	}

	got, err := s.ReadEvents(ctx, "f")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, ir.EventInitialized, got[0].Kind)
	assert.Equal(t, ir.EventValueSet, got[1].Kind)
	assert.Equal(t, ir.EventValuesPersisted, got[2].Kind)
	assert.Equal(t, ir.EventSubmitStarted, got[3].Kind)

	assert.Equal(t, []string{"a", "b"}, got[0].Fields.Names())
	assert.Nil(t, got[1].Fields)
	require.NotNil(t, got[2].Fields)
	assert.True(t, got[2].Fields.IsAll())
	assert.Equal(t, "s-1", got[3].AttemptID)
}

func TestReadEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadEvents(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadRequestEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestForm(t, s, "f")

	name := ir.Fields("name")
	pet := ir.Fields("pet")
	for _, ev := range []ir.Event{
		{FormID: "f", Kind: ir.EventValidationRequested, Time: 2, ValidationKind: "unique", Fields: &name},
		{FormID: "f", Kind: ir.EventValidationRequested, Time: 3, ValidationKind: "unique", Fields: &pet},
		{FormID: "f", Kind: ir.EventValidationStarted, Time: 4, ValidationKind: "unique", Fields: &name, AttemptID: "r-1"},
		{FormID: "f", Kind: ir.EventValidationResolved, Time: 5, ValidationKind: "unique", Fields: &name, AttemptID: "r-1", ErrorCount: 2},
	} {
		require.NoError(t, s.WriteEvent(ctx, ev))
	}

	got, err := s.ReadRequestEvents(ctx, "f", ir.RequestKey{Kind: "unique", Fields: ir.Fields("name")})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ir.EventValidationResolved, got[2].Kind)
	assert.Equal(t, 2, got[2].ErrorCount)

	records, err := s.ReadEventRecords(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, ir.MustRequestKeyHash(ir.RequestKey{Kind: "unique", Fields: name}), records[0].RequestKeyHash)
	assert.NotEqual(t, records[0].RequestKeyHash, records[1].RequestKeyHash)
}

func TestCountByKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestForm(t, s, "f")

	for i, kind := range []ir.EventKind{ir.EventValueSet, ir.EventValueSet, ir.EventTouched} {
		require.NoError(t, s.WriteEvent(ctx, ir.Event{FormID: "f", Kind: kind, Time: ir.Time(i + 2)}))
	}

	counts, err := s.CountByKind(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, map[ir.EventKind]int{ir.EventValueSet: 2, ir.EventTouched: 1}, counts)
}

func TestRecorder_JournalsController(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	initial := ir.Values{"name": ir.IRString("")}
	rec := NewRecorder(s, "basic", initial, logger)

	c, err := engine.New(engine.Config{
		InitialValues: initial,
		SubmitHandler: func(context.Context, ir.Values, *cancel.Token) (*ir.SubmitResult, error) {
			return ir.Failure([]ir.FormError{ir.FieldError("taken", "name")}, nil), nil
		},
	},
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewDeterministicIDs("id")),
		engine.WithObserver(rec),
	)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetValue("name", ir.IRString("Ann")))
	require.NoError(t, c.Submit(ctx))
	require.NoError(t, rec.Err())

	form, err := s.ReadForm(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "basic", form.Name)
	assert.Equal(t, initial, form.InitialValues)

	events, err := s.ReadEvents(ctx, "id-1")
	require.NoError(t, err)
	kinds := make([]ir.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []ir.EventKind{
		ir.EventInitialized,
		ir.EventValueSet,
		ir.EventValuesPersisted,
		ir.EventSubmitStarted,
		ir.EventSubmitResolved,
	}, kinds)
	assert.Equal(t, 1, events[4].ErrorCount)
}

func TestRecorder_CollectsWriteErrors(t *testing.T) {
	s := createTestStore(t)
	rec := NewRecorder(s, "x", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// No initialized event, so the form row is missing.
	rec.Observe(ir.Event{FormID: "orphan", Kind: ir.EventValueSet, Time: 2})
	assert.Error(t, rec.Err())
}
