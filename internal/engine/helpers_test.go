package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/testutil"
)

// recorder collects every observed event.
type recorder struct {
	mu     sync.Mutex
	events []ir.Event
}

func (r *recorder) Observe(ev ir.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Kinds() []ir.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) Last(kind ir.EventKind) (ir.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return ir.Event{}, false
}

func (r *recorder) Count(kind ir.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestController builds a controller with deterministic IDs ("id-1" is
// the form) and a discarded log, closed at test cleanup.
func newTestController(t *testing.T, cfg Config, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	base := []Option{
		WithLogger(testLogger()),
		WithIDGenerator(testutil.NewDeterministicIDs("id")),
		WithObserver(rec),
	}
	c, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, rec
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type validationGate = testutil.Gate[*ir.ValidationResult]

// gatedValidator returns an async validator that blocks on gate under its
// own id until the test resolves the call.
func gatedValidator(id string, fields ir.FieldList, gate *validationGate) Validator {
	return Validator{
		ID:     id,
		Fields: fields,
		Async: func(ctx context.Context, _ ir.RunningRequest, values ir.Values, token *cancel.Token) (*ir.ValidationResult, error) {
			return gate.Enter(ctx, id, values, token)
		},
	}
}

type submitGate = testutil.Gate[*ir.SubmitResult]

func gatedSubmit(gate *submitGate) SubmitHandler {
	return func(ctx context.Context, values ir.Values, token *cancel.Token) (*ir.SubmitResult, error) {
		return gate.Enter(ctx, "submit", values, token)
	}
}

func requiredName(values ir.Values) []ir.FormError {
	if v, ok := values["name"]; !ok || ir.Equal(v, ir.IRString("")) {
		return []ir.FormError{ir.FieldError("name is required", "name")}
	}
	return nil
}

// runAsync starts fn on a goroutine and returns a channel with its error.
func runAsync(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for operation")
		return nil
	}
}
