package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
)

// Gate scripts the completion order of async calls in tests.
//
// A validator or submit handler built on a Gate blocks in Enter until the
// test resolves it. Calls are grouped by label and numbered from 1 in
// arrival order, so a test can say "resolve the second unique-name call
// before the first".
//
// Thread-safety: All methods are safe for concurrent use.
type Gate[T any] struct {
	mu      sync.Mutex
	calls   map[string][]*Call[T]
	arrived chan struct{}
}

// Call is one blocked invocation.
type Call[T any] struct {
	Label  string
	Index  int
	Values ir.Values
	Token  *cancel.Token

	once sync.Once
	done chan outcome[T]
}

type outcome[T any] struct {
	value T
	err   error
}

// NewGate creates an empty gate.
func NewGate[T any]() *Gate[T] {
	return &Gate[T]{
		calls:   make(map[string][]*Call[T]),
		arrived: make(chan struct{}),
	}
}

// Enter records a call under label and blocks until it is resolved or ctx
// is done.
func (g *Gate[T]) Enter(ctx context.Context, label string, values ir.Values, token *cancel.Token) (T, error) {
	call := &Call[T]{
		Label:  label,
		Values: values,
		Token:  token,
		done:   make(chan outcome[T], 1),
	}

	g.mu.Lock()
	g.calls[label] = append(g.calls[label], call)
	call.Index = len(g.calls[label])
	close(g.arrived)
	g.arrived = make(chan struct{})
	g.mu.Unlock()

	select {
	case out := <-call.done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Await blocks until call n (1-based) for label has entered the gate.
func (g *Gate[T]) Await(ctx context.Context, label string, n int) (*Call[T], error) {
	for {
		g.mu.Lock()
		if calls := g.calls[label]; len(calls) >= n {
			call := calls[n-1]
			g.mu.Unlock()
			return call, nil
		}
		arrived := g.arrived
		g.mu.Unlock()

		select {
		case <-arrived:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s call %d: %w", label, n, ctx.Err())
		}
	}
}

// Count returns how many calls entered under label.
func (g *Gate[T]) Count(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls[label])
}

// Resolve makes Enter return v. Only the first Resolve or Fail counts.
func (c *Call[T]) Resolve(v T) {
	c.once.Do(func() { c.done <- outcome[T]{value: v} })
}

// Fail makes Enter return err.
func (c *Call[T]) Fail(err error) {
	c.once.Do(func() { c.done <- outcome[T]{err: err} })
}
