package cancel

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrCanceled is the context cause used by Token.Context when the token's
// source is cancelled.
var ErrCanceled = errors.New("cancellation requested")

// State is the lifecycle state of a Source.
type State int

const (
	// Open is the initial state: callbacks may be registered.
	Open State = iota
	// CancellationRequested is terminal: Cancel was called while open.
	CancellationRequested
	// Closed is terminal: the owning operation finished normally.
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case CancellationRequested:
		return "cancellation_requested"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Source controls one Token.
type Source struct {
	token *Token
}

// NewSource returns an open source.
func NewSource() *Source {
	return &Source{token: &Token{callbacks: make(map[uint64]func())}}
}

// Token returns the token controlled by s. Always the same pointer.
func (s *Source) Token() *Token {
	return s.token
}

// Cancel invokes every registered callback in registration order, then
// moves to CancellationRequested. No-op unless open; a Cancel issued from
// inside a callback is also a no-op.
func (s *Source) Cancel() {
	t := s.token

	t.mu.Lock()
	if t.state != Open || t.cancelling {
		t.mu.Unlock()
		return
	}
	t.cancelling = true
	callbacks := t.orderedCallbacks()
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}

	t.mu.Lock()
	t.cancelling = false
	t.state = CancellationRequested
	t.mu.Unlock()
}

// Close drops every registration and moves to Closed. No-op unless open.
func (s *Source) Close() {
	t := s.token

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Open || t.cancelling {
		return
	}
	t.callbacks = nil
	t.order = nil
	t.state = Closed
}

// Token is the observing side of a Source.
type Token struct {
	mu         sync.Mutex
	state      State
	cancelling bool
	nextID     uint64
	order      []uint64
	callbacks  map[uint64]func()
}

// State returns the current state. While Cancel is running callbacks the
// state is still Open.
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsCancellationRequested reports whether Cancel has been called. It turns
// true as soon as Cancel starts running callbacks.
func (t *Token) IsCancellationRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == CancellationRequested || t.cancelling
}

// CanBeCanceled reports whether the token may still be cancelled, i.e. the
// source was not closed.
func (t *Token) CanBeCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != Closed
}

// Register adds cb to the callbacks run on cancellation.
//
// If the source is closed, cb is dropped and an inert registration is
// returned. If cancellation was already requested (or is underway), cb is
// invoked immediately on the calling goroutine.
func (t *Token) Register(cb func()) *Registration {
	t.mu.Lock()
	if t.state == Closed {
		t.mu.Unlock()
		return &Registration{}
	}
	if t.state == CancellationRequested || t.cancelling {
		t.mu.Unlock()
		cb()
		return &Registration{}
	}

	t.nextID++
	id := t.nextID
	t.order = append(t.order, id)
	t.callbacks[id] = cb
	t.mu.Unlock()

	return &Registration{token: t, id: id}
}

// Context returns a child of parent that is cancelled, with cause
// ErrCanceled, when t is cancelled. Call stop once the work is done to
// release the registration.
func (t *Token) Context(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancelCause := context.WithCancelCause(parent)
	reg := t.Register(func() { cancelCause(ErrCanceled) })
	return ctx, func() {
		reg.Unregister()
		cancelCause(context.Canceled)
	}
}

// orderedCallbacks returns live callbacks in registration order.
// Caller must hold t.mu.
func (t *Token) orderedCallbacks() []func() {
	out := make([]func(), 0, len(t.callbacks))
	for _, id := range t.order {
		if cb, ok := t.callbacks[id]; ok {
			out = append(out, cb)
		}
	}
	t.order = nil
	return out
}

func (t *Token) unregister(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.callbacks, id)
	// ids are handed out in increasing order, so order stays sorted.
	if i, ok := slices.BinarySearch(t.order, id); ok {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// Registration is the handle returned by Token.Register.
type Registration struct {
	token *Token
	id    uint64
}

// Unregister removes the callback. Safe to call more than once, and on
// inert registrations.
func (r *Registration) Unregister() {
	if r == nil || r.token == nil {
		return
	}
	r.token.unregister(r.id)
	r.token = nil
}
