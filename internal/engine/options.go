package engine

import (
	"log/slog"

	"github.com/roach88/slowforest/internal/ir"
)

// Observer receives every committed event, in commit order, on the
// controller loop goroutine. Observers must be fast and must not call the
// controller.
type Observer interface {
	Observe(ev ir.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev ir.Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev ir.Event) { f(ev) }

// ChangeHandler is notified after each mutation that changed state, with
// the events it committed. It runs outside the state loop on the
// goroutine that issued the mutation, and may call back into the
// controller.
type ChangeHandler func(c *Controller, events []ir.Event)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithObserver adds an event observer. Observers run in registration
// order.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithChangeHandler sets the change notification callback.
func WithChangeHandler(h ChangeHandler) Option {
	return func(c *Controller) {
		c.onChange = h
	}
}

// WithIDGenerator sets the generator used for form, run and attempt IDs.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Controller) {
		c.ids = g
	}
}

// WithClock sets the logical clock. Used by tests that need a known
// starting time.
func WithClock(clock *Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}
