package engine

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/history"
	"github.com/roach88/slowforest/internal/ir"
)

// Controller is a single-writer form-state controller.
//
// All state lives in one goroutine (the loop) started by New. Every read
// and mutation is a command executed by the loop in FIFO order; async
// validators and submit handlers run on caller goroutines and their
// results re-enter through the same queue. Acceptance of a late result is
// decided by identity and recency, never by completion order.
//
// Thread-safety model:
//   - every exported method: safe from any goroutine
//   - Observers: run inside the loop, must not call the controller
//   - ChangeHandler, AfterSubmitFunc, token callbacks: run after the
//     mutation commits, outside the loop, and may call the controller
type Controller struct {
	id        string
	cfg       Config
	async     map[string]Validator
	logger    *slog.Logger
	observers []Observer
	onChange  ChangeHandler
	ids       IDGenerator
	clock     *Clock

	queue     *commandQueue
	stopped   chan struct{}
	closeOnce sync.Once

	// st is owned by the loop goroutine once New returns.
	st state
}

type state struct {
	initTime ir.Time
	values   *history.Store
	touched  []string

	pending  []*pendingEntry
	running  []*runningEntry
	resolved []ir.ResolvedRequest // newest first

	submit         *submitEntry
	resolvedSubmit *ir.ResolvedSubmit
}

// New creates a controller and starts its loop. Call Close to stop it.
func New(cfg Config, opts ...Option) (*Controller, error) {
	async, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:     cfg,
		async:   async,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
		clock:   NewClock(),
		queue:   newCommandQueue(),
		stopped: make(chan struct{}),
		st:      state{values: history.New()},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.id = c.ids.Generate()
	c.logger = c.logger.With("form", c.id)

	// The loop is not running yet, so initialization commits directly.
	tx := &txn{c: c, s: &c.st}
	c.st.initTime = tx.tick()
	c.st.values.Seed(cfg.InitialValues.Clone(), c.st.initTime)
	tx.emit(ir.Event{Kind: ir.EventInitialized, Fields: fieldsPtr(ir.Fields(cfg.InitialValues.SortedKeys()...))})
	c.publish(tx.events)

	go c.loop()

	c.logger.Info("controller started",
		"fields", len(cfg.InitialValues),
		"validators", len(cfg.Validators),
		"async_validators", len(async),
	)

	return c, nil
}

// ID returns the form ID used to correlate events and logs.
func (c *Controller) ID() string {
	return c.id
}

// Close stops the loop and cancels every in-flight submit attempt and
// validation request. Mutations issued afterwards return ErrClosed; reads
// keep answering from the final state. Safe to call more than once.
//
// Must not be called from an Observer.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.queue.Close()
		<-c.stopped

		// The loop has exited, so the state is frozen.
		sources := c.st.inflightSources()
		for _, src := range sources {
			src.Cancel()
		}

		c.logger.Info("controller stopped", "canceled", len(sources))
	})
}

func (c *Controller) loop() {
	defer close(c.stopped)

	for {
		if cmd, ok := c.queue.TryDequeue(); ok {
			cmd.run()
			close(cmd.done)
			continue
		}
		if c.queue.Drained() {
			return
		}
		<-c.queue.Wait()
	}
}

// exec runs fn on the loop and waits for it. Returns false if the
// controller is closed.
func (c *Controller) exec(fn func()) bool {
	cmd := command{run: fn, done: make(chan struct{})}
	if !c.queue.Enqueue(cmd) {
		return false
	}
	<-cmd.done
	return true
}

// view runs a read against the state. After Close it reads the frozen
// state directly.
func (c *Controller) view(fn func(s *state)) {
	if c.exec(func() { fn(&c.st) }) {
		return
	}
	<-c.stopped
	fn(&c.st)
}

// update runs a mutation on the loop. Events emitted by fn are delivered to
// observers inside the loop; deferred effects and the change handler run
// afterwards on the calling goroutine. fn's error is returned as is: fn is
// responsible for leaving the state consistent whether or not it fails.
func (c *Controller) update(fn func(tx *txn) error) error {
	var (
		tx  *txn
		err error
	)
	ok := c.exec(func() {
		tx = &txn{c: c, s: &c.st}
		err = fn(tx)
		c.publish(tx.events)
	})
	if !ok {
		return ErrClosed
	}

	for _, effect := range tx.after {
		effect()
	}
	if len(tx.events) > 0 && c.onChange != nil {
		c.onChange(c, tx.events)
	}
	return err
}

func (c *Controller) publish(events []ir.Event) {
	for _, ev := range events {
		for _, o := range c.observers {
			o.Observe(ev)
		}
	}
}

// txn collects the events and deferred effects of one mutation.
type txn struct {
	c      *Controller
	s      *state
	events []ir.Event
	after  []func()
}

func (tx *txn) tick() ir.Time {
	return tx.c.clock.Next()
}

// emit records ev. Events without a time carry the current time.
func (tx *txn) emit(ev ir.Event) {
	ev.FormID = tx.c.id
	if ev.Time == 0 {
		ev.Time = tx.c.clock.Current()
	}
	tx.events = append(tx.events, ev)
}

// later schedules fn to run after the mutation commits, outside the loop.
func (tx *txn) later(fn func()) {
	tx.after = append(tx.after, fn)
}

// persist freezes the current values as the baseline for an operation.
// Does not tick.
func (tx *txn) persist() {
	if tx.s.values.PersistAll() {
		tx.emit(ir.Event{Kind: ir.EventValuesPersisted, Fields: fieldsPtr(ir.AllFields())})
	}
}

func fieldsPtr(l ir.FieldList) *ir.FieldList {
	return &l
}

// inflightSources returns the cancellation sources of every pending or
// running operation.
func (s *state) inflightSources() []*cancel.Source {
	var out []*cancel.Source
	if s.submit != nil {
		out = append(out, s.submit.src)
	}
	for _, r := range s.running {
		out = append(out, r.src)
	}
	for _, p := range s.pending {
		out = append(out, p.src)
	}
	return out
}

// GetValue returns the latest value of field. The bool is false when the
// field has no value; no default is substituted.
func (c *Controller) GetValue(field string) (v ir.IRValue, ok bool) {
	c.view(func(s *state) { v, ok = s.values.Value(field) })
	return v, ok
}

// GetValueAt returns the value of field as of logical time t.
func (c *Controller) GetValueAt(field string, t ir.Time) (v ir.IRValue, ok bool) {
	c.view(func(s *state) { v, ok = s.values.ValueAt(field, t) })
	return v, ok
}

// GetAllValues returns the latest value of every field that has one.
func (c *Controller) GetAllValues() (values ir.Values) {
	c.view(func(s *state) { values = s.values.AllValues() })
	return values
}

// GetAllValuesAt returns every field's value as of logical time t.
func (c *Controller) GetAllValuesAt(t ir.Time) (values ir.Values) {
	c.view(func(s *state) { values = s.values.AllValuesAt(t) })
	return values
}

// GetKnownFieldNames returns every field with a value, sorted.
func (c *Controller) GetKnownFieldNames() (names []string) {
	c.view(func(s *state) { names = s.values.KnownFields() })
	return names
}

// GetFieldsUpdatedSince returns the fields set strictly after t, sorted.
func (c *Controller) GetFieldsUpdatedSince(t ir.Time) (fields []string) {
	c.view(func(s *state) { fields = s.values.FieldsChangedSince(t) })
	return fields
}

// SetValue records a new value for field. A nil value is stored as
// ir.IRNull{}.
func (c *Controller) SetValue(field string, value ir.IRValue) error {
	if value == nil {
		value = ir.IRNull{}
	}
	return c.update(func(tx *txn) error {
		t := tx.tick()
		tx.s.values.Set(field, value, t)
		tx.emit(ir.Event{Kind: ir.EventValueSet, Time: t, Field: field})
		tx.c.logger.Debug("value set", "field", field, "time", t)
		return nil
	})
}

// CreateValuesSnapshot persists the current values and returns the
// current time, which later GetValueAt calls can use to read the frozen
// baseline.
func (c *Controller) CreateValuesSnapshot() (ir.Time, error) {
	var now ir.Time
	err := c.update(func(tx *txn) error {
		tx.persist()
		now = tx.c.clock.Current()
		return nil
	})
	return now, err
}

// SetTouched marks field as touched. Touching a touched field is a no-op
// and does not tick.
func (c *Controller) SetTouched(field string) error {
	return c.update(func(tx *txn) error {
		if slices.Contains(tx.s.touched, field) {
			return nil
		}
		t := tx.tick()
		tx.s.touched = append(tx.s.touched, field)
		tx.emit(ir.Event{Kind: ir.EventTouched, Time: t, Fields: fieldsPtr(ir.Fields(field))})
		return nil
	})
}

// IsTouched reports whether field was touched.
func (c *Controller) IsTouched(field string) (touched bool) {
	c.view(func(s *state) { touched = slices.Contains(s.touched, field) })
	return touched
}

// GetTouchedFields returns touched fields in the order they were touched.
func (c *Controller) GetTouchedFields() (fields []string) {
	c.view(func(s *state) { fields = slices.Clone(s.touched) })
	return fields
}

// GetTimeCurrent returns the current logical time.
func (c *Controller) GetTimeCurrent() ir.Time {
	return c.clock.Current()
}

// GetTimeInitialization returns the time the controller was initialized.
func (c *Controller) GetTimeInitialization() (t ir.Time) {
	c.view(func(s *state) { t = s.initTime })
	return t
}

// GetTimeValueUpdate returns when field last changed, or the
// initialization time if it never had a value.
func (c *Controller) GetTimeValueUpdate(field string) (t ir.Time) {
	c.view(func(s *state) {
		var ok bool
		if t, ok = s.values.UpdateTime(field); !ok {
			t = s.initTime
		}
	})
	return t
}

// GetTimeLatestValueUpdate returns when any field last changed, or the
// initialization time.
func (c *Controller) GetTimeLatestValueUpdate() (t ir.Time) {
	c.view(func(s *state) {
		var ok bool
		if t, ok = s.values.LatestUpdateTime(); !ok {
			t = s.initTime
		}
	})
	return t
}
