package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/engine"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/rules"
	"github.com/roach88/slowforest/internal/schema"
	"github.com/roach88/slowforest/internal/store"
	"github.com/roach88/slowforest/internal/testutil"
)

// StepTimeout bounds every wait for the controller to reach a step's
// expected state.
const StepTimeout = 5 * time.Second

// submitLabel is the gate label of submit handler calls.
const submitLabel = "submit"

var (
	validationTerminal = []ir.EventKind{ir.EventValidationResolved, ir.EventValidationFailed, ir.EventValidationDiscarded}
	submitTerminal     = []ir.EventKind{ir.EventSubmitResolved, ir.EventSubmitFailed, ir.EventSubmitDiscarded}
)

// Options configures a harness run.
type Options struct {
	// Logger receives controller logs. Defaults to discarding them.
	Logger *slog.Logger

	// Observers receive controller events alongside the journal.
	Observers []engine.Observer

	// StorePath keeps the journal in a SQLite file instead of memory. The
	// file should be new: form IDs are deterministic and would collide.
	StorePath string
}

// Harness executes one scenario against a real controller.
//
// Each run gets a fresh in-memory journal and deterministic IDs, so the
// trace of a scenario is identical across runs.
type Harness struct {
	controller *engine.Controller
	store      *store.Store
	recorder   *store.Recorder
	tracker    *tracker
	validation *testutil.Gate[*ir.ValidationResult]
	submit     *testutil.Gate[*ir.SubmitResult]
	logger     *slog.Logger

	// ctx is cancelled when the run ends, releasing every gated call.
	ctx context.Context

	wg sync.WaitGroup
}

// Run executes a scenario and returns the result. An error means the
// scenario could not be set up; step failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithOptions(ctx, scenario, Options{})
}

// RunWithOptions is Run with extra options.
func RunWithOptions(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	path := store.MemoryPath
	if opts.StorePath != "" {
		path = opts.StorePath
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	h := &Harness{
		store:      st,
		tracker:    newTracker(),
		validation: testutil.NewGate[*ir.ValidationResult](),
		submit:     testutil.NewGate[*ir.SubmitResult](),
		logger:     logger,
		ctx:        runCtx,
	}

	name, cfg, err := h.buildConfig(scenario)
	if err != nil {
		return nil, err
	}
	h.recorder = store.NewRecorder(st, name, cfg.InitialValues, logger)

	options := []engine.Option{
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewDeterministicIDs("id")),
		engine.WithObserver(h.recorder),
		engine.WithObserver(h.tracker),
	}
	for _, o := range opts.Observers {
		options = append(options, engine.WithObserver(o))
	}

	c, err := engine.New(cfg, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}
	h.controller = c

	result := NewResult()
	result.FormID = c.ID()

	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		failures, err := h.execute(step)
		for _, msg := range failures {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Action(), msg))
		}
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Action(), err))
			break
		}
		logger.Debug("scenario step completed", "step", i, "action", step.Action())
	}

	// Close first so calls released from the gates commit nothing.
	c.Close()
	stop()
	h.wg.Wait()

	if err := h.recorder.Err(); err != nil {
		result.AddError(fmt.Sprintf("journal: %v", err))
	}
	trace, err := st.ReadEvents(ctx, c.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	result.Trace = trace

	logger.Info("scenario completed",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(trace),
	)
	return result, nil
}

// buildConfig assembles the controller configuration from the scenario's
// form and validators.
func (h *Harness) buildConfig(s *Scenario) (string, engine.Config, error) {
	name := s.Name
	var cfg engine.Config

	if s.Form != "" {
		form, err := schema.LoadFile(s.Form)
		if err != nil {
			return "", cfg, err
		}
		if cfg, err = form.Config(); err != nil {
			return "", cfg, err
		}
		name = form.Name
	}

	if cfg.InitialValues == nil {
		cfg.InitialValues = ir.Values{}
	}
	overrides, err := ir.ValuesFromNative(s.Initial)
	if err != nil {
		return "", cfg, fmt.Errorf("initial: %w", err)
	}
	for k, v := range overrides {
		cfg.InitialValues[k] = v
	}

	for _, spec := range s.Validators {
		v, err := h.buildValidator(spec)
		if err != nil {
			return "", cfg, fmt.Errorf("validator %q: %w", spec.ID, err)
		}
		cfg.Validators = append(cfg.Validators, v)
	}

	if s.Submit {
		cfg.SubmitHandler = func(ctx context.Context, values ir.Values, token *cancel.Token) (*ir.SubmitResult, error) {
			return h.submit.Enter(ctx, submitLabel, values, token)
		}
	}
	cfg.UnvalidatedFieldsAreValid = s.UnvalidatedFieldsAreValid
	return name, cfg, nil
}

func (h *Harness) buildValidator(spec ValidatorSpec) (engine.Validator, error) {
	fields := fieldsOrAll(spec.Fields)
	if spec.Async {
		return engine.Validator{
			ID:     spec.ID,
			Fields: fields,
			Async: func(ctx context.Context, req ir.RunningRequest, values ir.Values, token *cancel.Token) (*ir.ValidationResult, error) {
				return h.validation.Enter(ctx, req.Key.String(), values, token)
			},
		}, nil
	}

	var rs []rules.Rule
	for _, f := range fields.Names() {
		rs = append(rs, rules.Rule{Field: f, Tag: spec.Rule, Message: spec.Message})
	}
	return rules.New(spec.ID, rs...)
}

// execute runs one step. Expectation mismatches are returned as failures;
// an error stops the scenario.
func (h *Harness) execute(st *Step) ([]string, error) {
	c := h.controller

	switch {
	case st.SetValue != nil:
		v, err := ir.FromNative(st.SetValue.Value)
		if err != nil {
			return nil, err
		}
		return nil, c.SetValue(st.SetValue.Field, v)

	case st.Touch != "":
		return nil, c.SetTouched(st.Touch)

	case st.Persist:
		_, err := c.CreateValuesSnapshot()
		return nil, err

	case st.RequestValidation != nil:
		return nil, c.RequestAsyncValidation(st.RequestValidation.Kind, fieldsOrAll(st.RequestValidation.Fields))

	case st.CancelValidation != nil:
		return nil, c.CancelAsyncValidation(st.CancelValidation.Kind, fieldsOrAll(st.CancelValidation.Fields))

	case st.StartValidations != nil:
		field := st.StartValidations.Field
		return nil, h.background([]ir.EventKind{ir.EventValidationStarted}, func(ctx context.Context) error {
			if field == "" {
				return c.RunAllAsyncValidations(ctx)
			}
			return c.RunAsyncValidations(ctx, field)
		})

	case st.StartSubmit:
		return nil, h.background([]ir.EventKind{ir.EventSubmitStarted, ir.EventSubmitCanceled}, c.Submit)

	case st.CancelSubmit:
		return nil, c.CancelSubmit()

	case st.ResolveValidation != nil:
		r := st.ResolveValidation
		key := ir.RequestKey{Kind: r.Kind, Fields: fieldsOrAll(r.Fields)}
		call, err := h.awaitValidation(key.String(), r.Call)
		if err != nil {
			return nil, err
		}
		return nil, h.complete(validationTerminal, func() {
			switch {
			case r.Fail != "":
				call.Fail(errors.New(r.Fail))
			case r.Missing:
				call.Resolve(nil)
			default:
				call.Resolve(&ir.ValidationResult{Errors: formErrors(r.Errors)})
			}
		})

	case st.ResolveSubmit != nil:
		r := st.ResolveSubmit
		call, err := h.awaitSubmit(r.Call)
		if err != nil {
			return nil, err
		}
		meta, err := metaValue(r.Meta)
		if err != nil {
			return nil, err
		}
		return nil, h.complete(submitTerminal, func() {
			switch {
			case r.Fail != "":
				call.Fail(errors.New(r.Fail))
			case r.Missing:
				call.Resolve(nil)
			default:
				call.Resolve(&ir.SubmitResult{Errors: formErrors(r.Errors), Meta: meta})
			}
		})

	case st.ExpectErrors != nil:
		return checkErrors(c, st.ExpectErrors), nil
	case st.ExpectValue != nil:
		return checkValue(c, st.ExpectValue)
	case st.ExpectSubmit != nil:
		return checkSubmit(c, st.ExpectSubmit), nil
	case st.ExpectStatus != nil:
		return checkStatus(c, st.ExpectStatus), nil
	}
	return nil, fmt.Errorf("empty step")
}

// background starts a blocking controller call and waits until it has
// committed one of kinds, or returned without doing so.
func (h *Harness) background(kinds []ir.EventKind, fn func(ctx context.Context) error) error {
	before := h.tracker.count(kinds...)
	done := make(chan struct{})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		if err := fn(h.ctx); err != nil {
			// Stale and failed results are part of the trace.
			h.logger.Debug("background call returned", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(h.ctx, StepTimeout)
	defer cancel()
	if err := h.tracker.wait(ctx, done, kinds, before); err != nil {
		return err
	}

	// Calls are numbered in start order only once every started call has
	// reached its gate.
	for label, n := range h.tracker.startedCalls() {
		var err error
		if label == submitLabel {
			_, err = h.submit.Await(ctx, label, n)
		} else {
			_, err = h.validation.Await(ctx, label, n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// complete runs resolve and waits for the resulting terminal event.
func (h *Harness) complete(kinds []ir.EventKind, resolve func()) error {
	before := h.tracker.count(kinds...)
	resolve()

	ctx, cancel := context.WithTimeout(h.ctx, StepTimeout)
	defer cancel()
	return h.tracker.wait(ctx, nil, kinds, before)
}

func (h *Harness) awaitValidation(label string, n int) (*testutil.Call[*ir.ValidationResult], error) {
	ctx, cancel := context.WithTimeout(h.ctx, StepTimeout)
	defer cancel()
	return h.validation.Await(ctx, label, max(n, 1))
}

func (h *Harness) awaitSubmit(n int) (*testutil.Call[*ir.SubmitResult], error) {
	ctx, cancel := context.WithTimeout(h.ctx, StepTimeout)
	defer cancel()
	return h.submit.Await(ctx, submitLabel, max(n, 1))
}

func formErrors(specs []ErrorSpec) []ir.FormError {
	out := make([]ir.FormError, len(specs))
	for i, s := range specs {
		out[i] = ir.FormError{Fields: fieldsOrAll(s.Fields), Message: s.Message}
	}
	return out
}

func metaValue(raw any) (ir.IRValue, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := ir.FromNative(raw)
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	return v, nil
}

// tracker counts committed events by kind so steps can wait for the
// controller to catch up.
type tracker struct {
	mu      sync.Mutex
	counts  map[ir.EventKind]int
	started map[string]int // gate label -> calls started
	changed chan struct{}
}

func newTracker() *tracker {
	return &tracker{
		counts:  make(map[ir.EventKind]int),
		started: make(map[string]int),
		changed: make(chan struct{}),
	}
}

func (t *tracker) Observe(ev ir.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[ev.Kind]++
	switch ev.Kind {
	case ir.EventValidationStarted:
		key := ir.RequestKey{Kind: ev.ValidationKind, Fields: fieldsOrAll(ev.Fields)}
		t.started[key.String()]++
	case ir.EventSubmitStarted:
		t.started[submitLabel]++
	}
	close(t.changed)
	t.changed = make(chan struct{})
}

// startedCalls returns the number of started calls per gate label.
func (t *tracker) startedCalls() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.started)
}

func (t *tracker) count(kinds ...ir.EventKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, k := range kinds {
		n += t.counts[k]
	}
	return n
}

// wait blocks until more than after events of kinds have been committed,
// or done is closed. A nil done never fires.
func (t *tracker) wait(ctx context.Context, done <-chan struct{}, kinds []ir.EventKind, after int) error {
	for {
		t.mu.Lock()
		n := 0
		for _, k := range kinds {
			n += t.counts[k]
		}
		changed := t.changed
		t.mu.Unlock()

		if n > after {
			return nil
		}

		select {
		case <-changed:
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for %v: %w", kinds, ctx.Err())
		}
	}
}
