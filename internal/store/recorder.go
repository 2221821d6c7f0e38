package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/slowforest/internal/ir"
)

// Recorder journals controller events. It implements engine.Observer: the
// form row is written when the initialized event arrives, then every
// event is appended.
//
// Observers cannot fail, so write errors are logged and collected; check
// Err after the run.
type Recorder struct {
	store   *Store
	name    string
	initial ir.Values
	logger  *slog.Logger

	mu   sync.Mutex
	errs []error
}

// NewRecorder creates a recorder for one controller. name and initial are
// stored with the form row.
func NewRecorder(s *Store, name string, initial ir.Values, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   s,
		name:    name,
		initial: initial.Clone(),
		logger:  logger,
	}
}

// Observe writes ev to the journal.
func (r *Recorder) Observe(ev ir.Event) {
	ctx := context.Background()

	if ev.Kind == ir.EventInitialized {
		form := Form{ID: ev.FormID, Name: r.name, InitialValues: r.initial}
		if err := r.store.WriteForm(ctx, form); err != nil {
			r.fail(ev, err)
			return
		}
	}
	if err := r.store.WriteEvent(ctx, ev); err != nil {
		r.fail(ev, err)
	}
}

func (r *Recorder) fail(ev ir.Event, err error) {
	r.logger.Warn("journal write failed",
		"form", ev.FormID,
		"kind", ev.Kind,
		"time", ev.Time,
		"error", err,
	)
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Err returns every write error so far, joined, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}
