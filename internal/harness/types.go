package harness

import (
	"github.com/roach88/slowforest/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step ran and every expectation matched.
	Pass bool `json:"pass"`

	// FormID is the controller's form ID.
	FormID string `json:"form_id"`

	// Trace is the journal of committed events, in journal order.
	Trace []ir.Event `json:"trace"`

	// Errors holds expectation failures and step errors, prefixed with
	// the step index.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.Event{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TraceEntry is the canonical form of one trace event. Absent fields are
// omitted; the whole-form sentinel is written as "*".
func TraceEntry(ev ir.Event) map[string]any {
	m := map[string]any{
		"kind": string(ev.Kind),
		"time": int64(ev.Time),
	}
	if ev.Field != "" {
		m["field"] = ev.Field
	}
	if ev.Fields != nil {
		if ev.Fields.IsAll() {
			m["fields"] = "*"
		} else {
			m["fields"] = ev.Fields.Names()
		}
	}
	if ev.ValidationKind != "" {
		m["validation_kind"] = ev.ValidationKind
	}
	if ev.AttemptID != "" {
		m["attempt_id"] = ev.AttemptID
	}
	if ev.ErrorCount != 0 {
		m["error_count"] = ev.ErrorCount
	}
	if ev.Err != "" {
		m["err"] = ev.Err
	}
	return m
}
