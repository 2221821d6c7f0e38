package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/slowforest/internal/engine"
	"github.com/roach88/slowforest/internal/ir"
)

// AssertionError describes one expectation mismatch.
type AssertionError struct {
	What     string // What was checked, e.g. "errors[1].message"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.What, e.Expected, e.Actual)
}

func mismatch(what string, expected, actual any) string {
	return (&AssertionError{
		What:     what,
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
	}).Error()
}

// checkErrors compares GetErrors against e, in order.
func checkErrors(c *engine.Controller, e *ExpectErrors) []string {
	got := c.GetErrors(engine.ErrorQuery{Field: e.Field, IncludeOutdated: e.IncludeOutdated})

	if len(got) != len(e.Errors) {
		return []string{mismatch("errors",
			fmt.Sprintf("%d %s", len(e.Errors), quoteAll(expectedMessages(e.Errors))),
			fmt.Sprintf("%d %s", len(got), quoteAll(ir.Messages(got))),
		)}
	}

	var failures []string
	for i, want := range e.Errors {
		have := got[i]
		prefix := fmt.Sprintf("errors[%d]", i)
		if have.Message != want.Message {
			failures = append(failures, mismatch(prefix+".message", quote(want.Message), quote(have.Message)))
		}
		if want.Source != "" && have.Source.Tag() != want.Source {
			failures = append(failures, mismatch(prefix+".source", want.Source, have.Source.Tag()))
		}
		if want.Outdated != nil && have.IsOutdated != *want.Outdated {
			failures = append(failures, mismatch(prefix+".outdated", *want.Outdated, have.IsOutdated))
		}
		if want.Time != nil && int64(have.Time) != *want.Time {
			failures = append(failures, mismatch(prefix+".time", *want.Time, have.Time))
		}
	}
	return failures
}

// checkValue compares the current value of one field.
func checkValue(c *engine.Controller, e *ValueStep) ([]string, error) {
	got, ok := c.GetValue(e.Field)
	what := "value of " + e.Field

	if e.Absent {
		if ok {
			return []string{mismatch(what, "absent", render(got))}, nil
		}
		return nil, nil
	}

	want, err := ir.FromNative(e.Value)
	if err != nil {
		return nil, fmt.Errorf("expected value: %w", err)
	}
	if !ok {
		return []string{mismatch(what, render(want), "absent")}, nil
	}
	if !ir.Equal(got, want) {
		return []string{mismatch(what, render(want), render(got))}, nil
	}
	return nil, nil
}

// checkSubmit compares the pending and resolved submits.
func checkSubmit(c *engine.Controller, e *ExpectSubmit) []string {
	var failures []string

	_, pending := c.GetPendingSubmit()
	if e.Pending != nil && pending != *e.Pending {
		failures = append(failures, mismatch("submit pending", *e.Pending, pending))
	}

	resolved, ok := c.GetResolvedSubmit()
	if e.Resolved != nil && ok != *e.Resolved {
		failures = append(failures, mismatch("submit resolved", *e.Resolved, ok))
	}
	if !ok {
		if e.Errors != nil || e.StartTime != nil || e.EndTime != nil {
			failures = append(failures, mismatch("resolved submit", "a resolved submit", "none"))
		}
		return failures
	}

	if e.Errors != nil {
		msgs := formErrorMessages(resolved.Result.Errors)
		if !slices.Equal(msgs, e.Errors) {
			failures = append(failures, mismatch("submit errors", quoteAll(e.Errors), quoteAll(msgs)))
		}
	}
	if e.StartTime != nil && int64(resolved.StartTime) != *e.StartTime {
		failures = append(failures, mismatch("submit start_time", *e.StartTime, resolved.StartTime))
	}
	if e.EndTime != nil && int64(resolved.EndTime) != *e.EndTime {
		failures = append(failures, mismatch("submit end_time", *e.EndTime, resolved.EndTime))
	}
	return failures
}

// checkStatus compares the recorded stages of one request key.
func checkStatus(c *engine.Controller, e *ExpectStatus) []string {
	key := ir.RequestKey{Kind: e.Kind, Fields: fieldsOrAll(e.Fields)}
	status := c.GetAsyncValidationStatus(key.Kind, key.Fields)

	var failures []string
	stage := func(name string, want *bool, have bool) {
		if want != nil && have != *want {
			failures = append(failures, mismatch(fmt.Sprintf("%s %s", key, name), *want, have))
		}
	}
	stage("pending", e.Pending, status.Pending != nil)
	stage("running", e.Running, status.Running != nil)
	stage("resolved", e.Resolved, status.Resolved != nil)

	if e.Errors != nil {
		var msgs []string
		if status.Resolved != nil {
			msgs = formErrorMessages(status.Resolved.Errors)
		}
		if !slices.Equal(msgs, e.Errors) {
			failures = append(failures, mismatch(key.String()+" errors", quoteAll(e.Errors), quoteAll(msgs)))
		}
	}
	return failures
}

func expectedMessages(errs []ExpectedError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}

func formErrorMessages(errs []ir.FormError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

func quoteAll(msgs []string) string {
	quoted := make([]string, len(msgs))
	for i, m := range msgs {
		quoted[i] = quote(m)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// render formats a value as JSON for failure messages.
func render(v ir.IRValue) string {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
