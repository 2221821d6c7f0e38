package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/slowforest/internal/ir"
)

// Scenario is a scripted controller session. Steps run in order against
// one controller; async validators and the submit handler block until a
// resolve step completes them.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Form is an optional CUE form definition, relative to the scenario
	// file. It supplies initial values and synchronous validators.
	Form string `yaml:"form,omitempty"`

	// Initial values, merged over the form's.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Validators added after the form's.
	Validators []ValidatorSpec `yaml:"validators,omitempty"`

	// Submit configures a gated submit handler. Without it Submit only
	// cancels.
	Submit bool `yaml:"submit,omitempty"`

	UnvalidatedFieldsAreValid bool `yaml:"unvalidated_fields_are_valid,omitempty"`

	Steps []Step `yaml:"steps"`
}

// ValidatorSpec declares one validator. Async validators are gated; sync
// validators apply a validator tag to each of their fields.
type ValidatorSpec struct {
	ID      string        `yaml:"id"`
	Fields  *ir.FieldList `yaml:"fields,omitempty"`
	Async   bool          `yaml:"async,omitempty"`
	Rule    string        `yaml:"rule,omitempty"`
	Message string        `yaml:"message,omitempty"`
}

// Step is one scenario action or expectation. Exactly one field is set.
type Step struct {
	SetValue          *ValueStep     `yaml:"set_value,omitempty"`
	Touch             string         `yaml:"touch,omitempty"`
	Persist           bool           `yaml:"persist,omitempty"`
	RequestValidation *ValidationRef `yaml:"request_validation,omitempty"`
	StartValidations  *StartStep     `yaml:"start_validations,omitempty"`
	ResolveValidation *ResolveStep   `yaml:"resolve_validation,omitempty"`
	CancelValidation  *ValidationRef `yaml:"cancel_validation,omitempty"`
	StartSubmit       bool           `yaml:"start_submit,omitempty"`
	ResolveSubmit     *ResolveStep   `yaml:"resolve_submit,omitempty"`
	CancelSubmit      bool           `yaml:"cancel_submit,omitempty"`

	ExpectErrors *ExpectErrors `yaml:"expect_errors,omitempty"`
	ExpectValue  *ValueStep    `yaml:"expect_value,omitempty"`
	ExpectSubmit *ExpectSubmit `yaml:"expect_submit,omitempty"`
	ExpectStatus *ExpectStatus `yaml:"expect_status,omitempty"`
}

// ValueStep names a field and a value. Used by set_value and expect_value.
type ValueStep struct {
	Field string `yaml:"field"`
	Value any    `yaml:"value"`

	// Absent expects the field to have no value (expect_value only).
	Absent bool `yaml:"absent,omitempty"`
}

// ValidationRef identifies a request key. Omitted fields mean the whole
// form.
type ValidationRef struct {
	Kind   string        `yaml:"kind"`
	Fields *ir.FieldList `yaml:"fields,omitempty"`
}

// StartStep runs pending validations for Field, or all of them when Field
// is empty.
type StartStep struct {
	Field string `yaml:"field,omitempty"`
}

// ResolveStep completes one gated call. Validation calls are identified
// by request key; Call numbers the calls for one key (or the submit
// calls) from 1 in start order, and zero means 1. Kind and Fields are
// ignored for submits.
type ResolveStep struct {
	ValidationRef `yaml:",inline"`

	Call int `yaml:"call,omitempty"`

	Errors []ErrorSpec `yaml:"errors,omitempty"`
	Meta   any         `yaml:"meta,omitempty"`

	// Fail makes the call return an error with this text.
	Fail string `yaml:"fail,omitempty"`

	// Missing makes the call return neither a result nor an error.
	Missing bool `yaml:"missing,omitempty"`
}

// ErrorSpec is a FormError in a scripted result. Omitted fields mean the
// whole form.
type ErrorSpec struct {
	Message string        `yaml:"message"`
	Fields  *ir.FieldList `yaml:"fields,omitempty"`
}

// ExpectErrors checks GetErrors. Errors must match in order; an empty list
// expects no errors.
type ExpectErrors struct {
	Field           string          `yaml:"field,omitempty"`
	IncludeOutdated bool            `yaml:"include_outdated,omitempty"`
	Errors          []ExpectedError `yaml:"errors"`
}

// ExpectedError matches one ProcessedError. Unset fields are not checked.
type ExpectedError struct {
	Message  string `yaml:"message"`
	Source   string `yaml:"source,omitempty"`
	Outdated *bool  `yaml:"outdated,omitempty"`
	Time     *int64 `yaml:"time,omitempty"`
}

// ExpectSubmit checks the pending and resolved submits. Unset fields are
// not checked.
type ExpectSubmit struct {
	Pending   *bool    `yaml:"pending,omitempty"`
	Resolved  *bool    `yaml:"resolved,omitempty"`
	Errors    []string `yaml:"errors,omitempty"`
	StartTime *int64   `yaml:"start_time,omitempty"`
	EndTime   *int64   `yaml:"end_time,omitempty"`
}

// ExpectStatus checks GetAsyncValidationStatus for one key. Unset fields
// are not checked.
type ExpectStatus struct {
	ValidationRef `yaml:",inline"`

	Pending  *bool    `yaml:"pending,omitempty"`
	Running  *bool    `yaml:"running,omitempty"`
	Resolved *bool    `yaml:"resolved,omitempty"`
	Errors   []string `yaml:"errors,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and Form is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if scenario.Form != "" && !filepath.IsAbs(scenario.Form) {
		scenario.Form = filepath.Join(filepath.Dir(path), scenario.Form)
	}
	if scenario.Form != "" {
		if _, err := os.Stat(scenario.Form); err != nil {
			return nil, fmt.Errorf("%s: form file not found: %s", path, scenario.Form)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Form paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	ids := make(map[string]bool)
	for i, v := range s.Validators {
		if v.ID == "" {
			return fmt.Errorf("validators[%d]: id is required", i)
		}
		if ids[v.ID] {
			return fmt.Errorf("validators[%d]: duplicate id %q", i, v.ID)
		}
		ids[v.ID] = true

		switch {
		case v.Async && v.Rule != "":
			return fmt.Errorf("validators[%d]: async validators take no rule", i)
		case !v.Async && v.Rule == "":
			return fmt.Errorf("validators[%d]: rule is required for sync validators", i)
		case !v.Async && (v.Fields == nil || v.Fields.IsAll() || v.Fields.Len() == 0):
			return fmt.Errorf("validators[%d]: sync validators need explicit fields", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	set := 0
	count := func(ok bool) {
		if ok {
			set++
		}
	}
	count(st.SetValue != nil)
	count(st.Touch != "")
	count(st.Persist)
	count(st.RequestValidation != nil)
	count(st.StartValidations != nil)
	count(st.ResolveValidation != nil)
	count(st.CancelValidation != nil)
	count(st.StartSubmit)
	count(st.ResolveSubmit != nil)
	count(st.CancelSubmit)
	count(st.ExpectErrors != nil)
	count(st.ExpectValue != nil)
	count(st.ExpectSubmit != nil)
	count(st.ExpectStatus != nil)

	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", i, set)
	}

	switch {
	case st.SetValue != nil && st.SetValue.Field == "":
		return fmt.Errorf("steps[%d].set_value: field is required", i)
	case st.ExpectValue != nil && st.ExpectValue.Field == "":
		return fmt.Errorf("steps[%d].expect_value: field is required", i)
	case st.RequestValidation != nil && st.RequestValidation.Kind == "":
		return fmt.Errorf("steps[%d].request_validation: kind is required", i)
	case st.CancelValidation != nil && st.CancelValidation.Kind == "":
		return fmt.Errorf("steps[%d].cancel_validation: kind is required", i)
	case st.ExpectStatus != nil && st.ExpectStatus.Kind == "":
		return fmt.Errorf("steps[%d].expect_status: kind is required", i)
	case st.ResolveValidation != nil && st.ResolveValidation.Kind == "":
		return fmt.Errorf("steps[%d].resolve_validation: kind is required", i)
	}
	for _, r := range []*ResolveStep{st.ResolveValidation, st.ResolveSubmit} {
		if r == nil {
			continue
		}
		if r.Call < 0 {
			return fmt.Errorf("steps[%d]: call must be positive", i)
		}
		if r.Fail != "" && r.Missing {
			return fmt.Errorf("steps[%d]: fail and missing are exclusive", i)
		}
	}
	return nil
}

// Action returns the step's action name, as written in YAML.
func (st *Step) Action() string {
	switch {
	case st.SetValue != nil:
		return "set_value"
	case st.Touch != "":
		return "touch"
	case st.Persist:
		return "persist"
	case st.RequestValidation != nil:
		return "request_validation"
	case st.StartValidations != nil:
		return "start_validations"
	case st.ResolveValidation != nil:
		return "resolve_validation"
	case st.CancelValidation != nil:
		return "cancel_validation"
	case st.StartSubmit:
		return "start_submit"
	case st.ResolveSubmit != nil:
		return "resolve_submit"
	case st.CancelSubmit:
		return "cancel_submit"
	case st.ExpectErrors != nil:
		return "expect_errors"
	case st.ExpectValue != nil:
		return "expect_value"
	case st.ExpectSubmit != nil:
		return "expect_submit"
	case st.ExpectStatus != nil:
		return "expect_status"
	}
	return ""
}

// fieldsOrAll returns *l, or the whole-form sentinel when l is nil.
func fieldsOrAll(l *ir.FieldList) ir.FieldList {
	if l == nil {
		return ir.AllFields()
	}
	return *l
}
