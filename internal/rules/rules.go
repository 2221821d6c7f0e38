// Package rules builds synchronous validators from go-playground/validator
// tag strings applied to single field values, e.g. "required,min=3".
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/slowforest/internal/engine"
	"github.com/roach88/slowforest/internal/ir"
)

// validate is shared by every rule. Initialized in init() with the custom
// tags below.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("nonblank", validateNonBlank)
	_ = validate.RegisterValidation("notunset", validateNotUnset)
}

// Unset is the placeholder value select inputs hold before a choice is
// made. The "notunset" tag rejects it.
const Unset = "__unset__"

// validateNonBlank rejects strings that are empty after trimming spaces.
func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateNotUnset(fl validator.FieldLevel) bool {
	return fl.Field().String() != Unset
}

// Rule applies a validator tag to one field.
type Rule struct {
	Field string
	Tag   string

	// Message replaces the generated message when the rule fails.
	Message string
}

// New builds a synchronous validator checking every rule in order. At most
// one error is reported per rule. Tags are checked up front: an unknown
// tag is an error here rather than a panic during validation.
func New(id string, rules ...Rule) (engine.Validator, error) {
	fields := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.Field == "" {
			return engine.Validator{}, fmt.Errorf("rule %q: empty field", r.Tag)
		}
		if err := checkTag(r.Tag); err != nil {
			return engine.Validator{}, fmt.Errorf("rule for %s: %w", r.Field, err)
		}
		fields = append(fields, r.Field)
	}

	rules = append([]Rule(nil), rules...)
	return engine.Validator{
		ID:     id,
		Fields: ir.Fields(fields...),
		Sync: func(values ir.Values) []ir.FormError {
			var out []ir.FormError
			for _, r := range rules {
				if fe, failed := Check(r, values); failed {
					out = append(out, fe)
				}
			}
			return out
		},
	}, nil
}

// Required builds a validator rejecting missing or empty values for each
// field, reporting message (or "<field> is required").
func Required(id, message string, fields ...string) engine.Validator {
	rules := make([]Rule, len(fields))
	for i, f := range fields {
		rules[i] = Rule{Field: f, Tag: "required", Message: message}
	}
	v, err := New(id, rules...)
	if err != nil {
		// "required" is a builtin tag, so only an empty field name gets here.
		panic(err)
	}
	return v
}

// Check applies r to the value of r.Field. A missing field is checked as
// null.
func Check(r Rule, values ir.Values) (ir.FormError, bool) {
	var native any
	if v, ok := values[r.Field]; ok {
		native = ir.ToNative(v)
	}

	err := validate.Var(native, r.Tag)
	if err == nil {
		return ir.FormError{}, false
	}

	msg := r.Message
	if msg == "" {
		msg = describe(r.Field, err)
	}
	return ir.FieldError(msg, r.Field), true
}

func describe(field string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Sprintf("%s is invalid: %v", field, err)
	}

	fe := verrs[0]
	switch {
	case fe.Tag() == "required":
		return field + " is required"
	case fe.Param() != "":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s must satisfy %s", field, fe.Tag())
	}
}

// checkTag reports whether tag parses. The validator panics on unknown
// tags, so the check runs under recover.
func checkTag(tag string) (err error) {
	if strings.TrimSpace(tag) == "" {
		return errors.New("empty tag")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid tag %q: %v", tag, r)
		}
	}()
	_ = validate.Var("", tag)
	return nil
}
