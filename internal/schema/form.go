package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/rules"
)

// Form is a compiled form definition.
//
// Thread-safety: the validators built from a Form evaluate CUE under the
// Form's mutex, so they may be called from any goroutine.
type Form struct {
	Name    string
	Initial ir.Values
	Fields  []Field
	Rules   []rules.Rule
	Checks  []Check

	mu  sync.Mutex
	ctx *cue.Context
}

// Field is a CUE constraint on one field value.
type Field struct {
	Name     string
	Optional bool

	// Message replaces the CUE error text when the constraint fails. Set
	// with the @msg("...") attribute.
	Message string

	constraint cue.Value
}

// Check is a whole-form condition.
type Check struct {
	ID      string
	Message string

	// Fields the error is attached to. AllFields when the check declares
	// none.
	Fields ir.FieldList

	when    cue.Value
	require cue.Value
}

// LoadFile loads and compiles the form definition in a .cue file.
func LoadFile(path string) (*Form, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("form file: %w", err)
	}

	instances := load.Instances([]string{filepath.Base(path)}, &load.Config{Dir: filepath.Dir(path)})
	if len(instances) == 0 {
		return nil, fmt.Errorf("loading %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, formatCUEError(inst.Err))
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileRoot(ctx, value)
}

// Compile compiles a form definition from CUE source. filename is used in
// error positions.
func Compile(filename, src string) (*Form, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileRoot(ctx, value)
}

func compileRoot(ctx *cue.Context, root cue.Value) (*Form, error) {
	v := root.LookupPath(cue.ParsePath("form"))
	if !v.Exists() {
		return nil, &CompileError{Field: "form", Message: "form is required", Pos: root.Pos()}
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	f := &Form{ctx: ctx, Initial: ir.Values{}}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	f.Name = name

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		decoded, err := decodeValue(initVal)
		if err != nil {
			return nil, err
		}
		obj, ok := decoded.(ir.IRObject)
		if !ok {
			return nil, &CompileError{Field: "initial", Message: "initial must be a struct", Pos: initVal.Pos()}
		}
		f.Initial = obj
	}

	if f.Fields, err = parseFields(v); err != nil {
		return nil, err
	}
	if f.Rules, err = parseRules(v); err != nil {
		return nil, err
	}
	if f.Checks, err = parseChecks(v); err != nil {
		return nil, err
	}
	return f, nil
}

func parseFields(v cue.Value) ([]Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []Field
	for iter.Next() {
		fv := iter.Value()
		field := Field{
			Name:       iter.Label(),
			Optional:   iter.Selector().ConstraintType() == cue.OptionalConstraint,
			constraint: fv,
		}
		if attr := fv.Attribute("msg"); attr.Err() == nil {
			msg, err := attr.String(0)
			if err != nil {
				return nil, &CompileError{Field: "fields." + field.Name, Message: "@msg needs a message", Pos: fv.Pos()}
			}
			field.Message = msg
		}
		out = append(out, field)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parseRules(v cue.Value) ([]rules.Rule, error) {
	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, nil
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []rules.Rule
	for iter.Next() {
		tag, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: "rules." + iter.Label(), Message: "rule must be a tag string", Pos: iter.Value().Pos()}
		}
		out = append(out, rules.Rule{Field: iter.Label(), Tag: tag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })

	if _, err := rules.New("rules", out...); err != nil {
		return nil, &CompileError{Field: "rules", Message: err.Error(), Pos: rulesVal.Pos()}
	}
	return out, nil
}

func parseChecks(v cue.Value) ([]Check, error) {
	checksVal := v.LookupPath(cue.ParsePath("checks"))
	if !checksVal.Exists() {
		return nil, nil
	}

	iter, err := checksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []Check
	for iter.Next() {
		cv := iter.Value()
		check := Check{ID: iter.Label(), Fields: ir.AllFields()}
		path := "checks." + check.ID

		msg, err := cv.LookupPath(cue.ParsePath("message")).String()
		if err != nil {
			return nil, &CompileError{Field: path + ".message", Message: "message is required", Pos: cv.Pos()}
		}
		check.Message = msg

		check.when = cv.LookupPath(cue.ParsePath("when"))
		check.require = cv.LookupPath(cue.ParsePath("require"))
		if !check.require.Exists() {
			return nil, &CompileError{Field: path + ".require", Message: "require is required", Pos: cv.Pos()}
		}

		if fieldsVal := cv.LookupPath(cue.ParsePath("fields")); fieldsVal.Exists() {
			var names []string
			if err := fieldsVal.Decode(&names); err != nil {
				return nil, &CompileError{Field: path + ".fields", Message: "fields must be a list of strings", Pos: fieldsVal.Pos()}
			}
			check.Fields = ir.Fields(names...)
		}
		out = append(out, check)
	}
	return out, nil
}

// decodeValue converts a concrete CUE value into an IRValue. Floats are
// rejected.
func decodeValue(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: "type", Message: "floats are not allowed in field values", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: "type", Message: "value must be concrete", Pos: v.Pos()}
	}
}
