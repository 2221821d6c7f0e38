package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// FieldList is either an explicit set of field names or the AllFields
// sentinel, meaning "the whole form" (or "unspecified fields").
//
// Explicit lists are stored sorted, deduplicated and NFC-normalized, so
// two lists with the same membership are Equal regardless of the order the
// names were given in. The zero value is the explicit empty set.
type FieldList struct {
	all   bool
	names []string
}

// AllFields returns the whole-form sentinel.
func AllFields() FieldList {
	return FieldList{all: true}
}

// Fields returns an explicit field list containing names.
func Fields(names ...string) FieldList {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		normalized = append(normalized, norm.NFC.String(n))
	}
	slices.Sort(normalized)
	return FieldList{names: slices.Compact(normalized)}
}

// IsAll reports whether l is the whole-form sentinel.
func (l FieldList) IsAll() bool { return l.all }

// Names returns the explicit names in sorted order, or nil for the sentinel.
func (l FieldList) Names() []string {
	if l.all {
		return nil
	}
	return slices.Clone(l.names)
}

// Len returns the number of explicit names (0 for the sentinel).
func (l FieldList) Len() int { return len(l.names) }

// Contains reports whether field is covered by l. The sentinel covers
// every field.
func (l FieldList) Contains(field string) bool {
	if l.all {
		return true
	}
	_, found := slices.BinarySearch(l.names, norm.NFC.String(field))
	return found
}

// Equal implements FieldList equality: both sentinel, or both explicit
// with identical membership.
func (l FieldList) Equal(o FieldList) bool {
	if l.all || o.all {
		return l.all == o.all
	}
	return slices.Equal(l.names, o.names)
}

// Intersects reports whether any of fields is covered by l. For the
// sentinel this is true whenever fields is non-empty.
func (l FieldList) Intersects(fields []string) bool {
	for _, f := range fields {
		if l.Contains(f) {
			return true
		}
	}
	return false
}

// String renders the list for logs: "*" for the sentinel, otherwise the
// names joined by commas.
func (l FieldList) String() string {
	if l.all {
		return "*"
	}
	return strings.Join(l.names, ",")
}

// canonicalValue is the value hashed and journaled for l: null for the
// sentinel, a sorted array otherwise.
func (l FieldList) canonicalValue() IRValue {
	if l.all {
		return IRNull{}
	}
	arr := make(IRArray, len(l.names))
	for i, n := range l.names {
		arr[i] = IRString(n)
	}
	return arr
}

// MarshalJSON encodes the sentinel as null and explicit lists as arrays.
func (l FieldList) MarshalJSON() ([]byte, error) {
	return MarshalIRValue(l.canonicalValue())
}

// UnmarshalJSON accepts null (sentinel), a string, or an array of strings.
func (l *FieldList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := fieldListFromNative(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML accepts the same shapes as UnmarshalJSON, plus "*" for the
// sentinel.
func (l *FieldList) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fieldListFromNative(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = parsed
	return nil
}

func fieldListFromNative(raw any) (FieldList, error) {
	switch v := raw.(type) {
	case nil:
		return AllFields(), nil
	case string:
		if v == "*" {
			return AllFields(), nil
		}
		return Fields(v), nil
	case []any:
		names := make([]string, 0, len(v))
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return FieldList{}, fmt.Errorf("field list [%d]: expected string, got %T", i, elem)
			}
			names = append(names, s)
		}
		return Fields(names...), nil
	default:
		return FieldList{}, fmt.Errorf("field list: expected null, string or list, got %T", raw)
	}
}
