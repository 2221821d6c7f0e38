package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/slowforest/internal/ir"
)

// marshalValues converts Values to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalValues(values ir.Values) (string, error) {
	if values == nil {
		values = ir.Values{}
	}
	data, err := ir.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

// unmarshalValues parses canonical JSON TEXT to Values.
// Uses ir.IRObject.UnmarshalJSON which handles large integers via
// json.Number and rejects floats.
func unmarshalValues(data string) (ir.Values, error) {
	if data == "" || data == "{}" {
		return ir.Values{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return obj, nil
}

// marshalFields stores an event's field list: NULL when the event has
// none, canonical JSON otherwise ("null" for the whole-form sentinel).
func marshalFields(fields *ir.FieldList) (sql.NullString, error) {
	if fields == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(*fields)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal fields: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalFields(col sql.NullString) (*ir.FieldList, error) {
	if !col.Valid {
		return nil, nil
	}
	var fields ir.FieldList
	if err := json.Unmarshal([]byte(col.String), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return &fields, nil
}

// requestKeyHash identifies the validation request an event belongs to.
// Empty for events that are not about a validation request.
func requestKeyHash(ev ir.Event) (string, error) {
	if ev.ValidationKind == "" || ev.Fields == nil {
		return "", nil
	}
	return ir.RequestKeyHash(ir.RequestKey{Kind: ev.ValidationKind, Fields: *ev.Fields})
}
