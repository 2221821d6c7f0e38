package store

import (
	"context"
	"fmt"

	"github.com/roach88/slowforest/internal/ir"
)

// Form is the journal record of one controller.
type Form struct {
	ID            string
	Name          string
	InitialValues ir.Values
}

// WriteForm inserts a form record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteForm(ctx context.Context, form Form) error {
	valuesJSON, err := marshalValues(form.InitialValues)
	if err != nil {
		return fmt.Errorf("write form: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forms (id, name, initial_values)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, form.ID, form.Name, valuesJSON)
	if err != nil {
		return fmt.Errorf("write form: %w", err)
	}
	return nil
}

// WriteEvent appends an event to the journal.
//
// Note: The form referenced by ev.FormID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, ev ir.Event) error {
	fieldsJSON, err := marshalFields(ev.Fields)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	keyHash, err := requestKeyHash(ev)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(form_id, kind, time, field, fields, validation_kind, request_key_hash, attempt_id, error_count, err)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.FormID,
		string(ev.Kind),
		int64(ev.Time),
		ev.Field,
		fieldsJSON,
		ev.ValidationKind,
		keyHash,
		ev.AttemptID,
		ev.ErrorCount,
		ev.Err,
	)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.Kind, err)
	}
	return nil
}
