package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/slowforest/internal/ir"
)

// EventRecord is a journaled event with its storage metadata.
type EventRecord struct {
	ID             int64
	RequestKeyHash string
	Event          ir.Event
}

// ReadForm retrieves a form record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadForm(ctx context.Context, id string) (Form, error) {
	var (
		form       Form
		valuesJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, initial_values
		FROM forms
		WHERE id = ?
	`, id).Scan(&form.ID, &form.Name, &valuesJSON)
	if err != nil {
		return Form{}, err
	}

	form.InitialValues, err = unmarshalValues(valuesJSON)
	if err != nil {
		return Form{}, fmt.Errorf("read form %s: %w", id, err)
	}
	return form, nil
}

// ListForms returns the IDs of every journaled form, sorted.
func (s *Store) ListForms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM forms ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query forms: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forms: %w", err)
	}
	return ids, nil
}

// ReadEvents returns every event of a form, ordered by logical time then
// insertion order.
//
// Returns an empty slice (not nil) if the form has no events.
func (s *Store) ReadEvents(ctx context.Context, formID string) ([]ir.Event, error) {
	records, err := s.ReadEventRecords(ctx, formID)
	if err != nil {
		return nil, err
	}
	events := make([]ir.Event, len(records))
	for i, r := range records {
		events[i] = r.Event
	}
	return events, nil
}

// ReadEventRecords is ReadEvents with storage metadata.
func (s *Store) ReadEventRecords(ctx context.Context, formID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, kind, time, field, fields, validation_kind, request_key_hash, attempt_id, error_count, err
		FROM events
		WHERE form_id = ?
		ORDER BY time ASC, id ASC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []EventRecord{}
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// ReadRequestEvents returns the events of one validation request key, in
// journal order.
func (s *Store) ReadRequestEvents(ctx context.Context, formID string, key ir.RequestKey) ([]ir.Event, error) {
	hash, err := ir.RequestKeyHash(key)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, kind, time, field, fields, validation_kind, request_key_hash, attempt_id, error_count, err
		FROM events
		WHERE form_id = ? AND request_key_hash = ?
		ORDER BY time ASC, id ASC
	`, formID, hash)
	if err != nil {
		return nil, fmt.Errorf("query request events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, r.Event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request events: %w", err)
	}
	return events, nil
}

// CountByKind returns how many events of each kind a form journaled.
func (s *Store) CountByKind(ctx context.Context, formID string) (map[ir.EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM events
		WHERE form_id = ?
		GROUP BY kind
		ORDER BY kind ASC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.EventKind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[ir.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func scanEvent(rows *sql.Rows) (EventRecord, error) {
	var (
		r          EventRecord
		kind       string
		t          int64
		fieldsJSON sql.NullString
	)
	err := rows.Scan(
		&r.ID,
		&r.Event.FormID,
		&kind,
		&t,
		&r.Event.Field,
		&fieldsJSON,
		&r.Event.ValidationKind,
		&r.RequestKeyHash,
		&r.Event.AttemptID,
		&r.Event.ErrorCount,
		&r.Event.Err,
	)
	if err != nil {
		return EventRecord{}, fmt.Errorf("scan event: %w", err)
	}

	r.Event.Kind = ir.EventKind(kind)
	r.Event.Time = ir.Time(t)
	r.Event.Fields, err = unmarshalFields(fieldsJSON)
	if err != nil {
		return EventRecord{}, fmt.Errorf("event %d: %w", r.ID, err)
	}
	return r, nil
}
