// Package history records per-field value snapshots in logical time.
//
// A Store answers "what was the value of field f as of time t". Every Set
// appends a non-persistent snapshot and drops the older non-persistent
// snapshots of that field; PersistAll freezes every snapshot so that
// time-bounded queries into that baseline keep working after later edits.
//
// A Store is not safe for concurrent use. The controller owns one and only
// touches it from its state loop.
package history

import (
	"slices"

	"github.com/roach88/slowforest/internal/ir"
)

// Store is an ordered log of value snapshots, oldest first.
type Store struct {
	snapshots []ir.ValueSnapshot
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Seed records values as persistent snapshots at time t.
// Used for initial values, which form the first baseline.
func (s *Store) Seed(values ir.Values, t ir.Time) {
	for _, field := range values.SortedKeys() {
		s.snapshots = append(s.snapshots, ir.ValueSnapshot{
			Field:        field,
			Value:        values[field],
			Time:         t,
			IsPersistent: true,
		})
	}
}

// Set appends a non-persistent snapshot for field at time t. Older
// non-persistent snapshots of field are removed; persistent ones stay.
func (s *Store) Set(field string, value ir.IRValue, t ir.Time) {
	s.snapshots = slices.DeleteFunc(s.snapshots, func(snap ir.ValueSnapshot) bool {
		return snap.Field == field && !snap.IsPersistent
	})
	s.snapshots = append(s.snapshots, ir.ValueSnapshot{
		Field: field,
		Value: value,
		Time:  t,
	})
}

// PersistAll marks every snapshot persistent. Reports whether any snapshot
// changed.
func (s *Store) PersistAll() bool {
	changed := false
	for i := range s.snapshots {
		if !s.snapshots[i].IsPersistent {
			s.snapshots[i].IsPersistent = true
			changed = true
		}
	}
	return changed
}

// Value returns the latest value of field. The bool is false when the
// field has never been set; no default is substituted.
func (s *Store) Value(field string) (ir.IRValue, bool) {
	snap, ok := s.latest(field, nil)
	if !ok {
		return nil, false
	}
	return snap.Value, true
}

// ValueAt returns the value of field as of time t: the latest snapshot
// whose time is not after t.
func (s *Store) ValueAt(field string, t ir.Time) (ir.IRValue, bool) {
	snap, ok := s.latest(field, &t)
	if !ok {
		return nil, false
	}
	return snap.Value, true
}

// AllValues returns the latest value of every field that has one.
func (s *Store) AllValues() ir.Values {
	return s.collect(nil)
}

// AllValuesAt returns the value of every field as of time t. Fields whose
// first snapshot is after t are absent.
func (s *Store) AllValuesAt(t ir.Time) ir.Values {
	return s.collect(&t)
}

// FieldsChangedSince returns the fields with a snapshot strictly after t,
// sorted by name.
func (s *Store) FieldsChangedSince(t ir.Time) []string {
	var out []string
	for _, snap := range s.snapshots {
		if snap.Time > t && !slices.Contains(out, snap.Field) {
			out = append(out, snap.Field)
		}
	}
	slices.Sort(out)
	return out
}

// ChangedSince reports whether any field covered by fields has a snapshot
// strictly after t. With the AllFields sentinel any change counts.
func (s *Store) ChangedSince(fields ir.FieldList, t ir.Time) bool {
	for _, snap := range s.snapshots {
		if snap.Time > t && fields.Contains(snap.Field) {
			return true
		}
	}
	return false
}

// UpdateTime returns the time of the latest snapshot of field.
func (s *Store) UpdateTime(field string) (ir.Time, bool) {
	snap, ok := s.latest(field, nil)
	if !ok {
		return 0, false
	}
	return snap.Time, true
}

// LatestUpdateTime returns the time of the newest snapshot of any field.
func (s *Store) LatestUpdateTime() (ir.Time, bool) {
	if len(s.snapshots) == 0 {
		return 0, false
	}
	latest := s.snapshots[0].Time
	for _, snap := range s.snapshots[1:] {
		latest = max(latest, snap.Time)
	}
	return latest, true
}

// KnownFields returns every field with at least one snapshot, sorted.
func (s *Store) KnownFields() []string {
	return s.AllValues().SortedKeys()
}

// Snapshots returns a copy of the log, oldest first.
func (s *Store) Snapshots() []ir.ValueSnapshot {
	return slices.Clone(s.snapshots)
}

func (s *Store) latest(field string, at *ir.Time) (ir.ValueSnapshot, bool) {
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		snap := s.snapshots[i]
		if snap.Field != field {
			continue
		}
		if at == nil || snap.Time <= *at {
			return snap, true
		}
	}
	return ir.ValueSnapshot{}, false
}

func (s *Store) collect(at *ir.Time) ir.Values {
	out := ir.Values{}
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		snap := s.snapshots[i]
		if at != nil && snap.Time > *at {
			continue
		}
		if _, seen := out[snap.Field]; !seen {
			out[snap.Field] = snap.Value
		}
	}
	return out
}
