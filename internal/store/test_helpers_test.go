package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/slowforest/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestForm writes a form row so events can reference it.
func createTestForm(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.WriteForm(context.Background(), Form{ID: id, Name: "test"}); err != nil {
		t.Fatalf("WriteForm() failed: %v", err)
	}
}

func fieldsPtr(l ir.FieldList) *ir.FieldList {
	return &l
}
