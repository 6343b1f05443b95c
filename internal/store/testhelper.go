package store

import (
	"path/filepath"
	"testing"
)

// OpenTestStore opens a migrated run store in t.TempDir() and registers
// cleanup.
func OpenTestStore(t testing.TB) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
