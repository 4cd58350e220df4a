package sqlite

import (
	"context"
	"testing"
)

// newTestStore creates a Store backed by a temp-file database.
//
// File-based databases are more reliable than in-memory for connection pool
// scenarios, and the temp dir keeps tests isolated from each other. Pass a
// custom dbPath to override (e.g. ":memory:" for the single-conn path).
func newTestStore(t *testing.T, dbPath string) *Store {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}

// ageRows backdates last_updated so freshness checks see the rows as stale.
// Tests use it instead of sleeping through the freshness window.
func ageRows(t *testing.T, s *Store, table string, seconds int64) {
	t.Helper()

	_, err := s.db.ExecContext(context.Background(),
		"UPDATE "+table+" SET last_updated = unixepoch('now') - ?", seconds)
	if err != nil {
		t.Fatalf("Failed to age %s rows: %v", table, err)
	}
}
