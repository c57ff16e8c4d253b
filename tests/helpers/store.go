// Package helpers provides shared test fixtures.
package helpers

import (
	"testing"

	"github.com/xiaot623/recall/store"
)

// NewTestSQLiteStore returns an in-memory store that is closed when the
// test finishes.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
