package helpers

import (
	"testing"

	"github.com/xiaot623/gogo/sessionrelay/internal/store"
)

// NewTestArchive opens an in-memory transcript archive closed on cleanup.
func NewTestArchive(t *testing.T) *store.SQLiteArchive {
	t.Helper()

	a, err := store.NewSQLiteArchive(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite archive: %v", err)
	}

	t.Cleanup(func() {
		_ = a.Close()
	})

	return a
}
