package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/room-booking/internal/persistence/sqlite"
	"github.com/example/room-booking/internal/persistence/sqlite/migration"
)

// NewSQLiteStore opens a migrated SQLite store in a temporary directory. The
// store is closed when the test finishes.
func NewSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	store, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate sqlite store: %v", err)
	}
	return store
}
