package migration

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestScanner(t *testing.T) {
	t.Run("orders migrations by numeric version", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/010_later.sql":          {Data: []byte("CREATE TABLE b (id TEXT);")},
			"m/002_second.sql":         {Data: []byte("-- Description: adds table a\nCREATE TABLE a (id TEXT);")},
			"m/001_initial_schema.sql": {Data: []byte("CREATE TABLE c (id TEXT);")},
			"m/README.md":              {Data: []byte("ignored")},
		}

		migrations, err := NewScanner(fsys, "m").Scan()
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(migrations) != 3 {
			t.Fatalf("expected 3 migrations, got %d", len(migrations))
		}
		if migrations[0].Version != "001" || migrations[1].Version != "002" || migrations[2].Version != "010" {
			t.Fatalf("unexpected order: %s %s %s", migrations[0].Version, migrations[1].Version, migrations[2].Version)
		}
		if migrations[0].Description != "initial schema" {
			t.Fatalf("expected filename description, got %q", migrations[0].Description)
		}
		if migrations[1].Description != "adds table a" {
			t.Fatalf("expected content description, got %q", migrations[1].Description)
		}
		if migrations[0].Checksum == "" {
			t.Fatal("expected checksum to be populated")
		}
	})

	t.Run("rejects malformed files", func(t *testing.T) {
		cases := map[string]fstest.MapFS{
			"bad name":       {"m/initial.sql": {Data: []byte("SELECT 1;")}},
			"empty":          {"m/001_empty.sql": {Data: []byte("-- nothing here\n")}},
			"unbalanced":     {"m/001_broken.sql": {Data: []byte("CREATE TABLE x (id TEXT;")}},
			"duplicate":      {"m/001_a.sql": {Data: []byte("SELECT 1;")}, "m/1_b.sql": {Data: []byte("SELECT 2;")}},
		}
		for name, fsys := range cases {
			if _, err := NewScanner(fsys, "m").Scan(); err == nil {
				t.Fatalf("%s: expected error", name)
			}
		}
	})
}

func TestSplitStatements(t *testing.T) {
	script := "-- header\nCREATE TABLE a (id TEXT);\n\n-- between\nCREATE INDEX i ON a(id);\n"
	statements := SplitStatements(script)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if !strings.HasPrefix(statements[1], "CREATE INDEX") {
		t.Fatalf("unexpected second statement %q", statements[1])
	}
}

func TestManagerRun(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T) *Executor {
		t.Helper()
		db, err := Open(TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "migrate.db")))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return NewExecutor(db)
	}

	t.Run("applies pending migrations once", func(t *testing.T) {
		executor := open(t)
		fsys := fstest.MapFS{
			"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
			"m/002_second.sql": {Data: []byte("CREATE TABLE b (id TEXT PRIMARY KEY);\nINSERT INTO b (id) VALUES ('x');")},
		}
		manager := NewManager(NewScanner(fsys, "m"), executor, nil)

		if err := manager.Run(ctx); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if err := manager.Run(ctx); err != nil {
			t.Fatalf("second Run failed: %v", err)
		}

		status, err := manager.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.CurrentVersion != "002" || len(status.Pending) != 0 || len(status.Applied) != 2 {
			t.Fatalf("unexpected status: %+v", status)
		}
	})

	t.Run("rolls back a failing migration", func(t *testing.T) {
		executor := open(t)
		fsys := fstest.MapFS{
			"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
			"m/002_broken.sql": {Data: []byte("CREATE TABLE c (id TEXT);\nINSERT INTO missing_table VALUES (1);")},
		}
		manager := NewManager(NewScanner(fsys, "m"), executor, nil)

		err := manager.Run(ctx)
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}

		status, err := manager.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.CurrentVersion != "001" || len(status.Pending) != 1 {
			t.Fatalf("expected 001 applied and 002 pending, got %+v", status)
		}
		if _, err := executor.db.ExecContext(ctx, "INSERT INTO c (id) VALUES ('x')"); err == nil {
			t.Fatal("expected table c to be rolled back")
		}
	})

	t.Run("detects gaps and modified files", func(t *testing.T) {
		executor := open(t)
		gap := fstest.MapFS{
			"m/001_first.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			"m/003_third.sql": {Data: []byte("CREATE TABLE c (id TEXT);")},
		}
		if err := NewManager(NewScanner(gap, "m"), executor, nil).Run(ctx); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}

		original := fstest.MapFS{"m/001_first.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
		if err := NewManager(NewScanner(original, "m"), executor, nil).Run(ctx); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		modified := fstest.MapFS{"m/001_first.sql": {Data: []byte("CREATE TABLE a (id TEXT, extra TEXT);")}}
		if _, err := NewManager(NewScanner(modified, "m"), executor, nil).Status(ctx); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})
}

func TestSQLiteConfig(t *testing.T) {
	t.Run("connection string carries pragmas and immediate transactions", func(t *testing.T) {
		dsn := DefaultSQLiteConfig("data/booking.db").ConnectionString()
		for _, want := range []string{"file:data/booking.db?", "_txlock=immediate", "foreign_keys%281%29", "busy_timeout%285000%29"} {
			if !strings.Contains(dsn, want) {
				t.Fatalf("expected %q in %q", want, dsn)
			}
		}
	})

	t.Run("rejects invalid settings", func(t *testing.T) {
		cfg := DefaultSQLiteConfig("x.db")
		cfg.JournalMode = "SIDEWAYS"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected journal mode error")
		}
		if err := (SQLiteConfig{}).Validate(); err == nil {
			t.Fatal("expected empty DSN error")
		}
	})
}
