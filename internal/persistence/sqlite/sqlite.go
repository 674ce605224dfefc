// Package sqlite implements persistence.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"time"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const timeLayout = time.RFC3339Nano

// Store is the SQLite-backed persistence.Store. Writers are serialized by
// BEGIN IMMEDIATE transactions.
type Store struct {
	*repos
	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Store{
		repos:  &repos{q: pool.DB()},
		pool:   pool,
		logger: logger,
	}, nil
}

// OpenPath connects to a database file with the default configuration.
func OpenPath(path string, logger *slog.Logger) (*Store, error) {
	return Open(migration.DefaultSQLiteConfig(path), logger)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewExecutor(s.pool.DB()),
		s.logger,
	)
	return manager.Run(ctx)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// WithinTx runs fn inside one transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &repos{q: tx})
	})
}

// SaveEvent writes the event row and its lines atomically.
func (s *Store) SaveEvent(ctx context.Context, event persistence.Event) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return tx.SaveEvent(ctx, event)
	})
}

// repos implements persistence.Tx over either the pool or a transaction.
type repos struct {
	q querier
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
