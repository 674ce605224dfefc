// Package postgres implements persistence.Store on PostgreSQL through pgxpool.
// Inside a transaction, rooms and resources are read with FOR UPDATE so that
// concurrent arbitration on the same row is serialized by the database.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/telemetry"
)

//go:embed schema.sql
var schema string

// Config holds pool settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Store is the PostgreSQL-backed persistence.Store.
type Store struct {
	*repos
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open creates a pool and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Store{
		repos:  &repos{q: pool},
		pool:   pool,
		logger: logger,
	}, nil
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.InfoContext(ctx, "postgres schema ensured")
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithinTx runs fn in one transaction and commits when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tx")
	defer func() { telemetry.EndSpan(span, err) }()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx, &repos{q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// SaveEvent writes the event row and its lines atomically.
func (s *Store) SaveEvent(ctx context.Context, event persistence.Event) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return tx.SaveEvent(ctx, event)
	})
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// repos implements persistence.Tx over the pool or a transaction.
type repos struct {
	q    querier
	inTx bool
}

// forUpdate returns the row-lock suffix for reads inside a transaction.
func (r *repos) forUpdate() string {
	if r.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (r *repos) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres."+name, attrs...)
	return ctx, func(err error) { telemetry.EndSpan(span, err) }
}

// mapError maps pgx errors to persistence errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", persistence.ErrForeignKeyViolation, pgErr.Message)
		case "23514", "23502":
			return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", persistence.ErrBusy, pgErr.Message)
		}
	}
	return err
}

// Reset removes every row. It exists for integration tests against a
// disposable database.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE event_resources, events, resources, rooms RESTART IDENTITY`)
	return mapError(err)
}
