package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Executor applies migrations to a SQLite database and tracks them in
// the schema_migrations table.
type Executor struct {
	db  *sql.DB
	now func() time.Time
}

// NewExecutor creates an Executor over db.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return NewDatabaseError("", query, "create schema_migrations table", err)
	}
	return nil
}

// Apply runs every statement of m and records it, all in one transaction.
func (e *Executor) Apply(ctx context.Context, m Migration) (err error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	for i, stmt := range SplitStatements(m.SQL) {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	const record = `
		INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms)
		VALUES (?, ?, ?, ?)`
	elapsed := e.now().Sub(started)
	if _, execErr := tx.ExecContext(ctx, record, m.Version, e.now().UTC().Format(time.RFC3339), m.Checksum, elapsed.Milliseconds()); execErr != nil {
		return NewDatabaseError(m.Version, record, "record migration", execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return NewDatabaseError(m.Version, "", "commit transaction", commitErr)
	}
	return nil
}

// Applied returns the recorded migrations ordered by version.
func (e *Executor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	const query = `
		SELECT version, applied_at, execution_time_ms, checksum
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewDatabaseError("", query, "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			a         AppliedMigration
			appliedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&a.Version, &appliedAt, &elapsedMS, &a.Checksum); err != nil {
			return nil, NewDatabaseError("", query, "scan applied migration", err)
		}
		if a.AppliedAt, err = time.Parse(time.RFC3339, appliedAt); err != nil {
			return nil, NewDatabaseError(a.Version, query, "parse applied_at", err)
		}
		a.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", query, "iterate applied migrations", err)
	}
	return applied, nil
}
