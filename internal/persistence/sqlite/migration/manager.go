package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default.
func NewManager(scanner *Scanner, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration. A failing migration is rolled back and
// stops the run.
func (m *Manager) Run(ctx context.Context) error {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "schema status",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending))

	for i, mig := range status.Pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", mig.Version,
			"description", mig.Description,
			"position", i+1,
			"total", len(status.Pending))

		if err := m.executor.Apply(ctx, mig); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", mig.Version, "error", err)
			return NewMigrationError(mig.Version, mig.FilePath, "execute migration",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
	}

	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations complete",
			"applied", len(status.Pending),
			"duration", time.Since(started))
	}
	return nil
}

// Status reports applied and pending migrations after validating that the
// source and the database agree.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, err
	}

	available, err := m.scanner.Scan()
	if err != nil {
		return nil, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return nil, err
	}

	if err := validateSequence(available, applied); err != nil {
		return nil, err
	}

	appliedSet := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		appliedSet[a.Version] = struct{}{}
	}

	status := &Status{Applied: applied}
	for _, mig := range available {
		if _, ok := appliedSet[mig.Version]; !ok {
			status.Pending = append(status.Pending, mig)
		}
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

func validateSequence(available []Migration, applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(available))
	for i, mig := range available {
		v, err := strconv.Atoi(mig.Version)
		if err != nil {
			return NewMigrationError(mig.Version, mig.FilePath, "validate sequence", err)
		}
		if i > 0 {
			prev, _ := strconv.Atoi(available[i-1].Version)
			if v != prev+1 {
				return fmt.Errorf("%w: missing migration version %03d", ErrVersionConflict, prev+1)
			}
		}
		byVersion[v] = mig
	}

	for _, a := range applied {
		v, err := strconv.Atoi(a.Version)
		if err != nil {
			return NewDatabaseError(a.Version, "", "validate sequence", err)
		}
		mig, ok := byVersion[v]
		if !ok {
			return fmt.Errorf("%w: applied migration %s has no source file", ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && a.Checksum != mig.Checksum {
			return NewMigrationError(mig.Version, mig.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
