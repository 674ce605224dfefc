package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/room-booking/internal/persistence"
)

const resourceColumns = `id, name, description, total_quantity, available_quantity, is_available, created_at, updated_at`

// CreateResource inserts a new resource.
func (r *repos) CreateResource(ctx context.Context, res persistence.Resource) error {
	if res.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.Name,
		res.Description,
		res.TotalQuantity,
		res.AvailableQuantity,
		boolToInt(res.IsAvailable),
		formatTime(res.CreatedAt),
		formatTime(res.UpdatedAt),
	)
	return mapError(err)
}

// UpdateResource writes descriptive fields and the availability flag.
func (r *repos) UpdateResource(ctx context.Context, res persistence.Resource) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE resources
		SET name = ?, description = ?, is_available = ?, updated_at = ?
		WHERE id = ?`,
		res.Name,
		res.Description,
		boolToInt(res.IsAvailable),
		formatTime(res.UpdatedAt),
		res.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// GetResource retrieves a resource by ID.
func (r *repos) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	res, err := scanResource(row)
	if err != nil {
		return persistence.Resource{}, mapError(err)
	}
	return res, nil
}

// ListResources returns all resources ordered by name then ID.
func (r *repos) ListResources(ctx context.Context) ([]persistence.Resource, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var list []persistence.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, mapError(err)
		}
		list = append(list, res)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return list, nil
}

// DeleteResource removes a resource not referenced by any resource line.
func (r *repos) DeleteResource(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// CompareAndSwapAvailable is a conditional update against the value the
// caller read; it never blindly overwrites the counter.
func (r *repos) CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE resources
		SET available_quantity = ?, updated_at = ?
		WHERE id = ? AND available_quantity = ? AND ? BETWEEN 0 AND total_quantity`,
		next,
		formatTime(time.Now()),
		id,
		expected,
		next,
	)
	if err != nil {
		return false, mapError(err)
	}
	return r.swapped(ctx, result, id)
}

// CompareAndSwapQuantities replaces both counters when they match expected.
func (r *repos) CompareAndSwapQuantities(ctx context.Context, id string, expected, next persistence.Quantities) (bool, error) {
	if next.Available < 0 || next.Available > next.Total {
		if _, err := r.GetResource(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE resources
		SET total_quantity = ?, available_quantity = ?, updated_at = ?
		WHERE id = ? AND total_quantity = ? AND available_quantity = ?`,
		next.Total,
		next.Available,
		formatTime(time.Now()),
		id,
		expected.Total,
		expected.Available,
	)
	if err != nil {
		return false, mapError(err)
	}
	return r.swapped(ctx, result, id)
}

// swapped distinguishes a lost compare-and-set from a missing row.
func (r *repos) swapped(ctx context.Context, result rowsAffecter, id string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	if err := r.q.QueryRowContext(ctx, `SELECT 1 FROM resources WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return false, nil
}

func scanResource(row rowScanner) (persistence.Resource, error) {
	var (
		res                  persistence.Resource
		available            int
		createdAt, updatedAt string
	)
	if err := row.Scan(&res.ID, &res.Name, &res.Description, &res.TotalQuantity, &res.AvailableQuantity,
		&available, &createdAt, &updatedAt); err != nil {
		return persistence.Resource{}, err
	}
	res.IsAvailable = available != 0

	var err error
	if res.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Resource{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if res.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Resource{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return res, nil
}
