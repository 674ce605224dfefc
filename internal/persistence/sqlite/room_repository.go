package sqlite

import (
	"context"
	"fmt"

	"github.com/example/room-booking/internal/persistence"
)

const roomColumns = `id, name, location, capacity, is_available, created_at, updated_at`

// CreateRoom inserts a new room.
func (r *repos) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" || room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.ID,
		room.Name,
		room.Location,
		room.Capacity,
		boolToInt(room.IsAvailable),
		formatTime(room.CreatedAt),
		formatTime(room.UpdatedAt),
	)
	return mapError(err)
}

// UpdateRoom updates an existing room.
func (r *repos) UpdateRoom(ctx context.Context, room persistence.Room) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE rooms
		SET name = ?, location = ?, capacity = ?, is_available = ?, updated_at = ?
		WHERE id = ?`,
		room.Name,
		room.Location,
		room.Capacity,
		boolToInt(room.IsAvailable),
		formatTime(room.UpdatedAt),
		room.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// GetRoom retrieves a room by ID.
func (r *repos) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		return persistence.Room{}, mapError(err)
	}
	return room, nil
}

// ListRooms returns all rooms ordered by name then ID.
func (r *repos) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, mapError(err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return rooms, nil
}

// DeleteRoom removes a room. Rooms still referenced by events are refused by
// the foreign key.
func (r *repos) DeleteRoom(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (persistence.Room, error) {
	var (
		room                 persistence.Room
		available            int
		createdAt, updatedAt string
	)
	if err := row.Scan(&room.ID, &room.Name, &room.Location, &room.Capacity, &available, &createdAt, &updatedAt); err != nil {
		return persistence.Room{}, err
	}
	room.IsAvailable = available != 0

	var err error
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Room{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Room{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return room, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(result rowsAffecter) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
