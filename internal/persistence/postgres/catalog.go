package postgres

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/room-booking/internal/persistence"
)

const (
	roomColumns     = `id, name, location, capacity, is_available, created_at, updated_at`
	resourceColumns = `id, name, description, total_quantity, available_quantity, is_available, created_at, updated_at`
)

func (r *repos) CreateRoom(ctx context.Context, room persistence.Room) (err error) {
	ctx, end := r.span(ctx, "room.create", attribute.String("room_id", room.ID))
	defer func() { end(err) }()

	if room.ID == "" || room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, room.Name, room.Location, room.Capacity, room.IsAvailable,
		room.CreatedAt.UTC(), room.UpdatedAt.UTC(),
	)
	return mapError(err)
}

func (r *repos) UpdateRoom(ctx context.Context, room persistence.Room) (err error) {
	ctx, end := r.span(ctx, "room.update", attribute.String("room_id", room.ID))
	defer func() { end(err) }()

	tag, err := r.q.Exec(ctx, `
		UPDATE rooms
		SET name = $1, location = $2, capacity = $3, is_available = $4, updated_at = $5
		WHERE id = $6`,
		room.Name, room.Location, room.Capacity, room.IsAvailable, room.UpdatedAt.UTC(), room.ID,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetRoom locks the row when called inside a transaction.
func (r *repos) GetRoom(ctx context.Context, id string) (room persistence.Room, err error) {
	ctx, end := r.span(ctx, "room.get", attribute.String("room_id", id))
	defer func() { end(err) }()

	err = r.q.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`+r.forUpdate(), id).Scan(
		&room.ID, &room.Name, &room.Location, &room.Capacity, &room.IsAvailable, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return persistence.Room{}, mapError(err)
	}
	return room, nil
}

func (r *repos) ListRooms(ctx context.Context) (rooms []persistence.Room, err error) {
	ctx, end := r.span(ctx, "room.list")
	defer func() { end(err) }()

	rows, err := r.q.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var room persistence.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Location, &room.Capacity, &room.IsAvailable,
			&room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		rooms = append(rooms, room)
	}
	return rooms, mapError(rows.Err())
}

func (r *repos) DeleteRoom(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "room.delete", attribute.String("room_id", id))
	defer func() { end(err) }()

	tag, err := r.q.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *repos) CreateResource(ctx context.Context, res persistence.Resource) (err error) {
	ctx, end := r.span(ctx, "resource.create", attribute.String("resource_id", res.ID))
	defer func() { end(err) }()

	if res.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO resources (`+resourceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.Name, res.Description, res.TotalQuantity, res.AvailableQuantity, res.IsAvailable,
		res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	return mapError(err)
}

func (r *repos) UpdateResource(ctx context.Context, res persistence.Resource) (err error) {
	ctx, end := r.span(ctx, "resource.update", attribute.String("resource_id", res.ID))
	defer func() { end(err) }()

	tag, err := r.q.Exec(ctx, `
		UPDATE resources
		SET name = $1, description = $2, is_available = $3, updated_at = $4
		WHERE id = $5`,
		res.Name, res.Description, res.IsAvailable, res.UpdatedAt.UTC(), res.ID,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetResource locks the row when called inside a transaction.
func (r *repos) GetResource(ctx context.Context, id string) (res persistence.Resource, err error) {
	ctx, end := r.span(ctx, "resource.get", attribute.String("resource_id", id))
	defer func() { end(err) }()

	err = r.q.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`+r.forUpdate(), id).Scan(
		&res.ID, &res.Name, &res.Description, &res.TotalQuantity, &res.AvailableQuantity, &res.IsAvailable,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return persistence.Resource{}, mapError(err)
	}
	return res, nil
}

func (r *repos) ListResources(ctx context.Context) (list []persistence.Resource, err error) {
	ctx, end := r.span(ctx, "resource.list")
	defer func() { end(err) }()

	rows, err := r.q.Query(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var res persistence.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Description, &res.TotalQuantity, &res.AvailableQuantity,
			&res.IsAvailable, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		list = append(list, res)
	}
	return list, mapError(rows.Err())
}

func (r *repos) DeleteResource(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "resource.delete", attribute.String("resource_id", id))
	defer func() { end(err) }()

	tag, err := r.q.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *repos) CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (ok bool, err error) {
	ctx, end := r.span(ctx, "resource.cas_available",
		attribute.String("resource_id", id), attribute.Int("expected", expected), attribute.Int("next", next))
	defer func() { end(err) }()

	tag, err := r.q.Exec(ctx, `
		UPDATE resources
		SET available_quantity = $1, updated_at = $2
		WHERE id = $3 AND available_quantity = $4 AND $1 BETWEEN 0 AND total_quantity`,
		next, time.Now().UTC(), id, expected,
	)
	if err != nil {
		return false, mapError(err)
	}
	return r.swapped(ctx, tag.RowsAffected(), id)
}

func (r *repos) CompareAndSwapQuantities(ctx context.Context, id string, expected, next persistence.Quantities) (ok bool, err error) {
	ctx, end := r.span(ctx, "resource.cas_quantities", attribute.String("resource_id", id))
	defer func() { end(err) }()

	if next.Available < 0 || next.Available > next.Total {
		return r.swapped(ctx, 0, id)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE resources
		SET total_quantity = $1, available_quantity = $2, updated_at = $3
		WHERE id = $4 AND total_quantity = $5 AND available_quantity = $6`,
		next.Total, next.Available, time.Now().UTC(), id, expected.Total, expected.Available,
	)
	if err != nil {
		return false, mapError(err)
	}
	return r.swapped(ctx, tag.RowsAffected(), id)
}

// swapped distinguishes a lost compare-and-set from a missing row.
func (r *repos) swapped(ctx context.Context, affected int64, id string) (bool, error) {
	if affected > 0 {
		return true, nil
	}
	var exists int
	if err := r.q.QueryRow(ctx, `SELECT 1 FROM resources WHERE id = $1`, id).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return false, nil
}
