package postgres

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/room-booking/internal/persistence"
)

const eventColumns = `id, name, description, room_id, event_date, start_time, end_time, status,
	organizer_id, attendees, claims_held, created_at, updated_at`

func (r *repos) SaveEvent(ctx context.Context, event persistence.Event) (err error) {
	ctx, end := r.span(ctx, "event.save",
		attribute.String("event_id", event.ID), attribute.String("status", string(event.Status)))
	defer func() { end(err) }()

	_, err = r.q.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			room_id = EXCLUDED.room_id,
			event_date = EXCLUDED.event_date,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			status = EXCLUDED.status,
			organizer_id = EXCLUDED.organizer_id,
			attendees = EXCLUDED.attendees,
			claims_held = EXCLUDED.claims_held,
			updated_at = EXCLUDED.updated_at`,
		event.ID, event.Name, event.Description, event.RoomID, event.EventDate, event.StartTime,
		event.EndTime, string(event.Status), event.OrganizerID, event.Attendees, event.ClaimsHeld,
		event.CreatedAt.UTC(), event.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapError(err)
	}

	if _, err = r.q.Exec(ctx, `DELETE FROM event_resources WHERE event_id = $1`, event.ID); err != nil {
		return mapError(err)
	}
	for i, line := range event.Resources {
		if _, err = r.q.Exec(ctx, `
			INSERT INTO event_resources (event_id, position, resource_id, quantity)
			VALUES ($1, $2, $3, $4)`,
			event.ID, i, line.ResourceID, line.Quantity,
		); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *repos) GetEvent(ctx context.Context, id string) (event persistence.Event, err error) {
	ctx, end := r.span(ctx, "event.get", attribute.String("event_id", id))
	defer func() { end(err) }()

	events, err := r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		return persistence.Event{}, err
	}
	if len(events) == 0 {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return events[0], nil
}

func (r *repos) DeleteEvent(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "event.delete", attribute.String("event_id", id))
	defer func() { end(err) }()

	tag, err := r.q.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *repos) ListEvents(ctx context.Context, filter persistence.EventFilter) (events []persistence.Event, err error) {
	ctx, end := r.span(ctx, "event.list")
	defer func() { end(err) }()

	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.RoomID != "" {
		add("room_id = $%d", filter.RoomID)
	}
	if filter.OrganizerID != "" {
		add("organizer_id = $%d", filter.OrganizerID)
	}
	if filter.FromDate != "" {
		add("event_date >= $%d", filter.FromDate)
	}
	if filter.ToDate != "" {
		add("event_date <= $%d", filter.ToDate)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY event_date ASC, start_time ASC, id ASC`

	// lower() depends on the database collation; text search uses
	// filter.Matches so every backend folds case the same way.
	if filter.Search != "" {
		return r.collectEvents(ctx, filter.Matches, filter.EffectiveLimit(), query, args...)
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	return r.queryEvents(ctx, query, args...)
}

func (r *repos) FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) (events []persistence.Event, err error) {
	ctx, end := r.span(ctx, "event.find_active",
		attribute.String("room_id", roomID), attribute.String("event_date", date))
	defer func() { end(err) }()

	return r.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE room_id = $1 AND event_date = $2 AND claims_held AND id <> $3
		ORDER BY seq ASC`,
		roomID, date, excludeID,
	)
}

func (r *repos) CountActiveEventsForRoom(ctx context.Context, roomID string) (count int, err error) {
	err = r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE room_id = $1 AND claims_held`, roomID,
	).Scan(&count)
	return count, mapError(err)
}

func (r *repos) CountActiveEventsForResource(ctx context.Context, resourceID string) (count int, err error) {
	err = r.q.QueryRow(ctx, `
		SELECT COUNT(DISTINCT e.id)
		FROM events e
		JOIN event_resources er ON er.event_id = e.id
		WHERE er.resource_id = $1 AND e.claims_held`, resourceID,
	).Scan(&count)
	return count, mapError(err)
}

func (r *repos) queryEvents(ctx context.Context, query string, args ...any) ([]persistence.Event, error) {
	return r.collectEvents(ctx, nil, 0, query, args...)
}

// collectEvents scans rows, keeping those accepted by keep (all when nil)
// and stopping after limit kept rows when limit is positive.
func (r *repos) collectEvents(ctx context.Context, keep func(persistence.Event) bool, limit int, query string, args ...any) ([]persistence.Event, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}

	var events []persistence.Event
	for rows.Next() {
		var (
			event  persistence.Event
			status string
		)
		if err := rows.Scan(
			&event.ID, &event.Name, &event.Description, &event.RoomID, &event.EventDate,
			&event.StartTime, &event.EndTime, &status, &event.OrganizerID, &event.Attendees,
			&event.ClaimsHeld, &event.CreatedAt, &event.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, mapError(err)
		}
		event.Status = persistence.EventStatus(status)
		if keep != nil && !keep(event) {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	if err := r.attachLines(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// attachLines loads resource lines for events in one query.
func (r *repos) attachLines(ctx context.Context, events []persistence.Event) error {
	if len(events) == 0 {
		return nil
	}

	index := make(map[string]int, len(events))
	ids := make([]string, len(events))
	for i, event := range events {
		index[event.ID] = i
		ids[i] = event.ID
	}

	rows, err := r.q.Query(ctx, `
		SELECT event_id, resource_id, quantity
		FROM event_resources
		WHERE event_id = ANY($1)
		ORDER BY event_id, position`, ids)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID string
			line    persistence.ResourceLine
		)
		if err := rows.Scan(&eventID, &line.ResourceID, &line.Quantity); err != nil {
			return mapError(err)
		}
		i := index[eventID]
		events[i].Resources = append(events[i].Resources, line)
	}
	return mapError(rows.Err())
}
