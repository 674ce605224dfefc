package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/room-booking/internal/persistence"
)

const eventColumns = `id, name, description, room_id, event_date, start_time, end_time, status,
	organizer_id, attendees, claims_held, created_at, updated_at`

// SaveEvent upserts the event row and replaces its resource lines. Callers
// outside a transaction go through Store.SaveEvent.
func (r *repos) SaveEvent(ctx context.Context, event persistence.Event) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			room_id = excluded.room_id,
			event_date = excluded.event_date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			organizer_id = excluded.organizer_id,
			attendees = excluded.attendees,
			claims_held = excluded.claims_held,
			updated_at = excluded.updated_at`,
		event.ID,
		event.Name,
		event.Description,
		event.RoomID,
		event.EventDate,
		event.StartTime,
		event.EndTime,
		string(event.Status),
		event.OrganizerID,
		event.Attendees,
		boolToInt(event.ClaimsHeld),
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	)
	if err != nil {
		return mapError(err)
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM event_resources WHERE event_id = ?`, event.ID); err != nil {
		return mapError(err)
	}
	for i, line := range event.Resources {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO event_resources (event_id, position, resource_id, quantity)
			VALUES (?, ?, ?, ?)`,
			event.ID, i, line.ResourceID, line.Quantity,
		); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// GetEvent retrieves an event with its resource lines.
func (r *repos) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.Event{}, mapError(err)
	}

	events := []persistence.Event{event}
	if err := r.attachLines(ctx, events); err != nil {
		return persistence.Event{}, err
	}
	return events[0], nil
}

// DeleteEvent removes an event; its lines cascade.
func (r *repos) DeleteEvent(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// ListEvents returns events matching filter ordered by date, start time and ID.
func (r *repos) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RoomID != "" {
		clauses = append(clauses, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.OrganizerID != "" {
		clauses = append(clauses, "organizer_id = ?")
		args = append(args, filter.OrganizerID)
	}
	if filter.FromDate != "" {
		clauses = append(clauses, "event_date >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != "" {
		clauses = append(clauses, "event_date <= ?")
		args = append(args, filter.ToDate)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY event_date ASC, start_time ASC, id ASC`

	// SQLite lower() folds ASCII only; text search uses filter.Matches so
	// every backend folds case the same way.
	if filter.Search != "" {
		return r.collectEvents(ctx, filter.Matches, filter.EffectiveLimit(), query, args...)
	}
	query += ` LIMIT ?`
	args = append(args, filter.EffectiveLimit())
	return r.queryEvents(ctx, query, args...)
}

// FindActiveEventsByRoomAndDate returns claim-holding events in arrival order.
func (r *repos) FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) ([]persistence.Event, error) {
	return r.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE room_id = ? AND event_date = ? AND claims_held = 1 AND id <> ?
		ORDER BY seq ASC`,
		roomID, date, excludeID,
	)
}

// CountActiveEventsForRoom counts claim-holding events in a room.
func (r *repos) CountActiveEventsForRoom(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE room_id = ? AND claims_held = 1`, roomID,
	).Scan(&count)
	return count, mapError(err)
}

// CountActiveEventsForResource counts claim-holding events with a line on the resource.
func (r *repos) CountActiveEventsForResource(ctx context.Context, resourceID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT e.id)
		FROM events e
		JOIN event_resources er ON er.event_id = e.id
		WHERE er.resource_id = ? AND e.claims_held = 1`, resourceID,
	).Scan(&count)
	return count, mapError(err)
}

func (r *repos) queryEvents(ctx context.Context, query string, args ...any) ([]persistence.Event, error) {
	return r.collectEvents(ctx, nil, 0, query, args...)
}

// collectEvents scans rows, keeping those accepted by keep (all when nil)
// and stopping after limit kept rows when limit is positive.
func (r *repos) collectEvents(ctx context.Context, keep func(persistence.Event) bool, limit int, query string, args ...any) ([]persistence.Event, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}

	var events []persistence.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, mapError(err)
		}
		if keep != nil && !keep(event) {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, mapError(err)
	}
	rows.Close()

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
	placeholders := make([]string, len(events))
	args := make([]any, len(events))
	for i, event := range events {
		index[event.ID] = i
		placeholders[i] = "?"
		args[i] = event.ID
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT event_id, resource_id, quantity
		FROM event_resources
		WHERE event_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY event_id, position`, args...)
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

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                persistence.Event
		status               string
		claimsHeld           int
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&event.RoomID,
		&event.EventDate,
		&event.StartTime,
		&event.EndTime,
		&status,
		&event.OrganizerID,
		&event.Attendees,
		&claimsHeld,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Event{}, err
	}
	event.Status = persistence.EventStatus(status)
	event.ClaimsHeld = claimsHeld != 0

	var err error
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return event, nil
}
