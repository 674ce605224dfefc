// Package notify announces committed booking changes to downstream systems.
// Notifications are sent after the booking transaction has committed and its
// locks are released; delivery failures never undo a booking.
package notify

import (
	"context"
	"sync"
	"time"
)

// Type names what happened to a booking.
type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingUpdated   Type = "booking.updated"
	BookingCancelled Type = "booking.cancelled"
	BookingDeleted   Type = "booking.deleted"
)

// Line is one resource claim in a notification payload.
type Line struct {
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
}

// Notification is the JSON payload published for a booking change.
type Notification struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	BookingID   string    `json:"booking_id"`
	RoomID      string    `json:"room_id"`
	EventDate   string    `json:"event_date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Status      string    `json:"status"`
	OrganizerID string    `json:"organizer_id"`
	Resources   []Line    `json:"resources,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Publish(context.Context, Notification) error { return nil }
func (Noop) Close() error                                { return nil }

// Recorder keeps published notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

// FailWith makes subsequent Publish calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Recorder) Publish(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Sent returns a copy of everything published so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
