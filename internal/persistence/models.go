package persistence

import "time"

// EventStatus is the lifecycle state of a booking.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusApproved  EventStatus = "approved"
	StatusRejected  EventStatus = "rejected"
	StatusCancelled EventStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Room represents a bookable meeting room.
type Room struct {
	ID          string
	Name        string
	Location    string
	Capacity    int
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resource represents an inventory item that bookings reserve units of.
type Resource struct {
	ID                string
	Name              string
	Description       string
	TotalQuantity     int
	AvailableQuantity int
	IsAvailable       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Quantities is the pair of counters compared and swapped on inventory changes.
type Quantities struct {
	Total     int
	Available int
}

// ResourceLine is a claim of Quantity units of a resource held by one event.
type ResourceLine struct {
	ResourceID string
	Quantity   int
}

// Event represents a booking of a room slot plus resource lines.
type Event struct {
	ID          string
	Name        string
	Description string
	RoomID      string
	EventDate   string
	StartTime   string
	EndTime     string
	Status      EventStatus
	Resources   []ResourceLine
	OrganizerID string
	Attendees   int
	// ClaimsHeld is true while the event occupies its slot and its resource
	// lines are debited from the ledger.
	ClaimsHeld bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventFilter narrows event listings. Zero values do not filter.
type EventFilter struct {
	Status      EventStatus
	RoomID      string
	OrganizerID string
	FromDate    string
	ToDate      string
	Search      string
	Limit       int
}
