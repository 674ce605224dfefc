package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-booking/internal/persistence"
)

var (
	roomCounter     uint64
	resourceCounter uint64
	eventCounter    uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate is the booking date most fixtures use.
const ReferenceDate = "2024-06-01"

// ----------------------------- Room fixtures -----------------------------

// RoomOption configures a generated room.
type RoomOption func(*persistence.Room)

// NewRoom returns an available room with deterministic attributes.
func NewRoom(opts ...RoomOption) persistence.Room {
	idx := atomic.AddUint64(&roomCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	room := persistence.Room{
		ID:          fmt.Sprintf("room-%03d", idx),
		Name:        fmt.Sprintf("Room %03d", idx),
		Location:    "Floor 1",
		Capacity:    10,
		IsAvailable: true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&room)
	}
	return room
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(r *persistence.Room) { r.ID = id }
}

// WithRoomCapacity overrides the room capacity.
func WithRoomCapacity(capacity int) RoomOption {
	return func(r *persistence.Room) { r.Capacity = capacity }
}

// WithRoomUnavailable marks the room as administratively disabled.
func WithRoomUnavailable() RoomOption {
	return func(r *persistence.Room) { r.IsAvailable = false }
}

// --------------------------- Resource fixtures ---------------------------

// ResourceOption configures a generated resource.
type ResourceOption func(*persistence.Resource)

// NewResource returns an available resource with five units in stock.
func NewResource(opts ...ResourceOption) persistence.Resource {
	idx := atomic.AddUint64(&resourceCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	res := persistence.Resource{
		ID:                fmt.Sprintf("resource-%03d", idx),
		Name:              fmt.Sprintf("Resource %03d", idx),
		TotalQuantity:     5,
		AvailableQuantity: 5,
		IsAvailable:       true,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	for _, opt := range opts {
		opt(&res)
	}
	return res
}

// WithResourceID overrides the generated resource ID.
func WithResourceID(id string) ResourceOption {
	return func(r *persistence.Resource) { r.ID = id }
}

// WithResourceQuantity sets both total and available quantities.
func WithResourceQuantity(total, available int) ResourceOption {
	return func(r *persistence.Resource) {
		r.TotalQuantity = total
		r.AvailableQuantity = available
	}
}

// WithResourceUnavailable marks the resource as administratively disabled.
func WithResourceUnavailable() ResourceOption {
	return func(r *persistence.Resource) { r.IsAvailable = false }
}

// ----------------------------- Event fixtures ----------------------------

// EventOption configures a generated event.
type EventOption func(*persistence.Event)

// NewEvent returns a pending event holding a 10:00-11:00 slot on ReferenceDate.
func NewEvent(roomID string, opts ...EventOption) persistence.Event {
	idx := atomic.AddUint64(&eventCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	ev := persistence.Event{
		ID:          fmt.Sprintf("event-%03d", idx),
		Name:        fmt.Sprintf("Event %03d", idx),
		RoomID:      roomID,
		EventDate:   ReferenceDate,
		StartTime:   "10:00",
		EndTime:     "11:00",
		Status:      persistence.StatusPending,
		OrganizerID: "organizer-1",
		ClaimsHeld:  true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(e *persistence.Event) { e.ID = id }
}

// WithEventWindow overrides the date and time window.
func WithEventWindow(date, start, end string) EventOption {
	return func(e *persistence.Event) {
		e.EventDate = date
		e.StartTime = start
		e.EndTime = end
	}
}

// WithEventStatus overrides the status and derives ClaimsHeld from it.
func WithEventStatus(status persistence.EventStatus) EventOption {
	return func(e *persistence.Event) {
		e.Status = status
		e.ClaimsHeld = status == persistence.StatusPending || status == persistence.StatusApproved
	}
}

// WithEventResources sets the resource lines.
func WithEventResources(lines ...persistence.ResourceLine) EventOption {
	return func(e *persistence.Event) { e.Resources = lines }
}

// WithEventOrganizer overrides the organizer reference.
func WithEventOrganizer(id string) EventOption {
	return func(e *persistence.Event) { e.OrganizerID = id }
}

// WithEventName overrides the event name.
func WithEventName(name string) EventOption {
	return func(e *persistence.Event) { e.Name = name }
}
