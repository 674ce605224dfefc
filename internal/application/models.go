package application

import "github.com/example/room-booking/internal/persistence"

// Principal represents the caller invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// canManage reports whether p may modify a booking owned by organizerID.
func (p Principal) canManage(organizerID string) bool {
	return p.IsAdmin || (p.UserID != "" && p.UserID == organizerID)
}

// ResourceLineInput is a requested quantity of one resource.
type ResourceLineInput struct {
	ResourceID string
	Quantity   int
}

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	Name        string
	Description string
	RoomID      string
	EventDate   string
	StartTime   string
	EndTime     string
	Resources   []ResourceLineInput
	// OrganizerID defaults to the principal. Only administrators may book on
	// behalf of someone else.
	OrganizerID string
	Attendees   int
}

// BookingPatch carries the fields an update changes. Nil fields are kept.
type BookingPatch struct {
	Name        *string
	Description *string
	RoomID      *string
	EventDate   *string
	StartTime   *string
	EndTime     *string
	Status      *persistence.EventStatus
	Resources   *[]ResourceLineInput
	Attendees   *int
}

// CreateBookingParams wraps the data required to create a booking.
type CreateBookingParams struct {
	Principal Principal
	Input     BookingInput
}

// UpdateBookingParams wraps the data required to update a booking.
type UpdateBookingParams struct {
	Principal Principal
	BookingID string
	Patch     BookingPatch
}

// DeleteBookingParams identifies the booking to delete.
type DeleteBookingParams struct {
	Principal Principal
	BookingID string
}

// AvailabilityQuery describes a slot to preview.
type AvailabilityQuery struct {
	RoomID    string
	EventDate string
	StartTime string
	EndTime   string
	// ExcludeBookingID skips the caller's own booking when previewing an edit.
	ExcludeBookingID string
}

// Availability is the result of a slot preview.
type Availability struct {
	Available bool
	Conflicts []persistence.Event
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Name     string
	Location string
	Capacity int
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// ResourceInput captures caller provided resource fields.
type ResourceInput struct {
	Name          string
	Description   string
	TotalQuantity int
}

// CreateResourceParams wraps the data required to create a resource.
type CreateResourceParams struct {
	Principal Principal
	Input     ResourceInput
}

// SetAvailabilityParams toggles a room's or resource's availability flag.
type SetAvailabilityParams struct {
	Principal Principal
	ID        string
	Available bool
}

// UpdateQuantityParams sets a resource's total quantity.
type UpdateQuantityParams struct {
	Principal     Principal
	ResourceID    string
	TotalQuantity int
}

func toLines(in []ResourceLineInput) []persistence.ResourceLine {
	if len(in) == 0 {
		return nil
	}
	out := make([]persistence.ResourceLine, len(in))
	for i, line := range in {
		out[i] = persistence.ResourceLine{ResourceID: line.ResourceID, Quantity: line.Quantity}
	}
	return out
}

func fromLines(in []persistence.ResourceLine) []ResourceLineInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]ResourceLineInput, len(in))
	for i, line := range in {
		out[i] = ResourceLineInput{ResourceID: line.ResourceID, Quantity: line.Quantity}
	}
	return out
}
