package application

import (
	"fmt"
	"strings"

	"github.com/example/room-booking/internal/ledger"
	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/scheduler"
)

// quantityTooLargeMessage reports values above ledger.MaxQuantity, the bound
// of the 32-bit storage columns.
const quantityTooLargeMessage = "quantity is too large"

// validateBookingInput checks a booking without touching storage.
func validateBookingInput(input BookingInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if strings.TrimSpace(input.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	if strings.TrimSpace(input.OrganizerID) == "" {
		vErr.add("organizer_id", "organizer is required")
	}
	vErr.merge(validateSlot(input.EventDate, input.StartTime, input.EndTime))

	if input.Attendees < 0 {
		vErr.add("attendees", "attendees cannot be negative")
	} else if input.Attendees > ledger.MaxQuantity {
		vErr.add("attendees", "attendees is too large")
	}
	perResource := make(map[string]int64, len(input.Resources))
	for i, line := range input.Resources {
		if strings.TrimSpace(line.ResourceID) == "" {
			vErr.add(fmt.Sprintf("resources[%d].resource_id", i), "resource is required")
		}
		switch {
		case line.Quantity < 1:
			vErr.add(fmt.Sprintf("resources[%d].quantity", i), "quantity must be at least 1")
		case line.Quantity > ledger.MaxQuantity:
			vErr.add(fmt.Sprintf("resources[%d].quantity", i), quantityTooLargeMessage)
		default:
			perResource[line.ResourceID] += int64(line.Quantity)
		}
	}
	for _, total := range perResource {
		if total > ledger.MaxQuantity {
			vErr.add("resources", quantityTooLargeMessage)
			break
		}
	}

	return vErr
}

func validateSlot(date, start, end string) *ValidationError {
	vErr := &ValidationError{}

	if _, err := scheduler.ParseDate(date); err != nil {
		vErr.add("event_date", "event date must be YYYY-MM-DD")
	}
	_, startErr := scheduler.ToMinutes(start)
	if startErr != nil {
		vErr.add("start_time", "start time must be HH:MM")
	}
	_, endErr := scheduler.ToMinutes(end)
	if endErr != nil {
		vErr.add("end_time", "end time must be HH:MM")
	}
	if startErr == nil && endErr == nil {
		if _, err := scheduler.ParseWindow(start, end); err != nil {
			vErr.add("end_time", "end time must be after start time")
		}
	}

	return vErr
}

func validateFilter(filter persistence.EventFilter) *ValidationError {
	vErr := &ValidationError{}

	if filter.Status != "" && !filter.Status.Valid() {
		vErr.add("status", "unknown status")
	}
	if filter.FromDate != "" && !isDate(filter.FromDate) {
		vErr.add("from_date", "from date must be YYYY-MM-DD")
	}
	if filter.ToDate != "" && !isDate(filter.ToDate) {
		vErr.add("to_date", "to date must be YYYY-MM-DD")
	}
	if filter.Limit < 0 {
		vErr.add("limit", "limit cannot be negative")
	}

	return vErr
}

func validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	} else if input.Capacity > ledger.MaxQuantity {
		vErr.add("capacity", "capacity is too large")
	}

	return vErr
}

func validateResourceInput(input ResourceInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.TotalQuantity < 0 {
		vErr.add("total_quantity", "total quantity cannot be negative")
	} else if input.TotalQuantity > ledger.MaxQuantity {
		vErr.add("total_quantity", quantityTooLargeMessage)
	}

	return vErr
}

func isDate(value string) bool {
	_, err := scheduler.ParseDate(value)
	return err == nil
}
