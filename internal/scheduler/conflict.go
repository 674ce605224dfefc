package scheduler

import (
	"context"
	"fmt"
)

// Booking is the view of an existing event the conflict oracle reasons about.
type Booking struct {
	ID          string
	Name        string
	RoomID      string
	Date        string
	StartTime   string
	EndTime     string
	Status      string
	OrganizerID string
}

// Slot is the (room, date, time-window) tuple contended for exclusivity.
type Slot struct {
	RoomID    string
	Date      string
	StartTime string
	EndTime   string
}

// inactiveStatuses never hold a slot regardless of what storage reports.
var inactiveStatuses = map[string]struct{}{
	"cancelled": {},
	"rejected":  {},
}

// EventFinder returns the events currently holding slots in a room on a date,
// in storage arrival order.
type EventFinder interface {
	FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) ([]Booking, error)
}

// Oracle answers which existing bookings collide with a proposed slot.
type Oracle struct {
	finder EventFinder
}

// NewOracle constructs an Oracle over the given finder.
func NewOracle(finder EventFinder) *Oracle {
	return &Oracle{finder: finder}
}

// FindConflicts returns active bookings overlapping slot, excluding excludeID.
func (o *Oracle) FindConflicts(ctx context.Context, slot Slot, excludeID string) ([]Booking, error) {
	window, err := ParseWindow(slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, err
	}

	candidates, err := o.finder.FindActiveEventsByRoomAndDate(ctx, slot.RoomID, slot.Date, excludeID)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load candidates: %w", err)
	}

	return filterOverlapping(candidates, slot, window, excludeID), nil
}

// FilterConflicts applies the room, date, status and overlap rules to candidates.
func FilterConflicts(candidates []Booking, slot Slot, excludeID string) ([]Booking, error) {
	window, err := ParseWindow(slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, err
	}
	return filterOverlapping(candidates, slot, window, excludeID), nil
}

func filterOverlapping(candidates []Booking, slot Slot, window Window, excludeID string) []Booking {
	var conflicts []Booking
	for _, candidate := range candidates {
		if candidate.RoomID != slot.RoomID || candidate.Date != slot.Date {
			continue
		}
		if excludeID != "" && candidate.ID == excludeID {
			continue
		}
		if _, inactive := inactiveStatuses[candidate.Status]; inactive {
			continue
		}

		existing, err := ParseWindow(candidate.StartTime, candidate.EndTime)
		if err != nil {
			// Stored rows were validated on write; a malformed one cannot claim a slot.
			continue
		}
		if window.Overlaps(existing) {
			conflicts = append(conflicts, candidate)
		}
	}
	return conflicts
}
