package persistence

import (
	"sort"
	"strings"
)

const (
	// DefaultListLimit applies when EventFilter.Limit is zero.
	DefaultListLimit = 100
	// MaxListLimit caps EventFilter.Limit.
	MaxListLimit = 500
)

// EffectiveLimit returns the row cap to apply for the filter.
func (f EventFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Matches reports whether the event satisfies every set field of the filter.
func (f EventFilter) Matches(e Event) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.RoomID != "" && e.RoomID != f.RoomID {
		return false
	}
	if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
		return false
	}
	if f.FromDate != "" && e.EventDate < f.FromDate {
		return false
	}
	if f.ToDate != "" && e.EventDate > f.ToDate {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Name), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			return false
		}
	}
	return true
}

// RoomFilter narrows a room listing. Zero fields match every room.
type RoomFilter struct {
	OnlyAvailable bool
	MinCapacity   int
	Search        string
}

// Matches reports whether the room satisfies every set field of the filter.
// Search is a case-insensitive substring match on name or location.
func (f RoomFilter) Matches(r Room) bool {
	if f.OnlyAvailable && !r.IsAvailable {
		return false
	}
	if r.Capacity < f.MinCapacity {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Name), needle) &&
			!strings.Contains(strings.ToLower(r.Location), needle) {
			return false
		}
	}
	return true
}

// SortEvents orders events by date, start time, then id.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.EventDate != b.EventDate {
			return a.EventDate < b.EventDate
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

// CloneLines returns a copy of lines that does not alias the input.
func CloneLines(lines []ResourceLine) []ResourceLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]ResourceLine, len(lines))
	copy(out, lines)
	return out
}
