package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTimeFormat is returned when a wall-clock value is not HH:MM.
	ErrInvalidTimeFormat = errors.New("scheduler: invalid time format")
	// ErrInvalidWindow is returned when a window ends at or before its start.
	ErrInvalidWindow = errors.New("scheduler: end time must be after start time")
	// ErrInvalidDate is returned when a calendar date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("scheduler: invalid date format")
)

// DateLayout is the calendar key format used for event dates.
const DateLayout = "2006-01-02"

// ToMinutes converts an HH:MM wall-clock value into minutes since midnight.
func ToMinutes(value string) (int, error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
	}

	hours, ok := twoDigits(value[0], value[1])
	if !ok || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
	}
	minutes, ok := twoDigits(value[3], value[4])
	if !ok || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
	}

	return hours*60 + minutes, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// Overlaps reports whether the half-open windows [startA, endA) and [startB, endB) intersect.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// Window is a parsed same-day time range expressed in minutes since midnight.
type Window struct {
	Start int
	End   int
}

// ParseWindow parses start and end values and rejects empty or inverted windows.
func ParseWindow(start, end string) (Window, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("%w: %s-%s", ErrInvalidWindow, start, end)
	}
	return Window{Start: s, End: e}, nil
}

// Overlaps reports whether two windows intersect.
func (w Window) Overlaps(other Window) bool {
	return Overlaps(w.Start, w.End, other.Start, other.End)
}

// ParseDate validates a YYYY-MM-DD calendar key.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return d, nil
}
