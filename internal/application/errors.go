package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrRoomUnavailable is returned when a room is administratively disabled.
	ErrRoomUnavailable = errors.New("application: room unavailable")
	// ErrResourceUnavailable is returned when a resource is administratively disabled.
	ErrResourceUnavailable = errors.New("application: resource unavailable")
	// ErrSchedulingConflict is returned when a slot overlaps an active booking.
	ErrSchedulingConflict = errors.New("application: scheduling conflict")
	// ErrInsufficientQuantity is returned when a reservation exceeds stock.
	ErrInsufficientQuantity = errors.New("application: insufficient quantity")
	// ErrInUse is returned when deleting a room or resource still referenced by bookings.
	ErrInUse = errors.New("application: in use")
	// ErrRetryable marks failures the caller may retry unchanged: lock
	// timeouts, lost compare-and-set races and busy storage.
	ErrRetryable = errors.New("application: retryable")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func fieldError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnavailableError reports a disabled room or resource.
type UnavailableError struct {
	Entity string
	ID     string
	Name   string
}

func (e *UnavailableError) Error() string {
	label := e.ID
	if e.Name != "" {
		label = e.Name
	}
	return fmt.Sprintf("%s %s is not available", e.Entity, label)
}

// Is matches ErrRoomUnavailable or ErrResourceUnavailable depending on Entity.
func (e *UnavailableError) Is(target error) bool {
	switch target {
	case ErrRoomUnavailable:
		return e.Entity == entityRoom
	case ErrResourceUnavailable:
		return e.Entity == entityResource
	}
	return false
}

// ConflictError describes the first booking that already holds the slot.
type ConflictError struct {
	BookingID   string
	Name        string
	RoomID      string
	Date        string
	StartTime   string
	EndTime     string
	OrganizerID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room is already booked from %s to %s on %s by %s",
		e.StartTime, e.EndTime, e.Date, e.OrganizerID)
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

// InsufficientQuantityError carries the requested and available amounts.
type InsufficientQuantityError struct {
	ResourceID string
	Name       string
	Requested  int
	Available  int
}

func (e *InsufficientQuantityError) Error() string {
	label := e.ResourceID
	if e.Name != "" {
		label = e.Name
	}
	return fmt.Sprintf("insufficient quantity for %s: requested %d, available %d", label, e.Requested, e.Available)
}

func (e *InsufficientQuantityError) Unwrap() error { return ErrInsufficientQuantity }

// InUseError reports a catalog entry that bookings still reference.
type InUseError struct {
	Entity         string
	ID             string
	ActiveBookings int
}

func (e *InUseError) Error() string {
	if e.ActiveBookings > 0 {
		return fmt.Sprintf("%s %s is referenced by %d active bookings", e.Entity, e.ID, e.ActiveBookings)
	}
	return fmt.Sprintf("%s %s is referenced by existing bookings", e.Entity, e.ID)
}

func (e *InUseError) Unwrap() error { return ErrInUse }

func retryable(err error) error {
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

const (
	entityRoom     = "room"
	entityResource = "resource"
	entityBooking  = "booking"
)
