package application

import (
	"fmt"

	"github.com/example/room-booking/internal/persistence"
)

// ReservationPolicy decides which booking statuses hold their room slot and
// resource quantities.
type ReservationPolicy string

const (
	// ReserveOnCreate holds claims for pending and approved bookings.
	ReserveOnCreate ReservationPolicy = "on_create"
	// ReserveOnApproval holds claims for approved bookings only.
	ReserveOnApproval ReservationPolicy = "on_approval"
)

// ParseReservationPolicy accepts the configuration spelling of a policy.
// The empty string selects ReserveOnCreate.
func ParseReservationPolicy(value string) (ReservationPolicy, error) {
	switch ReservationPolicy(value) {
	case "", ReserveOnCreate:
		return ReserveOnCreate, nil
	case ReserveOnApproval:
		return ReserveOnApproval, nil
	}
	return "", fmt.Errorf("unknown reservation policy %q", value)
}

// HoldsClaims reports whether a booking in status occupies its slot and keeps
// its resource lines debited.
func (p ReservationPolicy) HoldsClaims(status persistence.EventStatus) bool {
	switch status {
	case persistence.StatusApproved:
		return true
	case persistence.StatusPending:
		return p != ReserveOnApproval
	}
	return false
}
