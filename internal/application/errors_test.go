package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/room-booking/internal/ledger"
	"github.com/example/room-booking/internal/lock"
	"github.com/example/room-booking/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_AddKeepsFirstMessage(t *testing.T) {
	t.Parallel()

	v := &ValidationError{}
	v.add("end_time", "end time must be HH:MM")
	v.add("end_time", "end time must be after start time")
	if got := v.FieldErrors["end_time"]; got != "end time must be HH:MM" {
		t.Fatalf("expected first message to win, got %q", got)
	}

	v.merge(fieldError("name", "name is required"))
	v.merge(nil)
	if len(v.FieldErrors) != 2 {
		t.Fatalf("expected two fields after merge, got %v", v.FieldErrors)
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		target error
		kind   string
	}{
		{"not found", &NotFoundError{Entity: entityBooking, ID: "b1"}, ErrNotFound, "not_found"},
		{"room unavailable", &UnavailableError{Entity: entityRoom, ID: "r1"}, ErrRoomUnavailable, "room_unavailable"},
		{"resource unavailable", &UnavailableError{Entity: entityResource, ID: "x1"}, ErrResourceUnavailable, "resource_unavailable"},
		{"conflict", &ConflictError{BookingID: "b0"}, ErrSchedulingConflict, "scheduling_conflict"},
		{"insufficient", &InsufficientQuantityError{ResourceID: "x1", Requested: 3, Available: 2}, ErrInsufficientQuantity, "insufficient_quantity"},
		{"in use", &InUseError{Entity: entityRoom, ID: "r1"}, ErrInUse, "in_use"},
		{"retryable", retryable(errors.New("busy")), ErrRetryable, "retryable"},
		{"wrapped unauthorized", fmt.Errorf("update: %w", ErrUnauthorized), ErrUnauthorized, "unauthorized"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.target) {
				t.Fatalf("expected %v to match %v", tc.err, tc.target)
			}
			if got := ErrorKind(tc.err); got != tc.kind {
				t.Fatalf("expected kind %q, got %q", tc.kind, got)
			}
		})
	}

	if errors.Is(&UnavailableError{Entity: entityRoom}, ErrResourceUnavailable) {
		t.Fatalf("room unavailability must not match the resource sentinel")
	}
	if got := ErrorKind(errors.New("boom")); got != "unexpected" {
		t.Fatalf("expected unexpected kind, got %q", got)
	}
}

func TestMapLedgerError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		in     error
		target error
	}{
		{"missing resource", &ledger.ResourceNotFoundError{ResourceID: "x"}, ErrNotFound},
		{"disabled resource", &ledger.ResourceUnavailableError{ResourceID: "x"}, ErrResourceUnavailable},
		{"short stock", &ledger.InsufficientQuantityError{ResourceID: "x", Requested: 2, Available: 1}, ErrInsufficientQuantity},
		{"lost race", fmt.Errorf("%w: resource x", ledger.ErrConcurrentUpdate), ErrRetryable},
		{"busy storage", fmt.Errorf("ledger: load resource x: %w", persistence.ErrBusy), ErrRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapLedgerError(tc.in); !errors.Is(got, tc.target) {
				t.Fatalf("expected %v to map onto %v, got %v", tc.in, tc.target, got)
			}
		})
	}

	invariant := &ledger.InvariantError{ResourceID: "x", Available: 6, Total: 5}
	if got := mapLedgerError(invariant); ErrorKind(got) != "unexpected" {
		t.Fatalf("invariant violations must stay unexpected, got kind %q", ErrorKind(got))
	}
	if mapLedgerError(nil) != nil {
		t.Fatalf("expected nil to map to nil")
	}
}

func TestLockTimeoutKind(t *testing.T) {
	t.Parallel()

	err := retryable(&lock.TimeoutError{Key: lock.RoomKey("r1")})
	if !errors.Is(err, lock.ErrLockTimeout) || ErrorKind(err) != "retryable" {
		t.Fatalf("expected a retryable lock timeout, got %v", err)
	}
}
