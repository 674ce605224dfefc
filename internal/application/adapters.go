package application

import (
	"context"
	"errors"

	"github.com/example/room-booking/internal/ledger"
	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/scheduler"
)

// eventFinder exposes persisted events to the conflict oracle and remembers
// the full records so conflicts can be reported with every field.
type eventFinder struct {
	events persistence.EventRepository
	seen   map[string]persistence.Event
}

func newEventFinder(events persistence.EventRepository) *eventFinder {
	return &eventFinder{events: events, seen: make(map[string]persistence.Event)}
}

func (f *eventFinder) FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) ([]scheduler.Booking, error) {
	events, err := f.events.FindActiveEventsByRoomAndDate(ctx, roomID, date, excludeID)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.Booking, len(events))
	for i, e := range events {
		f.seen[e.ID] = e
		out[i] = toSchedulerBooking(e)
	}
	return out, nil
}

func toSchedulerBooking(e persistence.Event) scheduler.Booking {
	return scheduler.Booking{
		ID:          e.ID,
		Name:        e.Name,
		RoomID:      e.RoomID,
		Date:        e.EventDate,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Status:      string(e.Status),
		OrganizerID: e.OrganizerID,
	}
}

// ledgerStore adapts a resource repository to the ledger's storage contract.
type ledgerStore struct {
	resources persistence.ResourceRepository
}

func (s ledgerStore) GetResource(ctx context.Context, id string) (ledger.Resource, error) {
	res, err := s.resources.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ledger.Resource{}, &ledger.ResourceNotFoundError{ResourceID: id}
		}
		return ledger.Resource{}, err
	}
	return ledger.Resource{
		ID:          res.ID,
		Name:        res.Name,
		Total:       res.TotalQuantity,
		Available:   res.AvailableQuantity,
		IsAvailable: res.IsAvailable,
	}, nil
}

func (s ledgerStore) CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (bool, error) {
	return s.resources.CompareAndSwapAvailable(ctx, id, expected, next)
}

func toLedgerLines(lines []persistence.ResourceLine) []ledger.Line {
	out := make([]ledger.Line, len(lines))
	for i, line := range lines {
		out[i] = ledger.Line{ResourceID: line.ResourceID, Quantity: line.Quantity}
	}
	return out
}

// mapLedgerError translates ledger failures into the application taxonomy.
func mapLedgerError(err error) error {
	if err == nil {
		return nil
	}

	var (
		notFound     *ledger.ResourceNotFoundError
		unavailable  *ledger.ResourceUnavailableError
		insufficient *ledger.InsufficientQuantityError
	)
	switch {
	case errors.As(err, &notFound):
		return &NotFoundError{Entity: entityResource, ID: notFound.ResourceID}
	case errors.As(err, &unavailable):
		return &UnavailableError{Entity: entityResource, ID: unavailable.ResourceID, Name: unavailable.Name}
	case errors.As(err, &insufficient):
		return &InsufficientQuantityError{
			ResourceID: insufficient.ResourceID,
			Name:       insufficient.Name,
			Requested:  insufficient.Requested,
			Available:  insufficient.Available,
		}
	case errors.Is(err, ledger.ErrQuantityOutOfRange):
		return fieldError("resources", quantityTooLargeMessage)
	case errors.Is(err, ledger.ErrInvariantViolation):
		return err
	case errors.Is(err, ledger.ErrConcurrentUpdate):
		return retryable(err)
	}
	return mapStorageError(err)
}

// mapStorageError marks contention errors as retryable.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrBusy) {
		return retryable(err)
	}
	return err
}
