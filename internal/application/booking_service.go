package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/room-booking/internal/ledger"
	"github.com/example/room-booking/internal/lock"
	"github.com/example/room-booking/internal/notify"
	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/scheduler"
	"github.com/example/room-booking/internal/telemetry"
)

// BookingService arbitrates booking requests. It is the only component that
// changes room occupancy and resource quantities.
//
// Each mutation takes the logical locks for every room, resource and booking
// it touches, performs all checks and writes in one storage transaction,
// releases the locks and only then publishes a notification.
type BookingService struct {
	store       persistence.Store
	locker      lock.Locker
	policy      ReservationPolicy
	publisher   notify.Publisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// BookingOption customises a BookingService.
type BookingOption func(*BookingService)

// WithReservationPolicy selects which statuses hold claims.
func WithReservationPolicy(policy ReservationPolicy) BookingOption {
	return func(s *BookingService) { s.policy = policy }
}

// WithPublisher sets the notification publisher.
func WithPublisher(publisher notify.Publisher) BookingOption {
	return func(s *BookingService) { s.publisher = publisher }
}

// WithIDGenerator overrides booking ID generation.
func WithIDGenerator(idGenerator func() string) BookingOption {
	return func(s *BookingService) { s.idGenerator = idGenerator }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) BookingOption {
	return func(s *BookingService) { s.logger = logger }
}

// NewBookingService wires the arbitrator over store and locker.
func NewBookingService(store persistence.Store, locker lock.Locker, opts ...BookingOption) *BookingService {
	s := &BookingService{
		store:       store,
		locker:      locker,
		policy:      ReserveOnCreate,
		publisher:   notify.Noop{},
		idGenerator: NewUUIDGenerator(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal(lock.DefaultTimeout)
	}
	s.logger = defaultLogger(s.logger)
	return s
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking validates, arbitrates and persists a new pending booking.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking persistence.Event, err error) {
	input := params.Input
	if input.OrganizerID == "" {
		input.OrganizerID = params.Principal.UserID
	}

	ctx, span := telemetry.StartSpan(ctx, "booking.create",
		attribute.String("room_id", input.RoomID), attribute.String("event_date", input.EventDate))
	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"room_id", input.RoomID,
		"event_date", input.EventDate,
	)
	defer func() {
		telemetry.EndSpan(span, err)
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create booking")
			return
		}
		logger.With("booking_id", booking.ID, "claims_held", booking.ClaimsHeld).InfoContext(ctx, "booking created")
	}()

	if input.OrganizerID != params.Principal.UserID && !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validateBookingInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	booking = persistence.Event{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		RoomID:      input.RoomID,
		EventDate:   input.EventDate,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Status:      persistence.StatusPending,
		Resources:   toLines(input.Resources),
		OrganizerID: input.OrganizerID,
		Attendees:   input.Attendees,
		ClaimsHeld:  s.policy.HoldsClaims(persistence.StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.withLocks(ctx, lockKeys(booking, persistence.Event{}), func(ctx context.Context, tx persistence.Tx) error {
		room, err := s.checkRoom(ctx, tx, booking.RoomID, true)
		if err != nil {
			return err
		}
		if err := checkCapacity(room, booking.Attendees); err != nil {
			return err
		}
		if err := s.checkSlot(ctx, tx, booking, ""); err != nil {
			return err
		}
		if booking.ClaimsHeld {
			if err := ledger.New(ledgerStore{tx}).Reserve(ctx, toLedgerLines(booking.Resources)); err != nil {
				return mapLedgerError(err)
			}
		} else if err := checkResourcesExist(ctx, tx, booking.Resources); err != nil {
			return err
		}
		return mapStorageError(tx.SaveEvent(ctx, booking))
	})
	if err != nil {
		booking = persistence.Event{}
		return
	}

	s.publish(ctx, logger, notify.BookingCreated, booking)
	return
}

// UpdateBooking applies a partial change. Slot and resource changes are
// arbitrated like a new booking, excluding the booking itself; status changes
// acquire or release claims as the reservation policy dictates.
func (s *BookingService) UpdateBooking(ctx context.Context, params UpdateBookingParams) (booking persistence.Event, err error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.update", attribute.String("booking_id", params.BookingID))
	logger := s.loggerWith(ctx, "UpdateBooking",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
	)
	defer func() {
		telemetry.EndSpan(span, err)
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update booking")
			return
		}
		logger.With("status", booking.Status, "claims_held", booking.ClaimsHeld).InfoContext(ctx, "booking updated")
	}()

	var existing persistence.Event
	existing, err = s.getBooking(ctx, s.store, params.BookingID)
	if err != nil {
		return
	}
	if !params.Principal.canManage(existing.OrganizerID) {
		err = ErrUnauthorized
		return
	}

	next, vErr := applyPatch(existing, params.Patch)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if statusChangeRequiresAdmin(existing.Status, next.Status) && !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	next.ClaimsHeld = s.policy.HoldsClaims(next.Status)
	next.UpdatedAt = s.now()

	err = s.withLocks(ctx, lockKeys(next, existing), func(ctx context.Context, tx persistence.Tx) error {
		current, err := s.getBooking(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		if !unchanged(current, existing) {
			return retryable(fmt.Errorf("booking %s changed while waiting for locks", existing.ID))
		}
		return s.rearbitrate(ctx, tx, current, next)
	})
	if err != nil {
		booking = persistence.Event{}
		return
	}

	booking = next
	kind := notify.BookingUpdated
	if existing.Status != next.Status && (next.Status == persistence.StatusCancelled || next.Status == persistence.StatusRejected) {
		kind = notify.BookingCancelled
	}
	s.publish(ctx, logger, kind, booking)
	return
}

// rearbitrate moves current to next inside tx.
func (s *BookingService) rearbitrate(ctx context.Context, tx persistence.Tx, current, next persistence.Event) error {
	slotChanged := current.RoomID != next.RoomID || current.EventDate != next.EventDate ||
		current.StartTime != next.StartTime || current.EndTime != next.EndTime

	if next.ClaimsHeld {
		acquiring := !current.ClaimsHeld
		room, err := s.checkRoom(ctx, tx, next.RoomID, acquiring || current.RoomID != next.RoomID)
		if err != nil {
			return err
		}
		if err := checkCapacity(room, next.Attendees); err != nil {
			return err
		}
		if acquiring || slotChanged {
			if err := s.checkSlot(ctx, tx, next, next.ID); err != nil {
				return err
			}
		}
	} else if current.RoomID != next.RoomID {
		if _, err := s.checkRoom(ctx, tx, next.RoomID, false); err != nil {
			return err
		}
	}

	var held, wanted []persistence.ResourceLine
	if current.ClaimsHeld {
		held = current.Resources
	}
	if next.ClaimsHeld {
		wanted = next.Resources
	}
	deltas, err := ledger.NetDeltas(toLedgerLines(held), toLedgerLines(wanted))
	if err != nil {
		return mapLedgerError(err)
	}
	if err := ledger.New(ledgerStore{tx}).Apply(ctx, deltas); err != nil {
		return mapLedgerError(err)
	}
	if !next.ClaimsHeld {
		if err := checkResourcesExist(ctx, tx, next.Resources); err != nil {
			return err
		}
	}

	return mapStorageError(tx.SaveEvent(ctx, next))
}

// DeleteBooking removes a booking and releases whatever it still holds.
func (s *BookingService) DeleteBooking(ctx context.Context, params DeleteBookingParams) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.delete", attribute.String("booking_id", params.BookingID))
	logger := s.loggerWith(ctx, "DeleteBooking",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
	)
	defer func() {
		telemetry.EndSpan(span, err)
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete booking")
			return
		}
		logger.InfoContext(ctx, "booking deleted")
	}()

	var existing persistence.Event
	existing, err = s.getBooking(ctx, s.store, params.BookingID)
	if err != nil {
		return
	}
	if !params.Principal.canManage(existing.OrganizerID) {
		err = ErrUnauthorized
		return
	}

	err = s.withLocks(ctx, lockKeys(existing, persistence.Event{}), func(ctx context.Context, tx persistence.Tx) error {
		current, err := s.getBooking(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		if !unchanged(current, existing) {
			return retryable(fmt.Errorf("booking %s changed while waiting for locks", existing.ID))
		}
		if current.ClaimsHeld {
			if err := ledger.New(ledgerStore{tx}).Release(ctx, toLedgerLines(current.Resources)); err != nil {
				return mapLedgerError(err)
			}
		}
		if err := tx.DeleteEvent(ctx, current.ID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return &NotFoundError{Entity: entityBooking, ID: current.ID}
			}
			return mapStorageError(err)
		}
		existing = current
		return nil
	})
	if err != nil {
		return
	}

	s.publish(ctx, logger, notify.BookingDeleted, existing)
	return
}

// GetBooking returns a single booking.
func (s *BookingService) GetBooking(ctx context.Context, id string) (persistence.Event, error) {
	return s.getBooking(ctx, s.store, id)
}

// ListBookings returns bookings matching filter ordered by date and start time.
func (s *BookingService) ListBookings(ctx context.Context, filter persistence.EventFilter) (bookings []persistence.Event, err error) {
	logger := s.loggerWith(ctx, "ListBookings")
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to list bookings")
			return
		}
		logger.With("result_count", len(bookings)).DebugContext(ctx, "bookings listed")
	}()

	if vErr := validateFilter(filter); vErr.HasErrors() {
		err = vErr
		return
	}
	bookings, err = s.store.ListEvents(ctx, filter)
	if err != nil {
		err = mapStorageError(err)
		return
	}
	persistence.SortEvents(bookings)
	return
}

// CheckAvailability previews a slot without reserving it. It uses the same
// conflict rules as CreateBooking and UpdateBooking.
func (s *BookingService) CheckAvailability(ctx context.Context, query AvailabilityQuery) (result Availability, err error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.check_availability", attribute.String("room_id", query.RoomID))
	defer func() { telemetry.EndSpan(span, err) }()

	vErr := validateSlot(query.EventDate, query.StartTime, query.EndTime)
	if strings.TrimSpace(query.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, err = s.checkRoom(ctx, s.store, query.RoomID, false); err != nil {
		return
	}

	finder := newEventFinder(s.store)
	var conflicts []scheduler.Booking
	conflicts, err = scheduler.NewOracle(finder).FindConflicts(ctx, scheduler.Slot{
		RoomID:    query.RoomID,
		Date:      query.EventDate,
		StartTime: query.StartTime,
		EndTime:   query.EndTime,
	}, query.ExcludeBookingID)
	if err != nil {
		err = mapStorageError(err)
		return
	}

	result.Available = len(conflicts) == 0
	for _, c := range conflicts {
		result.Conflicts = append(result.Conflicts, finder.seen[c.ID])
	}
	return
}

// withLocks runs fn in a transaction while holding keys. Locks are released
// before withLocks returns.
func (s *BookingService) withLocks(ctx context.Context, keys []string, fn func(ctx context.Context, tx persistence.Tx) error) error {
	unlock, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return retryable(err)
		}
		return err
	}
	defer unlock()

	return s.store.WithinTx(ctx, fn)
}

func (s *BookingService) getBooking(ctx context.Context, events persistence.EventRepository, id string) (persistence.Event, error) {
	if strings.TrimSpace(id) == "" {
		return persistence.Event{}, &NotFoundError{Entity: entityBooking, ID: id}
	}
	event, err := events.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Event{}, &NotFoundError{Entity: entityBooking, ID: id}
		}
		return persistence.Event{}, mapStorageError(err)
	}
	return event, nil
}

// checkRoom loads the room and, when requireAvailable is set, rejects
// disabled rooms.
func (s *BookingService) checkRoom(ctx context.Context, rooms persistence.RoomRepository, id string, requireAvailable bool) (persistence.Room, error) {
	room, err := rooms.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Room{}, &NotFoundError{Entity: entityRoom, ID: id}
		}
		return persistence.Room{}, mapStorageError(err)
	}
	if requireAvailable && !room.IsAvailable {
		return persistence.Room{}, &UnavailableError{Entity: entityRoom, ID: room.ID, Name: room.Name}
	}
	return room, nil
}

// checkSlot reports the first active booking overlapping event's slot.
func (s *BookingService) checkSlot(ctx context.Context, events persistence.EventRepository, event persistence.Event, excludeID string) error {
	conflicts, err := scheduler.NewOracle(newEventFinder(events)).FindConflicts(ctx, scheduler.Slot{
		RoomID:    event.RoomID,
		Date:      event.EventDate,
		StartTime: event.StartTime,
		EndTime:   event.EndTime,
	}, excludeID)
	if err != nil {
		return mapStorageError(err)
	}
	if len(conflicts) == 0 {
		return nil
	}
	first := conflicts[0]
	return &ConflictError{
		BookingID:   first.ID,
		Name:        first.Name,
		RoomID:      first.RoomID,
		Date:        first.Date,
		StartTime:   first.StartTime,
		EndTime:     first.EndTime,
		OrganizerID: first.OrganizerID,
	}
}

// checkResourcesExist verifies lines that are stored without being reserved.
func checkResourcesExist(ctx context.Context, resources persistence.ResourceRepository, lines []persistence.ResourceLine) error {
	for _, line := range lines {
		if _, err := resources.GetResource(ctx, line.ResourceID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return &NotFoundError{Entity: entityResource, ID: line.ResourceID}
			}
			return mapStorageError(err)
		}
	}
	return nil
}

func checkCapacity(room persistence.Room, attendees int) error {
	if attendees > room.Capacity {
		return fieldError("attendees", fmt.Sprintf("attendees exceed room capacity of %d", room.Capacity))
	}
	return nil
}

func (s *BookingService) publish(ctx context.Context, logger *slog.Logger, kind notify.Type, event persistence.Event) {
	n := notify.Notification{
		ID:          s.idGenerator(),
		Type:        kind,
		BookingID:   event.ID,
		RoomID:      event.RoomID,
		EventDate:   event.EventDate,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		Status:      string(event.Status),
		OrganizerID: event.OrganizerID,
		OccurredAt:  s.now(),
	}
	for _, line := range event.Resources {
		n.Resources = append(n.Resources, notify.Line{ResourceID: line.ResourceID, Quantity: line.Quantity})
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		logger.WarnContext(ctx, "failed to publish booking notification", "type", kind, "error", err)
	}
}

// applyPatch merges patch onto existing and validates the result.
func applyPatch(existing persistence.Event, patch BookingPatch) (persistence.Event, *ValidationError) {
	next := existing
	next.Resources = persistence.CloneLines(existing.Resources)

	input := BookingInput{
		Name:        existing.Name,
		Description: existing.Description,
		RoomID:      existing.RoomID,
		EventDate:   existing.EventDate,
		StartTime:   existing.StartTime,
		EndTime:     existing.EndTime,
		Resources:   fromLines(existing.Resources),
		OrganizerID: existing.OrganizerID,
		Attendees:   existing.Attendees,
	}
	if patch.Name != nil {
		input.Name = *patch.Name
	}
	if patch.Description != nil {
		input.Description = *patch.Description
	}
	if patch.RoomID != nil {
		input.RoomID = *patch.RoomID
	}
	if patch.EventDate != nil {
		input.EventDate = *patch.EventDate
	}
	if patch.StartTime != nil {
		input.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		input.EndTime = *patch.EndTime
	}
	if patch.Resources != nil {
		input.Resources = *patch.Resources
	}
	if patch.Attendees != nil {
		input.Attendees = *patch.Attendees
	}

	vErr := validateBookingInput(input)
	if patch.Status != nil {
		if !patch.Status.Valid() {
			vErr.add("status", "unknown status")
		} else {
			next.Status = *patch.Status
		}
	}
	if vErr.HasErrors() {
		return persistence.Event{}, vErr
	}

	next.Name = strings.TrimSpace(input.Name)
	next.Description = input.Description
	next.RoomID = input.RoomID
	next.EventDate = input.EventDate
	next.StartTime = input.StartTime
	next.EndTime = input.EndTime
	next.Resources = toLines(input.Resources)
	next.Attendees = input.Attendees
	return next, vErr
}

// statusChangeRequiresAdmin reports whether moving from -> to is an approval
// decision. Organizers may cancel their own bookings but not approve or reject them.
func statusChangeRequiresAdmin(from, to persistence.EventStatus) bool {
	if from == to {
		return false
	}
	return to == persistence.StatusApproved || to == persistence.StatusRejected
}

// unchanged reports whether b is still the version of the booking a was read
// as. Locks were chosen from a, so any drift means they may not cover b.
func unchanged(a, b persistence.Event) bool {
	return a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.Status == b.Status &&
		a.ClaimsHeld == b.ClaimsHeld &&
		a.RoomID == b.RoomID &&
		slices.Equal(a.Resources, b.Resources)
}

// lockKeys returns the room, resource and booking keys touched by moving from
// prior to next. prior may be the zero Event.
func lockKeys(next, prior persistence.Event) []string {
	keys := []string{lock.RoomKey(next.RoomID)}
	if prior.ID != "" {
		keys = append(keys, lock.EventKey(prior.ID), lock.RoomKey(prior.RoomID))
	} else if next.ID != "" {
		keys = append(keys, lock.EventKey(next.ID))
	}
	for _, line := range next.Resources {
		keys = append(keys, lock.ResourceKey(line.ResourceID))
	}
	for _, line := range prior.Resources {
		keys = append(keys, lock.ResourceKey(line.ResourceID))
	}
	return keys
}
