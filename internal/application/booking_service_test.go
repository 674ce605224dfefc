package application_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/lock"
	"github.com/example/room-booking/internal/notify"
	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/persistence/memory"
	"github.com/example/room-booking/internal/testfixtures"
)

var (
	alice = application.Principal{UserID: "alice"}
	bob   = application.Principal{UserID: "bob"}
	admin = application.Principal{UserID: "admin", IsAdmin: true}
)

type harness struct {
	store     persistence.Store
	bookings  *application.BookingService
	publisher *notify.Recorder
	clock     *testfixtures.Clock
}

type backend struct {
	name string
	open func(t *testing.T) persistence.Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(*testing.T) persistence.Store { return memory.New() }},
		{name: "sqlite", open: func(t *testing.T) persistence.Store { return testfixtures.NewSQLiteStore(t) }},
	}
}

func newHarness(t *testing.T, store persistence.Store, opts ...application.BookingOption) *harness {
	t.Helper()

	h := &harness{
		store:     store,
		publisher: &notify.Recorder{},
		clock:     testfixtures.NewClock(),
	}
	ids := testfixtures.NewIDGenerator("booking")
	base := []application.BookingOption{
		application.WithPublisher(h.publisher),
		application.WithIDGenerator(ids.Next),
		application.WithClock(h.clock.Now),
	}
	h.bookings = application.NewBookingService(store, lock.NewLocal(time.Second), append(base, opts...)...)
	return h
}

func (h *harness) seedRoom(t *testing.T, opts ...testfixtures.RoomOption) persistence.Room {
	t.Helper()
	room := testfixtures.NewRoom(opts...)
	require.NoError(t, h.store.CreateRoom(context.Background(), room))
	return room
}

func (h *harness) seedResource(t *testing.T, opts ...testfixtures.ResourceOption) persistence.Resource {
	t.Helper()
	res := testfixtures.NewResource(opts...)
	require.NoError(t, h.store.CreateResource(context.Background(), res))
	return res
}

func (h *harness) available(t *testing.T, id string) int {
	t.Helper()
	res, err := h.store.GetResource(context.Background(), id)
	require.NoError(t, err)
	return res.AvailableQuantity
}

func (h *harness) create(t *testing.T, principal application.Principal, input application.BookingInput) (persistence.Event, error) {
	t.Helper()
	h.clock.Advance(time.Second)
	return h.bookings.CreateBooking(context.Background(), application.CreateBookingParams{Principal: principal, Input: input})
}

func (h *harness) update(t *testing.T, principal application.Principal, id string, patch application.BookingPatch) (persistence.Event, error) {
	t.Helper()
	h.clock.Advance(time.Second)
	return h.bookings.UpdateBooking(context.Background(), application.UpdateBookingParams{Principal: principal, BookingID: id, Patch: patch})
}

func slot(roomID, start, end string, lines ...application.ResourceLineInput) application.BookingInput {
	return application.BookingInput{
		Name:      "Planning",
		RoomID:    roomID,
		EventDate: testfixtures.ReferenceDate,
		StartTime: start,
		EndTime:   end,
		Resources: lines,
	}
}

func units(resourceID string, quantity int) application.ResourceLineInput {
	return application.ResourceLineInput{ResourceID: resourceID, Quantity: quantity}
}

func ptr[T any](v T) *T { return &v }

func TestBookingScenarios(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.open(t))
			ctx := context.Background()
			room := h.seedRoom(t)
			projector := h.seedResource(t, testfixtures.WithResourceQuantity(5, 5))

			// Scenario 1: an empty room accepts a booking.
			a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
			require.NoError(t, err)
			assert.Equal(t, persistence.StatusPending, a.Status)
			assert.True(t, a.ClaimsHeld)
			assert.Equal(t, "alice", a.OrganizerID)

			// Scenario 2: an overlapping request reports the holder.
			_, err = h.create(t, bob, slot(room.ID, "10:30", "11:30"))
			require.ErrorIs(t, err, application.ErrSchedulingConflict)
			var conflict *application.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, a.ID, conflict.BookingID)
			assert.Equal(t, "10:00", conflict.StartTime)
			assert.Equal(t, "11:00", conflict.EndTime)
			assert.Equal(t, "room is already booked from 10:00 to 11:00 on 2024-06-01 by alice", conflict.Error())

			// Scenario 3: back-to-back bookings do not overlap.
			c, err := h.create(t, bob, slot(room.ID, "11:00", "12:00"))
			require.NoError(t, err)

			// Scenario 4: reservations debit quantities and reject overdraws.
			other := h.seedRoom(t)
			d, err := h.create(t, alice, slot(other.ID, "09:00", "10:00", units(projector.ID, 3)))
			require.NoError(t, err)
			assert.Equal(t, 2, h.available(t, projector.ID))

			_, err = h.create(t, bob, slot(other.ID, "13:00", "14:00", units(projector.ID, 3)))
			require.ErrorIs(t, err, application.ErrInsufficientQuantity)
			var short *application.InsufficientQuantityError
			require.ErrorAs(t, err, &short)
			assert.Equal(t, 3, short.Requested)
			assert.Equal(t, 2, short.Available)
			assert.Equal(t, 2, h.available(t, projector.ID))

			// Scenario 5: deleting a booking returns its units.
			require.NoError(t, h.bookings.DeleteBooking(ctx, application.DeleteBookingParams{Principal: alice, BookingID: d.ID}))
			assert.Equal(t, 5, h.available(t, projector.ID))

			// Scenario 6: adding lines to an existing booking keeps its slot.
			edited, err := h.update(t, alice, a.ID, application.BookingPatch{
				Resources: &[]application.ResourceLineInput{units(projector.ID, 2)},
			})
			require.NoError(t, err)
			assert.Equal(t, 3, h.available(t, projector.ID))
			assert.Equal(t, "10:00", edited.StartTime)
			assert.Len(t, edited.Resources, 1)

			_, err = h.create(t, bob, slot(room.ID, "10:15", "10:45"))
			require.ErrorIs(t, err, application.ErrSchedulingConflict)

			stored, err := h.bookings.GetBooking(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "11:00", stored.StartTime)
		})
	}
}

func TestCreateBookingChecks(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.open(t))
			ctx := context.Background()
			room := h.seedRoom(t, testfixtures.WithRoomCapacity(4))
			res := h.seedResource(t, testfixtures.WithResourceQuantity(5, 5))

			t.Run("validation runs before storage", func(t *testing.T) {
				_, err := h.create(t, alice, slot(room.ID, "11:00", "10:00"))
				var vErr *application.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.FieldErrors, "end_time")

				_, err = h.create(t, alice, application.BookingInput{RoomID: room.ID, EventDate: "2024-13-01", StartTime: "9:00", EndTime: "10:00"})
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.FieldErrors, "name")
				assert.Contains(t, vErr.FieldErrors, "event_date")
				assert.Contains(t, vErr.FieldErrors, "start_time")

				_, err = h.create(t, alice, slot(room.ID, "10:00", "11:00", units(res.ID, 0)))
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.FieldErrors, "resources[0].quantity")
			})

			t.Run("unknown room", func(t *testing.T) {
				_, err := h.create(t, alice, slot("missing-room", "10:00", "11:00"))
				require.ErrorIs(t, err, application.ErrNotFound)
				var nf *application.NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, "room", nf.Entity)
			})

			t.Run("attendees above capacity", func(t *testing.T) {
				input := slot(room.ID, "10:00", "11:00")
				input.Attendees = 5
				_, err := h.create(t, alice, input)
				var vErr *application.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.FieldErrors, "attendees")
			})

			t.Run("unknown resource", func(t *testing.T) {
				_, err := h.create(t, alice, slot(room.ID, "10:00", "11:00", units("missing-resource", 1)))
				require.ErrorIs(t, err, application.ErrNotFound)
			})

			t.Run("conflict leaves the ledger untouched", func(t *testing.T) {
				_, err := h.create(t, alice, slot(room.ID, "15:00", "16:00"))
				require.NoError(t, err)

				_, err = h.create(t, bob, slot(room.ID, "15:30", "16:30", units(res.ID, 4)))
				require.ErrorIs(t, err, application.ErrSchedulingConflict)
				assert.Equal(t, 5, h.available(t, res.ID))
			})

			t.Run("only administrators book for others", func(t *testing.T) {
				input := slot(room.ID, "08:00", "09:00")
				input.OrganizerID = "carol"
				_, err := h.create(t, alice, input)
				require.ErrorIs(t, err, application.ErrUnauthorized)

				booking, err := h.create(t, admin, input)
				require.NoError(t, err)
				assert.Equal(t, "carol", booking.OrganizerID)
			})

			events, err := h.store.ListEvents(ctx, persistence.EventFilter{})
			require.NoError(t, err)
			assert.Len(t, events, 2)
		})
	}
}

func TestCreateBookingRejectsDisabledCatalogEntries(t *testing.T) {
	h := newHarness(t, memory.New())
	closed := h.seedRoom(t, testfixtures.WithRoomUnavailable())
	open := h.seedRoom(t)
	broken := h.seedResource(t, testfixtures.WithResourceUnavailable())

	_, err := h.create(t, alice, slot(closed.ID, "10:00", "11:00"))
	require.ErrorIs(t, err, application.ErrRoomUnavailable)

	_, err = h.create(t, alice, slot(open.ID, "10:00", "11:00", units(broken.ID, 1)))
	require.ErrorIs(t, err, application.ErrResourceUnavailable)
	assert.False(t, errors.Is(err, application.ErrRoomUnavailable))
	assert.Equal(t, 5, h.available(t, broken.ID))
}

func TestUpdateBooking(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("moving the slot frees the old one", func(t *testing.T) {
				h := newHarness(t, b.open(t))
				room := h.seedRoom(t)
				a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
				require.NoError(t, err)

				moved, err := h.update(t, alice, a.ID, application.BookingPatch{StartTime: ptr("14:00"), EndTime: ptr("15:00")})
				require.NoError(t, err)
				assert.Equal(t, "14:00", moved.StartTime)

				_, err = h.create(t, bob, slot(room.ID, "10:00", "11:00"))
				require.NoError(t, err)
				_, err = h.create(t, bob, slot(room.ID, "14:30", "15:30"))
				require.ErrorIs(t, err, application.ErrSchedulingConflict)
			})

			t.Run("a booking never conflicts with itself", func(t *testing.T) {
				h := newHarness(t, b.open(t))
				room := h.seedRoom(t)
				a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
				require.NoError(t, err)

				_, err = h.update(t, alice, a.ID, application.BookingPatch{EndTime: ptr("11:30")})
				require.NoError(t, err)
			})

			t.Run("changing lines applies net deltas", func(t *testing.T) {
				h := newHarness(t, b.open(t))
				room := h.seedRoom(t)
				x := h.seedResource(t, testfixtures.WithResourceQuantity(5, 5))
				y := h.seedResource(t, testfixtures.WithResourceQuantity(2, 2))
				a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00", units(x.ID, 3)))
				require.NoError(t, err)

				_, err = h.update(t, alice, a.ID, application.BookingPatch{
					Resources: &[]application.ResourceLineInput{units(x.ID, 1), units(y.ID, 2)},
				})
				require.NoError(t, err)
				assert.Equal(t, 4, h.available(t, x.ID))
				assert.Equal(t, 0, h.available(t, y.ID))

				_, err = h.update(t, alice, a.ID, application.BookingPatch{
					Resources: &[]application.ResourceLineInput{units(x.ID, 1), units(y.ID, 3)},
				})
				require.ErrorIs(t, err, application.ErrInsufficientQuantity)
				assert.Equal(t, 4, h.available(t, x.ID))
				assert.Equal(t, 0, h.available(t, y.ID))
			})

			t.Run("cancel releases once and reactivation re-arbitrates", func(t *testing.T) {
				h := newHarness(t, b.open(t))
				room := h.seedRoom(t)
				x := h.seedResource(t, testfixtures.WithResourceQuantity(5, 5))
				a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00", units(x.ID, 2)))
				require.NoError(t, err)

				cancelled, err := h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.StatusCancelled)})
				require.NoError(t, err)
				assert.False(t, cancelled.ClaimsHeld)
				assert.Equal(t, 5, h.available(t, x.ID))

				_, err = h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.StatusCancelled)})
				require.NoError(t, err)
				assert.Equal(t, 5, h.available(t, x.ID))

				_, err = h.create(t, bob, slot(room.ID, "10:30", "11:30"))
				require.NoError(t, err)

				_, err = h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.StatusPending)})
				require.ErrorIs(t, err, application.ErrSchedulingConflict)
				assert.Equal(t, 5, h.available(t, x.ID))

				reactivated, err := h.update(t, alice, a.ID, application.BookingPatch{
					Status:    ptr(persistence.StatusPending),
					StartTime: ptr("12:00"),
					EndTime:   ptr("13:00"),
				})
				require.NoError(t, err)
				assert.True(t, reactivated.ClaimsHeld)
				assert.Equal(t, 3, h.available(t, x.ID))

				stored, err := h.bookings.GetBooking(ctx, a.ID)
				require.NoError(t, err)
				assert.Equal(t, persistence.StatusPending, stored.Status)
			})

			t.Run("unknown status is rejected", func(t *testing.T) {
				h := newHarness(t, b.open(t))
				room := h.seedRoom(t)
				a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
				require.NoError(t, err)

				_, err = h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.EventStatus("archived"))})
				var vErr *application.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.FieldErrors, "status")
			})
		})
	}
}

func TestBookingAuthorization(t *testing.T) {
	h := newHarness(t, memory.New())
	ctx := context.Background()
	room := h.seedRoom(t)
	a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
	require.NoError(t, err)

	_, err = h.update(t, bob, a.ID, application.BookingPatch{Name: ptr("Hijacked")})
	require.ErrorIs(t, err, application.ErrUnauthorized)

	err = h.bookings.DeleteBooking(ctx, application.DeleteBookingParams{Principal: bob, BookingID: a.ID})
	require.ErrorIs(t, err, application.ErrUnauthorized)

	_, err = h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.StatusApproved)})
	require.ErrorIs(t, err, application.ErrUnauthorized)

	approved, err := h.update(t, admin, a.ID, application.BookingPatch{Status: ptr(persistence.StatusApproved)})
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusApproved, approved.Status)

	renamed, err := h.update(t, alice, a.ID, application.BookingPatch{Name: ptr("Retro")})
	require.NoError(t, err)
	assert.Equal(t, "Retro", renamed.Name)
}

func TestDeleteBooking(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.open(t))
			ctx := context.Background()
			room := h.seedRoom(t)
			x := h.seedResource(t, testfixtures.WithResourceQuantity(5, 5))

			a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00", units(x.ID, 3)))
			require.NoError(t, err)
			_, err = h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.StatusCancelled)})
			require.NoError(t, err)

			params := application.DeleteBookingParams{Principal: alice, BookingID: a.ID}
			require.NoError(t, h.bookings.DeleteBooking(ctx, params))
			assert.Equal(t, 5, h.available(t, x.ID), "cancelled booking must not be released twice")

			err = h.bookings.DeleteBooking(ctx, params)
			require.ErrorIs(t, err, application.ErrNotFound)

			_, err = h.bookings.GetBooking(ctx, a.ID)
			require.ErrorIs(t, err, application.ErrNotFound)
		})
	}
}

func TestReserveOnApprovalPolicy(t *testing.T) {
	h := newHarness(t, memory.New(), application.WithReservationPolicy(application.ReserveOnApproval))
	room := h.seedRoom(t)
	x := h.seedResource(t, testfixtures.WithResourceQuantity(3, 3))

	first, err := h.create(t, alice, slot(room.ID, "10:00", "11:00", units(x.ID, 2)))
	require.NoError(t, err)
	assert.False(t, first.ClaimsHeld)
	assert.Equal(t, 3, h.available(t, x.ID))

	second, err := h.create(t, bob, slot(room.ID, "10:30", "11:30", units(x.ID, 2)))
	require.NoError(t, err, "pending bookings do not hold the slot")

	_, err = h.update(t, admin, first.ID, application.BookingPatch{Status: ptr(persistence.StatusApproved)})
	require.NoError(t, err)
	assert.Equal(t, 1, h.available(t, x.ID))

	_, err = h.update(t, admin, second.ID, application.BookingPatch{Status: ptr(persistence.StatusApproved)})
	require.ErrorIs(t, err, application.ErrSchedulingConflict)

	_, err = h.update(t, admin, first.ID, application.BookingPatch{Status: ptr(persistence.StatusRejected)})
	require.NoError(t, err)
	assert.Equal(t, 3, h.available(t, x.ID))
}

func TestCheckAvailability(t *testing.T) {
	h := newHarness(t, memory.New())
	ctx := context.Background()
	room := h.seedRoom(t)
	a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
	require.NoError(t, err)

	query := application.AvailabilityQuery{RoomID: room.ID, EventDate: testfixtures.ReferenceDate, StartTime: "10:30", EndTime: "11:30"}
	result, err := h.bookings.CheckAvailability(ctx, query)
	require.NoError(t, err)
	assert.False(t, result.Available)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, a.ID, result.Conflicts[0].ID)
	assert.Equal(t, "Planning", result.Conflicts[0].Name)

	query.ExcludeBookingID = a.ID
	result, err = h.bookings.CheckAvailability(ctx, query)
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Empty(t, result.Conflicts)

	_, err = h.bookings.CheckAvailability(ctx, application.AvailabilityQuery{RoomID: "nope", EventDate: testfixtures.ReferenceDate, StartTime: "10:00", EndTime: "11:00"})
	require.ErrorIs(t, err, application.ErrNotFound)

	assert.Len(t, h.publisher.Sent(), 1, "previews never publish")
}

func TestListBookings(t *testing.T) {
	h := newHarness(t, memory.New())
	ctx := context.Background()
	room := h.seedRoom(t)
	other := h.seedRoom(t)

	late, err := h.create(t, alice, slot(room.ID, "15:00", "16:00"))
	require.NoError(t, err)
	early, err := h.create(t, alice, slot(room.ID, "09:00", "10:00"))
	require.NoError(t, err)
	input := slot(other.ID, "09:00", "10:00")
	input.Name = "Quarterly Review"
	_, err = h.create(t, bob, input)
	require.NoError(t, err)

	got, err := h.bookings.ListBookings(ctx, persistence.EventFilter{RoomID: room.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	got, err = h.bookings.ListBookings(ctx, persistence.EventFilter{Search: "quarterly"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].OrganizerID)

	_, err = h.bookings.ListBookings(ctx, persistence.EventFilter{Status: "archived"})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestBookingNotifications(t *testing.T) {
	h := newHarness(t, memory.New())
	ctx := context.Background()
	room := h.seedRoom(t)

	a, err := h.create(t, alice, slot(room.ID, "10:00", "11:00"))
	require.NoError(t, err)
	_, err = h.create(t, bob, slot(room.ID, "10:00", "11:00"))
	require.Error(t, err)
	_, err = h.update(t, alice, a.ID, application.BookingPatch{Status: ptr(persistence.StatusCancelled)})
	require.NoError(t, err)
	require.NoError(t, h.bookings.DeleteBooking(ctx, application.DeleteBookingParams{Principal: alice, BookingID: a.ID}))

	sent := h.publisher.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, notify.BookingCreated, sent[0].Type)
	assert.Equal(t, notify.BookingCancelled, sent[1].Type)
	assert.Equal(t, notify.BookingDeleted, sent[2].Type)
	for _, n := range sent {
		assert.Equal(t, a.ID, n.BookingID)
	}

	h.publisher.FailWith(errors.New("broker down"))
	_, err = h.create(t, alice, slot(room.ID, "12:00", "13:00"))
	require.NoError(t, err, "publish failures never fail the booking")
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	store := memory.New()
	locker := lock.NewLocal(20 * time.Millisecond)
	bookings := application.NewBookingService(store, locker)
	ctx := context.Background()

	room := testfixtures.NewRoom()
	require.NoError(t, store.CreateRoom(ctx, room))

	unlock, err := locker.Acquire(ctx, lock.RoomKey(room.ID))
	require.NoError(t, err)
	defer unlock()

	_, err = bookings.CreateBooking(ctx, application.CreateBookingParams{Principal: alice, Input: slot(room.ID, "10:00", "11:00")})
	require.ErrorIs(t, err, application.ErrRetryable)
	require.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, "retryable", application.ErrorKind(err))

	events, err := store.ListEvents(ctx, persistence.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestConcurrentReservationsNeverOverdraw(t *testing.T) {
	const (
		contenders = 8
		stock      = 3
	)

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.open(t))
			room := h.seedRoom(t)
			x := h.seedResource(t, testfixtures.WithResourceQuantity(stock, stock))

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
				failures  []error
			)
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					input := slot(room.ID, fmt.Sprintf("%02d:00", 8+i), fmt.Sprintf("%02d:30", 8+i), units(x.ID, 1))
					_, err := h.bookings.CreateBooking(context.Background(), application.CreateBookingParams{Principal: alice, Input: input})
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failures = append(failures, err)
						return
					}
					succeeded++
				}(i)
			}
			wg.Wait()

			assert.Equal(t, stock, succeeded)
			for _, err := range failures {
				assert.ErrorIs(t, err, application.ErrInsufficientQuantity)
			}
			assert.Equal(t, 0, h.available(t, x.ID))
		})
	}
}

func TestOversizedQuantitiesNeverCreditInventory(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.open(t))
			room := h.seedRoom(t)
			x := h.seedResource(t, testfixtures.WithResourceQuantity(5, 5))

			d, err := h.create(t, alice, slot(room.ID, "08:00", "09:00", units(x.ID, 3)))
			require.NoError(t, err)
			require.Equal(t, 2, h.available(t, x.ID))

			_, err = h.create(t, bob, slot(room.ID, "10:00", "11:00", units(x.ID, math.MaxInt), units(x.ID, math.MaxInt)))
			var vErr *application.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, 2, h.available(t, x.ID))

			_, err = h.update(t, alice, d.ID, application.BookingPatch{
				Resources: &[]application.ResourceLineInput{units(x.ID, math.MaxInt32), units(x.ID, math.MaxInt32)},
			})
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.FieldErrors, "resources")
			assert.Equal(t, 2, h.available(t, x.ID))

			events, err := h.store.ListEvents(context.Background(), persistence.EventFilter{})
			require.NoError(t, err)
			assert.Len(t, events, 1)
		})
	}
}

func TestConcurrentSameSlotRequestsYieldOneBooking(t *testing.T) {
	const contenders = 8

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			h := newHarness(t, b.open(t))
			room := h.seedRoom(t)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				winners  []persistence.Event
				failures []error
			)
			start := make(chan struct{})
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					principal := application.Principal{UserID: fmt.Sprintf("user-%d", i)}
					booking, err := h.bookings.CreateBooking(context.Background(), application.CreateBookingParams{
						Principal: principal,
						Input:     slot(room.ID, "10:00", "11:00"),
					})
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failures = append(failures, err)
						return
					}
					winners = append(winners, booking)
				}(i)
			}
			close(start)
			wg.Wait()

			require.Len(t, winners, 1)
			require.Len(t, failures, contenders-1)
			for _, err := range failures {
				var conflict *application.ConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, winners[0].ID, conflict.BookingID)
			}

			events, err := h.store.ListEvents(context.Background(), persistence.EventFilter{RoomID: room.ID})
			require.NoError(t, err)
			assert.Len(t, events, 1)
		})
	}
}
