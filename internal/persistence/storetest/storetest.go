// Package storetest holds the behavioural contract every persistence.Store
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/testfixtures"
)

// Factory returns an empty, migrated store. The store is closed by the caller's cleanup.
type Factory func(t *testing.T) persistence.Store

// Run exercises the full repository contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("rooms", func(t *testing.T) { testRooms(t, newStore(t)) })
	t.Run("resources", func(t *testing.T) { testResources(t, newStore(t)) })
	t.Run("resource counters", func(t *testing.T) { testResourceCounters(t, newStore(t)) })
	t.Run("events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("active event queries", func(t *testing.T) { testActiveQueries(t, newStore(t)) })
	t.Run("event listing", func(t *testing.T) { testListEvents(t, newStore(t)) })
	t.Run("event search folding", func(t *testing.T) { testSearchFolding(t, newStore(t)) })
	t.Run("referential guards", func(t *testing.T) { testReferentialGuards(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
}

func testRooms(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	room := testfixtures.NewRoom(testfixtures.WithRoomCapacity(12))

	require.NoError(t, store.CreateRoom(ctx, room))
	require.ErrorIs(t, store.CreateRoom(ctx, room), persistence.ErrDuplicate)

	got, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Name, got.Name)
	assert.Equal(t, 12, got.Capacity)
	assert.True(t, got.IsAvailable)
	assert.True(t, room.CreatedAt.Equal(got.CreatedAt))

	room.IsAvailable = false
	room.UpdatedAt = room.UpdatedAt.Add(1)
	require.NoError(t, store.UpdateRoom(ctx, room))
	got, err = store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	require.NoError(t, store.DeleteRoom(ctx, room.ID))
	_, err = store.GetRoom(ctx, room.ID)
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.ErrorIs(t, store.DeleteRoom(ctx, room.ID), persistence.ErrNotFound)
	require.ErrorIs(t, store.UpdateRoom(ctx, room), persistence.ErrNotFound)
}

func testResources(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	res := testfixtures.NewResource(testfixtures.WithResourceQuantity(5, 4))

	require.NoError(t, store.CreateResource(ctx, res))
	require.ErrorIs(t, store.CreateResource(ctx, res), persistence.ErrDuplicate)

	res.Name = "Projector"
	res.IsAvailable = false
	res.TotalQuantity = 99
	res.AvailableQuantity = 99
	require.NoError(t, store.UpdateResource(ctx, res))

	got, err := store.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Projector", got.Name)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, 5, got.TotalQuantity, "UpdateResource must not touch counters")
	assert.Equal(t, 4, got.AvailableQuantity, "UpdateResource must not touch counters")

	list, err := store.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteResource(ctx, res.ID))
	_, err = store.GetResource(ctx, res.ID)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testResourceCounters(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	res := testfixtures.NewResource(testfixtures.WithResourceQuantity(5, 5))
	require.NoError(t, store.CreateResource(ctx, res))

	swapped, err := store.CompareAndSwapAvailable(ctx, res.ID, 5, 2)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = store.CompareAndSwapAvailable(ctx, res.ID, 5, 1)
	require.NoError(t, err)
	assert.False(t, swapped, "stale expected value must lose")

	swapped, err = store.CompareAndSwapAvailable(ctx, res.ID, 2, -1)
	require.NoError(t, err)
	assert.False(t, swapped, "negative quantity must be refused")

	swapped, err = store.CompareAndSwapAvailable(ctx, res.ID, 2, 6)
	require.NoError(t, err)
	assert.False(t, swapped, "quantity above total must be refused")

	got, err := store.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableQuantity)

	swapped, err = store.CompareAndSwapQuantities(ctx, res.ID,
		persistence.Quantities{Total: 5, Available: 2},
		persistence.Quantities{Total: 8, Available: 5})
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = store.CompareAndSwapQuantities(ctx, res.ID,
		persistence.Quantities{Total: 8, Available: 5},
		persistence.Quantities{Total: 2, Available: 3})
	require.NoError(t, err)
	assert.False(t, swapped, "available above total must be refused")

	got, err = store.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.TotalQuantity)
	assert.Equal(t, 5, got.AvailableQuantity)

	_, err = store.CompareAndSwapAvailable(ctx, "missing", 1, 0)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func seedRoomAndResources(t *testing.T, store persistence.Store, resources ...persistence.Resource) persistence.Room {
	t.Helper()
	ctx := context.Background()
	room := testfixtures.NewRoom()
	require.NoError(t, store.CreateRoom(ctx, room))
	for _, res := range resources {
		require.NoError(t, store.CreateResource(ctx, res))
	}
	return room
}

func testEvents(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	x := testfixtures.NewResource()
	y := testfixtures.NewResource()
	room := seedRoomAndResources(t, store, x, y)

	ev := testfixtures.NewEvent(room.ID, testfixtures.WithEventResources(
		persistence.ResourceLine{ResourceID: y.ID, Quantity: 1},
		persistence.ResourceLine{ResourceID: x.ID, Quantity: 2},
	))
	ev.Description = "quarterly review"
	ev.Attendees = 6
	require.NoError(t, store.SaveEvent(ctx, ev))

	got, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Name, got.Name)
	assert.Equal(t, "quarterly review", got.Description)
	assert.Equal(t, ev.EventDate, got.EventDate)
	assert.Equal(t, "10:00", got.StartTime)
	assert.Equal(t, "11:00", got.EndTime)
	assert.Equal(t, persistence.StatusPending, got.Status)
	assert.Equal(t, 6, got.Attendees)
	assert.True(t, got.ClaimsHeld)
	assert.Equal(t, ev.Resources, got.Resources, "resource line order must be preserved")

	ev.Resources = []persistence.ResourceLine{{ResourceID: x.ID, Quantity: 4}}
	ev.Status = persistence.StatusCancelled
	ev.ClaimsHeld = false
	require.NoError(t, store.SaveEvent(ctx, ev))

	got, err = store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusCancelled, got.Status)
	assert.False(t, got.ClaimsHeld)
	assert.Equal(t, []persistence.ResourceLine{{ResourceID: x.ID, Quantity: 4}}, got.Resources)

	require.NoError(t, store.DeleteEvent(ctx, ev.ID))
	_, err = store.GetEvent(ctx, ev.ID)
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.ErrorIs(t, store.DeleteEvent(ctx, ev.ID), persistence.ErrNotFound)

	orphan := testfixtures.NewEvent("missing-room")
	err = store.SaveEvent(ctx, orphan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, persistence.ErrForeignKeyViolation), "got %v", err)
}

func testActiveQueries(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	x := testfixtures.NewResource()
	room := seedRoomAndResources(t, store, x)
	other := testfixtures.NewRoom()
	require.NoError(t, store.CreateRoom(ctx, other))

	first := testfixtures.NewEvent(room.ID, testfixtures.WithEventID("z-first"),
		testfixtures.WithEventWindow(testfixtures.ReferenceDate, "14:00", "15:00"),
		testfixtures.WithEventResources(persistence.ResourceLine{ResourceID: x.ID, Quantity: 1}))
	second := testfixtures.NewEvent(room.ID, testfixtures.WithEventID("a-second"),
		testfixtures.WithEventWindow(testfixtures.ReferenceDate, "09:00", "10:00"))
	released := testfixtures.NewEvent(room.ID,
		testfixtures.WithEventStatus(persistence.StatusCancelled),
		testfixtures.WithEventResources(persistence.ResourceLine{ResourceID: x.ID, Quantity: 1}))
	otherDay := testfixtures.NewEvent(room.ID, testfixtures.WithEventWindow("2024-06-02", "10:00", "11:00"))
	otherRoom := testfixtures.NewEvent(other.ID)

	for _, ev := range []persistence.Event{first, second, released, otherDay, otherRoom} {
		require.NoError(t, store.SaveEvent(ctx, ev))
	}

	active, err := store.FindActiveEventsByRoomAndDate(ctx, room.ID, testfixtures.ReferenceDate, "")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "z-first", active[0].ID, "arrival order expected")
	assert.Equal(t, "a-second", active[1].ID, "arrival order expected")

	active, err = store.FindActiveEventsByRoomAndDate(ctx, room.ID, testfixtures.ReferenceDate, "z-first")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a-second", active[0].ID)

	count, err := store.CountActiveEventsForRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.CountActiveEventsForResource(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testListEvents(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	room := seedRoomAndResources(t, store)
	other := testfixtures.NewRoom()
	require.NoError(t, store.CreateRoom(ctx, other))

	events := []persistence.Event{
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("e3"),
			testfixtures.WithEventWindow("2024-06-02", "09:00", "10:00"),
			testfixtures.WithEventName("Design sync")),
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("e2"),
			testfixtures.WithEventWindow("2024-06-01", "13:00", "14:00"),
			testfixtures.WithEventOrganizer("organizer-2")),
		testfixtures.NewEvent(other.ID, testfixtures.WithEventID("e1"),
			testfixtures.WithEventWindow("2024-06-01", "08:00", "09:00"),
			testfixtures.WithEventStatus(persistence.StatusApproved)),
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("e4"),
			testfixtures.WithEventWindow("2024-06-05", "08:00", "09:00"),
			testfixtures.WithEventStatus(persistence.StatusCancelled)),
	}
	for _, ev := range events {
		require.NoError(t, store.SaveEvent(ctx, ev))
	}

	ids := func(list []persistence.Event) []string {
		out := make([]string, len(list))
		for i, ev := range list {
			out[i] = ev.ID
		}
		return out
	}

	all, err := store.ListEvents(ctx, persistence.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids(all))

	byRoom, err := store.ListEvents(ctx, persistence.EventFilter{RoomID: room.ID, ToDate: "2024-06-02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3"}, ids(byRoom))

	byStatus, err := store.ListEvents(ctx, persistence.EventFilter{Status: persistence.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids(byStatus))

	byOrganizer, err := store.ListEvents(ctx, persistence.EventFilter{OrganizerID: "organizer-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, ids(byOrganizer))

	bySearch, err := store.ListEvents(ctx, persistence.EventFilter{Search: "design", FromDate: "2024-06-02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e3"}, ids(bySearch))

	limited, err := store.ListEvents(ctx, persistence.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, ids(limited))
}

func testSearchFolding(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	room := seedRoomAndResources(t, store)

	events := []persistence.Event{
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("s1"),
			testfixtures.WithEventWindow("2024-07-01", "09:00", "10:00"),
			testfixtures.WithEventName("ÜBER Planung")),
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("s2"),
			testfixtures.WithEventWindow("2024-07-01", "10:00", "11:00"),
			testfixtures.WithEventName("Weekly sync")),
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("s3"),
			testfixtures.WithEventWindow("2024-07-02", "09:00", "10:00"),
			testfixtures.WithEventName("über review")),
		testfixtures.NewEvent(room.ID, testfixtures.WithEventID("s4"),
			testfixtures.WithEventWindow("2024-07-03", "09:00", "10:00"),
			testfixtures.WithEventName("Über retro")),
	}
	for _, ev := range events {
		require.NoError(t, store.SaveEvent(ctx, ev))
	}

	found, err := store.ListEvents(ctx, persistence.EventFilter{Search: "über"})
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "s1", found[0].ID)
	assert.Equal(t, "s3", found[1].ID)
	assert.Equal(t, "s4", found[2].ID)

	upper, err := store.ListEvents(ctx, persistence.EventFilter{Search: "ÜBER", Limit: 2})
	require.NoError(t, err)
	require.Len(t, upper, 2)
	assert.Equal(t, "s1", upper[0].ID)
	assert.Equal(t, "s3", upper[1].ID)
}

func testReferentialGuards(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	x := testfixtures.NewResource()
	room := seedRoomAndResources(t, store, x)

	ev := testfixtures.NewEvent(room.ID,
		testfixtures.WithEventStatus(persistence.StatusCancelled),
		testfixtures.WithEventResources(persistence.ResourceLine{ResourceID: x.ID, Quantity: 1}))
	require.NoError(t, store.SaveEvent(ctx, ev))

	require.ErrorIs(t, store.DeleteRoom(ctx, room.ID), persistence.ErrForeignKeyViolation)
	require.ErrorIs(t, store.DeleteResource(ctx, x.ID), persistence.ErrForeignKeyViolation)

	require.NoError(t, store.DeleteEvent(ctx, ev.ID))
	require.NoError(t, store.DeleteResource(ctx, x.ID))
	require.NoError(t, store.DeleteRoom(ctx, room.ID))
}

func testTransactions(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	x := testfixtures.NewResource(testfixtures.WithResourceQuantity(5, 5))
	room := seedRoomAndResources(t, store, x)
	boom := errors.New("abort")

	err := store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		swapped, err := tx.CompareAndSwapAvailable(ctx, x.ID, 5, 1)
		require.NoError(t, err)
		require.True(t, swapped)
		require.NoError(t, tx.SaveEvent(ctx, testfixtures.NewEvent(room.ID, testfixtures.WithEventID("rolled-back"))))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetResource(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableQuantity, "rolled back counter must be restored")
	_, err = store.GetEvent(ctx, "rolled-back")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	err = store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if _, err := tx.CompareAndSwapAvailable(ctx, x.ID, 5, 3); err != nil {
			return err
		}
		return tx.SaveEvent(ctx, testfixtures.NewEvent(room.ID, testfixtures.WithEventID("committed")))
	})
	require.NoError(t, err)

	got, err = store.GetResource(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableQuantity)
	_, err = store.GetEvent(ctx, "committed")
	require.NoError(t, err)
}
