// Package memory provides an in-process persistence.Store used by tests and
// single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/room-booking/internal/persistence"
)

// Store keeps all records in maps guarded by a single mutex. Transactions
// operate on a copy of the state that replaces the live state on commit.
type Store struct {
	mu    sync.Mutex
	state *state
}

type storedEvent struct {
	event persistence.Event
	seq   int64
}

type state struct {
	rooms     map[string]persistence.Room
	resources map[string]persistence.Resource
	events    map[string]storedEvent
	seq       int64
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{state: &state{
		rooms:     make(map[string]persistence.Room),
		resources: make(map[string]persistence.Resource),
		events:    make(map[string]storedEvent),
	}}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// WithinTx runs fn against a private copy of the state and publishes it only
// when fn succeeds. Transactions are fully serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.state.clone()
	if err := fn(ctx, &view{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (st *state) clone() *state {
	out := &state{
		rooms:     make(map[string]persistence.Room, len(st.rooms)),
		resources: make(map[string]persistence.Resource, len(st.resources)),
		events:    make(map[string]storedEvent, len(st.events)),
		seq:       st.seq,
	}
	for id, room := range st.rooms {
		out.rooms[id] = room
	}
	for id, res := range st.resources {
		out.resources[id] = res
	}
	for id, ev := range st.events {
		ev.event = cloneEvent(ev.event)
		out.events[id] = ev
	}
	return out
}

func (s *Store) do(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.state})
}

// --- non-transactional access ---

func (s *Store) CreateRoom(ctx context.Context, room persistence.Room) error {
	return s.do(func(v *view) error { return v.CreateRoom(ctx, room) })
}

func (s *Store) UpdateRoom(ctx context.Context, room persistence.Room) error {
	return s.do(func(v *view) error { return v.UpdateRoom(ctx, room) })
}

func (s *Store) GetRoom(ctx context.Context, id string) (room persistence.Room, err error) {
	err = s.do(func(v *view) error { room, err = v.GetRoom(ctx, id); return err })
	return room, err
}

func (s *Store) ListRooms(ctx context.Context) (rooms []persistence.Room, err error) {
	err = s.do(func(v *view) error { rooms, err = v.ListRooms(ctx); return err })
	return rooms, err
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	return s.do(func(v *view) error { return v.DeleteRoom(ctx, id) })
}

func (s *Store) CreateResource(ctx context.Context, res persistence.Resource) error {
	return s.do(func(v *view) error { return v.CreateResource(ctx, res) })
}

func (s *Store) UpdateResource(ctx context.Context, res persistence.Resource) error {
	return s.do(func(v *view) error { return v.UpdateResource(ctx, res) })
}

func (s *Store) GetResource(ctx context.Context, id string) (res persistence.Resource, err error) {
	err = s.do(func(v *view) error { res, err = v.GetResource(ctx, id); return err })
	return res, err
}

func (s *Store) ListResources(ctx context.Context) (list []persistence.Resource, err error) {
	err = s.do(func(v *view) error { list, err = v.ListResources(ctx); return err })
	return list, err
}

func (s *Store) DeleteResource(ctx context.Context, id string) error {
	return s.do(func(v *view) error { return v.DeleteResource(ctx, id) })
}

func (s *Store) CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (ok bool, err error) {
	err = s.do(func(v *view) error { ok, err = v.CompareAndSwapAvailable(ctx, id, expected, next); return err })
	return ok, err
}

func (s *Store) CompareAndSwapQuantities(ctx context.Context, id string, expected, next persistence.Quantities) (ok bool, err error) {
	err = s.do(func(v *view) error { ok, err = v.CompareAndSwapQuantities(ctx, id, expected, next); return err })
	return ok, err
}

func (s *Store) SaveEvent(ctx context.Context, event persistence.Event) error {
	return s.do(func(v *view) error { return v.SaveEvent(ctx, event) })
}

func (s *Store) GetEvent(ctx context.Context, id string) (event persistence.Event, err error) {
	err = s.do(func(v *view) error { event, err = v.GetEvent(ctx, id); return err })
	return event, err
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.do(func(v *view) error { return v.DeleteEvent(ctx, id) })
}

func (s *Store) ListEvents(ctx context.Context, filter persistence.EventFilter) (events []persistence.Event, err error) {
	err = s.do(func(v *view) error { events, err = v.ListEvents(ctx, filter); return err })
	return events, err
}

func (s *Store) FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) (events []persistence.Event, err error) {
	err = s.do(func(v *view) error {
		events, err = v.FindActiveEventsByRoomAndDate(ctx, roomID, date, excludeID)
		return err
	})
	return events, err
}

func (s *Store) CountActiveEventsForRoom(ctx context.Context, roomID string) (n int, err error) {
	err = s.do(func(v *view) error { n, err = v.CountActiveEventsForRoom(ctx, roomID); return err })
	return n, err
}

func (s *Store) CountActiveEventsForResource(ctx context.Context, resourceID string) (n int, err error) {
	err = s.do(func(v *view) error { n, err = v.CountActiveEventsForResource(ctx, resourceID); return err })
	return n, err
}

// view implements persistence.Tx over a state the caller has exclusive access to.
type view struct {
	st *state
}

// --- RoomRepository ---

func (v *view) CreateRoom(ctx context.Context, room persistence.Room) error {
	if _, ok := v.st.rooms[room.ID]; ok {
		return fmt.Errorf("memory: room %s: %w", room.ID, persistence.ErrDuplicate)
	}
	v.st.rooms[room.ID] = room
	return nil
}

func (v *view) UpdateRoom(ctx context.Context, room persistence.Room) error {
	existing, ok := v.st.rooms[room.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	room.CreatedAt = existing.CreatedAt
	v.st.rooms[room.ID] = room
	return nil
}

func (v *view) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	room, ok := v.st.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (v *view) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	rooms := make([]persistence.Room, 0, len(v.st.rooms))
	for _, room := range v.st.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

func (v *view) DeleteRoom(ctx context.Context, id string) error {
	if _, ok := v.st.rooms[id]; !ok {
		return persistence.ErrNotFound
	}
	for _, stored := range v.st.events {
		if stored.event.RoomID == id {
			return fmt.Errorf("memory: room %s referenced by event %s: %w", id, stored.event.ID, persistence.ErrForeignKeyViolation)
		}
	}
	delete(v.st.rooms, id)
	return nil
}

// --- ResourceRepository ---

func (v *view) CreateResource(ctx context.Context, res persistence.Resource) error {
	if _, ok := v.st.resources[res.ID]; ok {
		return fmt.Errorf("memory: resource %s: %w", res.ID, persistence.ErrDuplicate)
	}
	if res.TotalQuantity < 0 || res.AvailableQuantity < 0 || res.AvailableQuantity > res.TotalQuantity {
		return persistence.ErrConstraintViolation
	}
	v.st.resources[res.ID] = res
	return nil
}

func (v *view) UpdateResource(ctx context.Context, res persistence.Resource) error {
	existing, ok := v.st.resources[res.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	existing.Name = res.Name
	existing.Description = res.Description
	existing.IsAvailable = res.IsAvailable
	existing.UpdatedAt = res.UpdatedAt
	v.st.resources[res.ID] = existing
	return nil
}

func (v *view) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	res, ok := v.st.resources[id]
	if !ok {
		return persistence.Resource{}, persistence.ErrNotFound
	}
	return res, nil
}

func (v *view) ListResources(ctx context.Context) ([]persistence.Resource, error) {
	list := make([]persistence.Resource, 0, len(v.st.resources))
	for _, res := range v.st.resources {
		list = append(list, res)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name == list[j].Name {
			return list[i].ID < list[j].ID
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func (v *view) DeleteResource(ctx context.Context, id string) error {
	if _, ok := v.st.resources[id]; !ok {
		return persistence.ErrNotFound
	}
	for _, stored := range v.st.events {
		for _, line := range stored.event.Resources {
			if line.ResourceID == id {
				return fmt.Errorf("memory: resource %s referenced by event %s: %w", id, stored.event.ID, persistence.ErrForeignKeyViolation)
			}
		}
	}
	delete(v.st.resources, id)
	return nil
}

func (v *view) CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (bool, error) {
	res, ok := v.st.resources[id]
	if !ok {
		return false, persistence.ErrNotFound
	}
	if res.AvailableQuantity != expected || next < 0 || next > res.TotalQuantity {
		return false, nil
	}
	res.AvailableQuantity = next
	v.st.resources[id] = res
	return true, nil
}

func (v *view) CompareAndSwapQuantities(ctx context.Context, id string, expected, next persistence.Quantities) (bool, error) {
	res, ok := v.st.resources[id]
	if !ok {
		return false, persistence.ErrNotFound
	}
	if res.TotalQuantity != expected.Total || res.AvailableQuantity != expected.Available {
		return false, nil
	}
	if next.Available < 0 || next.Available > next.Total {
		return false, nil
	}
	res.TotalQuantity = next.Total
	res.AvailableQuantity = next.Available
	v.st.resources[id] = res
	return true, nil
}

// --- EventRepository ---

func (v *view) SaveEvent(ctx context.Context, event persistence.Event) error {
	if _, ok := v.st.rooms[event.RoomID]; !ok {
		return fmt.Errorf("memory: room %s: %w", event.RoomID, persistence.ErrForeignKeyViolation)
	}
	for _, line := range event.Resources {
		if _, ok := v.st.resources[line.ResourceID]; !ok {
			return fmt.Errorf("memory: resource %s: %w", line.ResourceID, persistence.ErrForeignKeyViolation)
		}
		if line.Quantity < 1 {
			return persistence.ErrConstraintViolation
		}
	}

	stored, ok := v.st.events[event.ID]
	if ok {
		event.CreatedAt = stored.event.CreatedAt
	} else {
		v.st.seq++
		stored.seq = v.st.seq
	}
	stored.event = cloneEvent(event)
	v.st.events[event.ID] = stored
	return nil
}

func (v *view) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	stored, ok := v.st.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(stored.event), nil
}

func (v *view) DeleteEvent(ctx context.Context, id string) error {
	if _, ok := v.st.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(v.st.events, id)
	return nil
}

func (v *view) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	events := make([]persistence.Event, 0)
	for _, stored := range v.st.events {
		if filter.Matches(stored.event) {
			events = append(events, cloneEvent(stored.event))
		}
	}
	persistence.SortEvents(events)
	if limit := filter.EffectiveLimit(); len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (v *view) FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) ([]persistence.Event, error) {
	matches := make([]storedEvent, 0)
	for _, stored := range v.st.events {
		ev := stored.event
		if !ev.ClaimsHeld || ev.RoomID != roomID || ev.EventDate != date {
			continue
		}
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		matches = append(matches, stored)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	events := make([]persistence.Event, len(matches))
	for i, stored := range matches {
		events[i] = cloneEvent(stored.event)
	}
	return events, nil
}

func (v *view) CountActiveEventsForRoom(ctx context.Context, roomID string) (int, error) {
	count := 0
	for _, stored := range v.st.events {
		if stored.event.ClaimsHeld && stored.event.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (v *view) CountActiveEventsForResource(ctx context.Context, resourceID string) (int, error) {
	count := 0
	for _, stored := range v.st.events {
		if !stored.event.ClaimsHeld {
			continue
		}
		for _, line := range stored.event.Resources {
			if line.ResourceID == resourceID {
				count++
				break
			}
		}
	}
	return count, nil
}

func cloneEvent(event persistence.Event) persistence.Event {
	event.Resources = persistence.CloneLines(event.Resources)
	return event
}
