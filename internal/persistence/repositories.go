package persistence

import "context"

// RoomRepository exposes CRUD operations for rooms.
// Within a transaction, GetRoom locks the row on backends that support row locks.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) error
}

// ResourceRepository exposes inventory records and their atomic counters.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) error
	// UpdateResource writes descriptive fields and the availability flag only.
	UpdateResource(ctx context.Context, resource Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error
	// CompareAndSwapAvailable sets the available quantity to next only if it
	// currently equals expected and next stays within [0, total].
	CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (bool, error)
	// CompareAndSwapQuantities replaces both counters only if they currently
	// equal expected and next satisfies 0 <= available <= total.
	CompareAndSwapQuantities(ctx context.Context, id string, expected, next Quantities) (bool, error)
}

// EventRepository stores bookings with their resource lines.
type EventRepository interface {
	// SaveEvent inserts or replaces the event and its resource lines.
	SaveEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	// FindActiveEventsByRoomAndDate returns events holding claims in the room
	// on the date, in arrival order, skipping excludeID when non-empty.
	FindActiveEventsByRoomAndDate(ctx context.Context, roomID, date, excludeID string) ([]Event, error)
	CountActiveEventsForRoom(ctx context.Context, roomID string) (int, error)
	CountActiveEventsForResource(ctx context.Context, resourceID string) (int, error)
}

// Tx groups the repositories available inside one storage transaction.
type Tx interface {
	RoomRepository
	ResourceRepository
	EventRepository
}

// Store is a transactional storage backend.
type Store interface {
	Tx
	// WithinTx runs fn in a single serializable unit of work. Returning an
	// error from fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
