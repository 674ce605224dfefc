package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-booking/internal/lock"
	"github.com/example/room-booking/internal/persistence"
)

// RoomService manages the room catalog. Mutations are restricted to administrators.
type RoomService struct {
	store       persistence.Store
	locker      lock.Locker
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(store persistence.Store, locker lock.Locker, idGenerator func() string, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(store, locker, idGenerator, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(store persistence.Store, locker lock.Locker, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RoomService {
	if idGenerator == nil {
		idGenerator = NewUUIDGenerator()
	}
	if now == nil {
		now = time.Now
	}
	if locker == nil {
		locker = lock.NewLocal(lock.DefaultTimeout)
	}
	return &RoomService{store: store, locker: locker, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// CreateRoom validates input and persists a new, available room.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room persistence.Room, err error) {
	logger := s.loggerWith(ctx, "CreateRoom",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create room")
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validateRoomInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	room = persistence.Room{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(params.Input.Name),
		Location:    strings.TrimSpace(params.Input.Location),
		Capacity:    params.Input.Capacity,
		IsAvailable: true,
		CreatedAt:   s.now(),
	}
	room.UpdatedAt = room.CreatedAt

	if err = s.store.CreateRoom(ctx, room); err != nil {
		err = mapRoomRepoError(err, room.ID)
		room = persistence.Room{}
	}
	return
}

// GetRoom returns a single room.
func (s *RoomService) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		return persistence.Room{}, mapRoomRepoError(err, id)
	}
	return room, nil
}

// ListRooms returns rooms matching filter ordered by name.
func (s *RoomService) ListRooms(ctx context.Context, filter persistence.RoomFilter) (rooms []persistence.Room, err error) {
	logger := s.loggerWith(ctx, "ListRooms")
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to list rooms")
			return
		}
		logger.With("result_count", len(rooms)).DebugContext(ctx, "rooms listed")
	}()

	all, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	rooms = make([]persistence.Room, 0, len(all))
	for _, room := range all {
		if filter.Matches(room) {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

// SetRoomAvailability enables or disables a room for new bookings. Existing
// bookings keep their slots.
func (s *RoomService) SetRoomAvailability(ctx context.Context, params SetAvailabilityParams) (room persistence.Room, err error) {
	logger := s.loggerWith(ctx, "SetRoomAvailability",
		"principal_id", params.Principal.UserID,
		"room_id", params.ID,
		"available", params.Available,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to set room availability")
			return
		}
		logger.InfoContext(ctx, "room availability updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	err = s.withRoomLock(ctx, params.ID, func(ctx context.Context, tx persistence.Tx) error {
		current, err := tx.GetRoom(ctx, params.ID)
		if err != nil {
			return mapRoomRepoError(err, params.ID)
		}
		current.IsAvailable = params.Available
		current.UpdatedAt = s.now()
		if err := tx.UpdateRoom(ctx, current); err != nil {
			return mapRoomRepoError(err, params.ID)
		}
		room = current
		return nil
	})
	if err != nil {
		room = persistence.Room{}
	}
	return
}

// DeleteRoom removes a room that no booking references.
func (s *RoomService) DeleteRoom(ctx context.Context, principal Principal, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteRoom",
		"principal_id", principal.UserID,
		"room_id", id,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete room")
			return
		}
		logger.InfoContext(ctx, "room deleted")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	err = s.withRoomLock(ctx, id, func(ctx context.Context, tx persistence.Tx) error {
		if _, err := tx.GetRoom(ctx, id); err != nil {
			return mapRoomRepoError(err, id)
		}
		active, err := tx.CountActiveEventsForRoom(ctx, id)
		if err != nil {
			return mapStorageError(err)
		}
		if active > 0 {
			return &InUseError{Entity: entityRoom, ID: id, ActiveBookings: active}
		}
		return mapRoomRepoError(tx.DeleteRoom(ctx, id), id)
	})
	return
}

func (s *RoomService) withRoomLock(ctx context.Context, id string, fn func(ctx context.Context, tx persistence.Tx) error) error {
	unlock, err := s.locker.Acquire(ctx, lock.RoomKey(id))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return retryable(err)
		}
		return err
	}
	defer unlock()
	return s.store.WithinTx(ctx, fn)
}

func mapRoomRepoError(err error, id string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return &NotFoundError{Entity: entityRoom, ID: id}
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return &InUseError{Entity: entityRoom, ID: id}
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("capacity", "capacity must be positive")
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("room %s already exists: %w", id, err)
	}
	return mapStorageError(err)
}
