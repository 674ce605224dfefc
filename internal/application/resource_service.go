package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-booking/internal/ledger"
	"github.com/example/room-booking/internal/lock"
	"github.com/example/room-booking/internal/persistence"
)

// ResourceService manages inventory. Available quantities are only changed
// here through UpdateResourceQuantity and by BookingService through the ledger.
type ResourceService struct {
	store       persistence.Store
	locker      lock.Locker
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewResourceService constructs a resource service with the provided dependencies.
func NewResourceService(store persistence.Store, locker lock.Locker, idGenerator func() string, now func() time.Time) *ResourceService {
	return NewResourceServiceWithLogger(store, locker, idGenerator, now, nil)
}

// NewResourceServiceWithLogger constructs a resource service with a specified logger.
func NewResourceServiceWithLogger(store persistence.Store, locker lock.Locker, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ResourceService {
	if idGenerator == nil {
		idGenerator = NewUUIDGenerator()
	}
	if now == nil {
		now = time.Now
	}
	if locker == nil {
		locker = lock.NewLocal(lock.DefaultTimeout)
	}
	return &ResourceService{store: store, locker: locker, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *ResourceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ResourceService", operation, attrs...)
}

// CreateResource persists a new resource with every unit available.
func (s *ResourceService) CreateResource(ctx context.Context, params CreateResourceParams) (res persistence.Resource, err error) {
	logger := s.loggerWith(ctx, "CreateResource",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to create resource")
			return
		}
		logger.With("resource_id", res.ID, "total_quantity", res.TotalQuantity).InfoContext(ctx, "resource created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validateResourceInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	res = persistence.Resource{
		ID:                s.idGenerator(),
		Name:              strings.TrimSpace(params.Input.Name),
		Description:       params.Input.Description,
		TotalQuantity:     params.Input.TotalQuantity,
		AvailableQuantity: params.Input.TotalQuantity,
		IsAvailable:       true,
		CreatedAt:         s.now(),
	}
	res.UpdatedAt = res.CreatedAt

	if err = s.store.CreateResource(ctx, res); err != nil {
		err = mapResourceRepoError(err, res.ID)
		res = persistence.Resource{}
	}
	return
}

// GetResource returns a single resource.
func (s *ResourceService) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return persistence.Resource{}, mapResourceRepoError(err, id)
	}
	return res, nil
}

// ListResources returns every resource ordered by name.
func (s *ResourceService) ListResources(ctx context.Context) ([]persistence.Resource, error) {
	list, err := s.store.ListResources(ctx)
	if err != nil {
		err = mapStorageError(err)
		s.loggerWith(ctx, "ListResources").ErrorContext(ctx, "failed to list resources", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return list, nil
}

// SetResourceAvailability enables or disables a resource for new reservations.
// Units already reserved stay reserved.
func (s *ResourceService) SetResourceAvailability(ctx context.Context, params SetAvailabilityParams) (res persistence.Resource, err error) {
	logger := s.loggerWith(ctx, "SetResourceAvailability",
		"principal_id", params.Principal.UserID,
		"resource_id", params.ID,
		"available", params.Available,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to set resource availability")
			return
		}
		logger.InfoContext(ctx, "resource availability updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	err = s.withResourceLock(ctx, params.ID, func(ctx context.Context, tx persistence.Tx) error {
		current, err := tx.GetResource(ctx, params.ID)
		if err != nil {
			return mapResourceRepoError(err, params.ID)
		}
		current.IsAvailable = params.Available
		current.UpdatedAt = s.now()
		if err := tx.UpdateResource(ctx, current); err != nil {
			return mapResourceRepoError(err, params.ID)
		}
		res = current
		return nil
	})
	if err != nil {
		res = persistence.Resource{}
	}
	return
}

// UpdateResourceQuantity sets a new total. Available shifts by the same
// amount, so units held by bookings stay held. The total cannot drop below
// the number of reserved units.
func (s *ResourceService) UpdateResourceQuantity(ctx context.Context, params UpdateQuantityParams) (res persistence.Resource, err error) {
	logger := s.loggerWith(ctx, "UpdateResourceQuantity",
		"principal_id", params.Principal.UserID,
		"resource_id", params.ResourceID,
		"total_quantity", params.TotalQuantity,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update resource quantity")
			return
		}
		logger.With("available_quantity", res.AvailableQuantity).InfoContext(ctx, "resource quantity updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if params.TotalQuantity < 0 {
		err = fieldError("total_quantity", "total quantity cannot be negative")
		return
	}
	if params.TotalQuantity > ledger.MaxQuantity {
		err = fieldError("total_quantity", quantityTooLargeMessage)
		return
	}

	err = s.withResourceLock(ctx, params.ResourceID, func(ctx context.Context, tx persistence.Tx) error {
		current, err := tx.GetResource(ctx, params.ResourceID)
		if err != nil {
			return mapResourceRepoError(err, params.ResourceID)
		}

		reserved := current.TotalQuantity - current.AvailableQuantity
		if params.TotalQuantity < reserved {
			return fieldError("total_quantity",
				fmt.Sprintf("total quantity cannot be below the %d units currently reserved", reserved))
		}

		expected := persistence.Quantities{Total: current.TotalQuantity, Available: current.AvailableQuantity}
		next := persistence.Quantities{Total: params.TotalQuantity, Available: params.TotalQuantity - reserved}
		swapped, err := tx.CompareAndSwapQuantities(ctx, current.ID, expected, next)
		if err != nil {
			return mapResourceRepoError(err, current.ID)
		}
		if !swapped {
			return retryable(fmt.Errorf("resource %s quantities changed concurrently", current.ID))
		}

		current.TotalQuantity = next.Total
		current.AvailableQuantity = next.Available
		res = current
		return nil
	})
	if err != nil {
		res = persistence.Resource{}
	}
	return
}

// DeleteResource removes a resource that no booking references.
func (s *ResourceService) DeleteResource(ctx context.Context, principal Principal, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteResource",
		"principal_id", principal.UserID,
		"resource_id", id,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to delete resource")
			return
		}
		logger.InfoContext(ctx, "resource deleted")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	err = s.withResourceLock(ctx, id, func(ctx context.Context, tx persistence.Tx) error {
		if _, err := tx.GetResource(ctx, id); err != nil {
			return mapResourceRepoError(err, id)
		}
		active, err := tx.CountActiveEventsForResource(ctx, id)
		if err != nil {
			return mapStorageError(err)
		}
		if active > 0 {
			return &InUseError{Entity: entityResource, ID: id, ActiveBookings: active}
		}
		return mapResourceRepoError(tx.DeleteResource(ctx, id), id)
	})
	return
}

func (s *ResourceService) withResourceLock(ctx context.Context, id string, fn func(ctx context.Context, tx persistence.Tx) error) error {
	unlock, err := s.locker.Acquire(ctx, lock.ResourceKey(id))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return retryable(err)
		}
		return err
	}
	defer unlock()
	return s.store.WithinTx(ctx, fn)
}

func mapResourceRepoError(err error, id string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return &NotFoundError{Entity: entityResource, ID: id}
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return &InUseError{Entity: entityResource, ID: id}
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("total_quantity", "quantities must satisfy 0 <= available <= total")
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("resource %s already exists: %w", id, err)
	}
	return mapStorageError(err)
}
