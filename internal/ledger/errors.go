package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceNotFound indicates the referenced resource does not exist.
	ErrResourceNotFound = errors.New("ledger: resource not found")
	// ErrResourceUnavailable indicates the resource is administratively disabled.
	ErrResourceUnavailable = errors.New("ledger: resource unavailable")
	// ErrInsufficientQuantity indicates a reservation exceeds the available quantity.
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity")
	// ErrConcurrentUpdate indicates a compare-and-set lost against another writer.
	ErrConcurrentUpdate = errors.New("ledger: concurrent update")
	// ErrQuantityOutOfRange indicates a line or summed claim outside [0, MaxQuantity].
	ErrQuantityOutOfRange = errors.New("ledger: quantity out of range")
	// ErrInvariantViolation indicates stored quantities are outside [0, total].
	ErrInvariantViolation = errors.New("ledger: quantity invariant violated")
)

// ResourceNotFoundError names the missing resource.
type ResourceNotFoundError struct {
	ResourceID string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("ledger: resource %s not found", e.ResourceID)
}

// Is matches ErrResourceNotFound.
func (e *ResourceNotFoundError) Is(target error) bool {
	return target == ErrResourceNotFound
}

// ResourceUnavailableError names the disabled resource.
type ResourceUnavailableError struct {
	ResourceID string
	Name       string
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("ledger: resource %s is not available", e.ResourceID)
}

// Is matches ErrResourceUnavailable.
func (e *ResourceUnavailableError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// InsufficientQuantityError carries the requested and available amounts.
type InsufficientQuantityError struct {
	ResourceID string
	Name       string
	Requested  int
	Available  int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("ledger: resource %s has %d available, %d requested", e.ResourceID, e.Available, e.Requested)
}

// Is matches ErrInsufficientQuantity.
func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

// InvariantError reports a quantity that would leave or already left [0, total].
type InvariantError struct {
	ResourceID string
	Available  int
	Total      int
	Delta      int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger: resource %s quantity invariant violated (available=%d total=%d delta=%d)",
		e.ResourceID, e.Available, e.Total, e.Delta)
}

// Is matches ErrInvariantViolation.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// QuantityRangeError reports a claim that cannot be represented.
type QuantityRangeError struct {
	ResourceID string
	Quantity   int64
}

func (e *QuantityRangeError) Error() string {
	return fmt.Sprintf("ledger: quantity %d for resource %s is outside [0, %d]", e.Quantity, e.ResourceID, MaxQuantity)
}

// Is matches ErrQuantityOutOfRange.
func (e *QuantityRangeError) Is(target error) bool {
	return target == ErrQuantityOutOfRange
}
