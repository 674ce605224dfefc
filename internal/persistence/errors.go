package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same identity already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a write breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a write references a missing row
	// or a delete would orphan dependent rows.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrBusy is returned when the backend could not obtain its locks in time.
	ErrBusy = errors.New("persistence: storage busy")
)
