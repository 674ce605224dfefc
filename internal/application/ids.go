package application

import "github.com/google/uuid"

// NewUUIDGenerator returns an ID generator producing random UUIDv4 strings.
func NewUUIDGenerator() func() string {
	return func() string { return uuid.NewString() }
}
