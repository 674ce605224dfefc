// Package lock provides keyed logical locks that serialize arbitration on
// rooms, resources and bookings. Every acquisition is bounded by a timeout.
package lock

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the keys could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// DefaultTimeout bounds how long Acquire waits.
const DefaultTimeout = 5 * time.Second

// Unlock releases every key taken by one Acquire call. It is safe to call more than once.
type Unlock func()

// Locker acquires a set of keys as one unit.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Unlock, error)
}

// RoomKey names the lock guarding a room's schedule.
func RoomKey(id string) string { return "room:" + id }

// ResourceKey names the lock guarding a resource's counters.
func ResourceKey(id string) string { return "resource:" + id }

// EventKey names the lock guarding a single booking.
func EventKey(id string) string { return "event:" + id }

// normalize sorts and deduplicates keys so that every caller acquires in the
// same global order.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// waitError reports why an acquisition stopped waiting. A cancelled caller
// gets its own context error back.
func waitError(parent context.Context, key string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return &TimeoutError{Key: key}
}

// TimeoutError names the key that could not be acquired.
type TimeoutError struct {
	Key string
}

func (e *TimeoutError) Error() string {
	return "lock acquisition timed out on " + e.Key
}

// Is makes TimeoutError match ErrLockTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

func once(fn func()) Unlock {
	var o sync.Once
	return func() { o.Do(fn) }
}
