package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker. It only serializes callers sharing the
// same Local value.
type Local struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns a Local locker. A non-positive timeout uses DefaultTimeout.
func NewLocal(timeout time.Duration) *Local {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Local{timeout: timeout, entries: make(map[string]*entry)}
}

// Acquire takes every key in sorted order or none of them.
func (l *Local) Acquire(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range keys {
		if err := l.lock(waitCtx, key); err != nil {
			releaseHeld()
			return nil, waitError(ctx, key)
		}
		held = append(held, key)
	}
	return once(releaseHeld), nil
}

func (l *Local) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, e)
		return ctx.Err()
	}
}

func (l *Local) unlock(key string) {
	l.mu.Lock()
	e := l.entries[key]
	l.mu.Unlock()
	<-e.ch
	l.release(key, e)
}

// release drops one reference and forgets idle keys.
func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
