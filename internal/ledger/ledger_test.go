package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	resources map[string]Resource
	// failCAS forces the named resource's next compare-and-set to lose.
	failCAS map[string]bool
	casErr  error
}

func newMemoryStore(resources ...Resource) *memoryStore {
	s := &memoryStore{resources: make(map[string]Resource), failCAS: make(map[string]bool)}
	for _, r := range resources {
		s.resources[r.ID] = r
	}
	return s
}

func (s *memoryStore) GetResource(ctx context.Context, id string) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return Resource{}, ErrResourceNotFound
	}
	return r, nil
}

func (s *memoryStore) CompareAndSwapAvailable(ctx context.Context, id string, expected, next int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casErr != nil {
		return false, s.casErr
	}
	if s.failCAS[id] {
		delete(s.failCAS, id)
		return false, nil
	}
	r, ok := s.resources[id]
	if !ok || r.Available != expected || next < 0 || next > r.Total {
		return false, nil
	}
	r.Available = next
	s.resources[id] = r
	return true, nil
}

func (s *memoryStore) available(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources[id].Available
}

func resource(id string, total, available int) Resource {
	return Resource{ID: id, Name: id, Total: total, Available: available, IsAvailable: true}
}

func TestNetDeltas(t *testing.T) {
	t.Run("nets increases and decreases per resource", func(t *testing.T) {
		prior := []Line{{ResourceID: "x", Quantity: 2}, {ResourceID: "y", Quantity: 3}}
		next := []Line{{ResourceID: "x", Quantity: 4}, {ResourceID: "z", Quantity: 1}}

		got, err := NetDeltas(prior, next)
		require.NoError(t, err)

		assert.Equal(t, []Delta{
			{ResourceID: "x", Amount: 2},
			{ResourceID: "y", Amount: -3},
			{ResourceID: "z", Amount: 1},
		}, got)
	})

	t.Run("duplicate lines are summed and unchanged claims dropped", func(t *testing.T) {
		prior := []Line{{ResourceID: "x", Quantity: 3}}
		next := []Line{{ResourceID: "x", Quantity: 1}, {ResourceID: "x", Quantity: 2}}

		got, err := NetDeltas(prior, next)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("summed lines beyond MaxQuantity are rejected instead of wrapping", func(t *testing.T) {
		next := []Line{{ResourceID: "x", Quantity: math.MaxInt}, {ResourceID: "x", Quantity: math.MaxInt}}

		got, err := NetDeltas(nil, next)

		require.ErrorIs(t, err, ErrQuantityOutOfRange)
		var rErr *QuantityRangeError
		require.ErrorAs(t, err, &rErr)
		assert.Equal(t, "x", rErr.ResourceID)
		assert.Nil(t, got)
	})

	t.Run("a sum just over the bound is rejected", func(t *testing.T) {
		next := []Line{{ResourceID: "x", Quantity: MaxQuantity}, {ResourceID: "x", Quantity: 1}}

		_, err := NetDeltas(nil, next)

		var rErr *QuantityRangeError
		require.ErrorAs(t, err, &rErr)
		assert.Equal(t, int64(MaxQuantity)+1, rErr.Quantity)
	})

	t.Run("negative lines are rejected", func(t *testing.T) {
		_, err := NetDeltas([]Line{{ResourceID: "x", Quantity: -2}}, nil)
		require.ErrorIs(t, err, ErrQuantityOutOfRange)
	})
}

func TestLedgerApply(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves and releases round trip", func(t *testing.T) {
		store := newMemoryStore(resource("x", 5, 5), resource("y", 2, 2))
		l := New(store)

		lines := []Line{{ResourceID: "x", Quantity: 3}, {ResourceID: "y", Quantity: 2}}
		require.NoError(t, l.Reserve(ctx, lines))
		assert.Equal(t, 2, store.available("x"))
		assert.Equal(t, 0, store.available("y"))

		require.NoError(t, l.Release(ctx, lines))
		assert.Equal(t, 5, store.available("x"))
		assert.Equal(t, 2, store.available("y"))
	})

	t.Run("overflowing reservation leaves quantities unchanged", func(t *testing.T) {
		store := newMemoryStore(resource("x", 5, 2))
		l := New(store)

		err := l.Reserve(ctx, []Line{{ResourceID: "x", Quantity: math.MaxInt}, {ResourceID: "x", Quantity: math.MaxInt}})

		require.ErrorIs(t, err, ErrQuantityOutOfRange)
		assert.Equal(t, 2, store.available("x"))
	})

	t.Run("overflowing delta batch is rejected", func(t *testing.T) {
		store := newMemoryStore(resource("x", 5, 5))
		l := New(store)

		err := l.Apply(ctx, []Delta{{ResourceID: "x", Amount: math.MaxInt}, {ResourceID: "x", Amount: math.MaxInt}})

		require.ErrorIs(t, err, ErrQuantityOutOfRange)
		assert.Equal(t, 5, store.available("x"))
	})

	t.Run("insufficient quantity leaves every resource unchanged", func(t *testing.T) {
		store := newMemoryStore(resource("x", 5, 5), resource("y", 5, 2))
		l := New(store)

		err := l.Apply(ctx, []Delta{{ResourceID: "x", Amount: 1}, {ResourceID: "y", Amount: 3}})

		var qErr *InsufficientQuantityError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, 3, qErr.Requested)
		assert.Equal(t, 2, qErr.Available)
		assert.Equal(t, 5, store.available("x"))
		assert.Equal(t, 2, store.available("y"))
	})

	t.Run("unknown resources are reported", func(t *testing.T) {
		l := New(newMemoryStore())

		err := l.Apply(ctx, []Delta{{ResourceID: "ghost", Amount: 1}})

		var nfErr *ResourceNotFoundError
		require.ErrorAs(t, err, &nfErr)
		assert.Equal(t, "ghost", nfErr.ResourceID)
	})

	t.Run("disabled resources reject reservations but accept releases", func(t *testing.T) {
		disabled := resource("x", 5, 3)
		disabled.IsAvailable = false
		store := newMemoryStore(disabled)
		l := New(store)

		err := l.Apply(ctx, []Delta{{ResourceID: "x", Amount: 1}})
		require.ErrorIs(t, err, ErrResourceUnavailable)

		require.NoError(t, l.Apply(ctx, []Delta{{ResourceID: "x", Amount: -2}}))
		assert.Equal(t, 5, store.available("x"))
	})

	t.Run("releases beyond the total are invariant violations", func(t *testing.T) {
		store := newMemoryStore(resource("x", 5, 4))
		l := New(store)

		err := l.Apply(ctx, []Delta{{ResourceID: "x", Amount: -2}})

		require.ErrorIs(t, err, ErrInvariantViolation)
		assert.Equal(t, 4, store.available("x"))
	})

	t.Run("lost compare-and-set reverts earlier changes", func(t *testing.T) {
		store := newMemoryStore(resource("a", 5, 5), resource("b", 5, 5))
		store.failCAS["b"] = true
		l := New(store)

		err := l.Apply(ctx, []Delta{{ResourceID: "a", Amount: 2}, {ResourceID: "b", Amount: 2}})

		require.ErrorIs(t, err, ErrConcurrentUpdate)
		assert.Equal(t, 5, store.available("a"))
		assert.Equal(t, 5, store.available("b"))
	})

	t.Run("storage errors are wrapped", func(t *testing.T) {
		boom := errors.New("disk gone")
		store := newMemoryStore(resource("a", 5, 5))
		store.casErr = boom

		err := New(store).Apply(ctx, []Delta{{ResourceID: "a", Amount: 1}})

		require.ErrorIs(t, err, boom)
	})

	t.Run("concurrent reservations never overdraw", func(t *testing.T) {
		const total = 5
		store := newMemoryStore(resource("x", total, total))
		l := New(store)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					err := l.Reserve(ctx, []Line{{ResourceID: "x", Quantity: 1}})
					if errors.Is(err, ErrConcurrentUpdate) {
						continue
					}
					if err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					}
					return
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, total, successes)
		assert.Equal(t, 0, store.available("x"))
	})
}
