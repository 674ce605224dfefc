package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/room-booking/internal/persistence"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()

	store, err := OpenPath(path, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booking.db")
	store := newTestStore(t, path)

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "booking.db")

	first, err := OpenPath(path, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := first.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	room := persistence.Room{ID: "room-1", Name: "Atlas", Capacity: 8, IsAvailable: true, CreatedAt: now, UpdatedAt: now}
	if err := first.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	second := newTestStore(t, path)
	got, err := second.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom after reopen failed: %v", err)
	}
	if got.Name != "Atlas" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected room after reopen: %#v", got)
	}
}

func TestCheckConstraintsSurfaceAsConstraintViolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, filepath.Join(t.TempDir(), "booking.db"))

	err := store.CreateResource(ctx, persistence.Resource{ID: "res-1", Name: "Projector", TotalQuantity: 2, AvailableQuantity: 3})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestConcurrentCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, filepath.Join(t.TempDir(), "booking.db"))

	if err := store.CreateResource(ctx, persistence.Resource{
		ID: "res-1", Name: "Chairs", TotalQuantity: 10, AvailableQuantity: 10, IsAvailable: true,
	}); err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		workers = 8
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
				res, err := tx.GetResource(ctx, "res-1")
				if err != nil {
					return err
				}
				ok, err := tx.CompareAndSwapAvailable(ctx, "res-1", res.AvailableQuantity, res.AvailableQuantity-1)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("lost swap")
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	res, err := store.GetResource(ctx, "res-1")
	if err != nil {
		t.Fatalf("GetResource failed: %v", err)
	}
	if res.AvailableQuantity != 10-wins {
		t.Fatalf("expected available %d after %d wins, got %d", 10-wins, wins, res.AvailableQuantity)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: persistence.ErrNotFound},
		{name: "foreign key", err: errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), want: persistence.ErrForeignKeyViolation},
		{name: "unique", err: errors.New("constraint failed: UNIQUE constraint failed: rooms.id (1555)"), want: persistence.ErrDuplicate},
		{name: "check", err: errors.New("constraint failed: CHECK constraint failed: capacity > 0 (275)"), want: persistence.ErrConstraintViolation},
		{name: "busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: persistence.ErrBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if mapError(nil) != nil {
		t.Fatal("mapError(nil) should be nil")
	}
}
