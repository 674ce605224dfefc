package memory_test

import (
	"testing"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/persistence/memory"
	"github.com/example/room-booking/internal/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		return memory.New()
	})
}
