package events

import (
	"testing"

	"github.com/google/uuid"

	"github.com/travelmap/ratings-api/internal/adapters/contracttest"
	"github.com/travelmap/ratings-api/internal/adapters/redis/testutil"
	eventsport "github.com/travelmap/ratings-api/internal/ports/out/events"
)

func TestContract_RedisEventBus(t *testing.T) {
	rdb := testutil.OpenClient(t)

	contracttest.RunEventBus(t, func(t *testing.T) (eventsport.Bus, func()) {
		t.Helper()
		b := NewBus(rdb, "test-events-"+uuid.NewString(), nil)
		return b, func() { _ = b.Close() }
	})
}
