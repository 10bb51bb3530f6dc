package events

import (
	"testing"

	"github.com/travelmap/ratings-api/internal/adapters/contracttest"
	eventsport "github.com/travelmap/ratings-api/internal/ports/out/events"
)

func TestContract_EventBus(t *testing.T) {
	contracttest.RunEventBus(t, func(t *testing.T) (eventsport.Bus, func()) {
		t.Helper()
		b := NewBus()
		return b, func() { _ = b.Close() }
	})
}
