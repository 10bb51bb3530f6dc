package events

import (
	"context"
	"sync"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
)

// Bus is an in-process events.Bus. Publish calls handlers synchronously on the
// publishing goroutine. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[domain.UserID]map[uint64]events.Handler
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[domain.UserID]map[uint64]events.Handler)}
}

func (b *Bus) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	handlers := make([]events.Handler, 0, len(b.subs[ev.UserID]))
	for _, h := range b.subs[ev.UserID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, userID domain.UserID, fn events.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[uint64]events.Handler)
	}
	b.subs[userID][id] = fn

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[domain.UserID]map[uint64]events.Handler)
	return nil
}
