package ratings

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/clock"
)

// Sessions keeps one Store per signed-in user. Stores leave on SignOut or, when the owner calls
// EvictIdle, after a period without Get.
type Sessions struct {
	newStore func(domain.UserID) *Store
	now      func() time.Time

	mu       sync.Mutex
	stores   map[domain.UserID]*Store
	lastUsed map[domain.UserID]time.Time
	loads    singleflight.Group
}

type SessionsOption func(*Sessions)

// WithSessionClock sets the clock that stamps the last use of a session.
func WithSessionClock(clk clock.Clock) SessionsOption {
	return func(s *Sessions) { s.now = clk.Now }
}

func NewSessions(newStore func(domain.UserID) *Store, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		newStore: newStore,
		now:      time.Now,
		stores:   make(map[domain.UserID]*Store),
		lastUsed: make(map[domain.UserID]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user's store, loading it when it has not loaded successfully yet.
// Concurrent first calls share one store and one load.
func (s *Sessions) Get(ctx context.Context, userID domain.UserID) (*Store, error) {
	if userID == "" {
		return nil, validationError(msgNoUser, map[string]any{"userId": "is required"})
	}
	s.mu.Lock()
	st, ok := s.stores[userID]
	if !ok {
		st = s.newStore(userID)
		s.stores[userID] = st
	}
	s.lastUsed[userID] = s.now()
	s.mu.Unlock()

	if st.Ready() {
		return st, nil
	}
	// The shared load outlives the cancellation of any single caller.
	loadCtx := context.WithoutCancel(ctx)
	_, err, _ := s.loads.Do(string(userID), func() (any, error) {
		if st.Ready() {
			return nil, nil
		}
		return nil, st.Load(loadCtx, userID)
	})
	if err != nil {
		return st, err
	}
	return st, nil
}

// Peek returns the user's store without loading it.
func (s *Sessions) Peek(userID domain.UserID) (*Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[userID]
	return st, ok
}

// SignOut resets and forgets the user's store. It reports whether a session existed.
func (s *Sessions) SignOut(userID domain.UserID) bool {
	s.mu.Lock()
	st, ok := s.stores[userID]
	delete(s.stores, userID)
	delete(s.lastUsed, userID)
	s.mu.Unlock()
	if ok {
		st.Reset()
	}
	return ok
}

// EvictIdle forgets every store not used since before and returns how many went. Evicted stores
// are not reset; the next Get reloads from the document store.
func (s *Sessions) EvictIdle(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.lastUsed {
		if at.Before(before) {
			delete(s.stores, id)
			delete(s.lastUsed, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores)
}
