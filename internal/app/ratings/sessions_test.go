package ratings

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	memclock "github.com/travelmap/ratings-api/internal/adapters/memory/clock"
	memdocstore "github.com/travelmap/ratings-api/internal/adapters/memory/docstore"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

func newSessionsFixture(t *testing.T) (*Sessions, *flakyDocs) {
	t.Helper()
	docs := newFlakyDocs(memdocstore.NewStore())
	clk := memclock.NewManualClock(t0)
	return NewSessions(func(domain.UserID) *Store { return NewStore(docs, clk) }), docs
}

func TestSessions_GetLoadsOnceAndShares(t *testing.T) {
	t.Parallel()

	s, docs := newSessionsFixture(t)

	var wg sync.WaitGroup
	got := make([]*Store, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := s.Get(context.Background(), "u1")
			if err != nil {
				t.Errorf("Get() err=%v", err)
			}
			got[i] = st
		}(i)
	}
	wg.Wait()

	for _, st := range got[1:] {
		if st != got[0] {
			t.Fatalf("Get() returned different stores for one user")
		}
	}
	if !got[0].Ready() {
		t.Fatalf("store not loaded")
	}
	if n := docs.count("read"); n != 1 {
		t.Fatalf("read calls=%d, want 1", n)
	}

	if _, err := s.Get(context.Background(), "u1"); err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if n := docs.count("read"); n != 1 {
		t.Fatalf("read calls after ready=%d, want 1", n)
	}
}

func TestSessions_FailedLoadRetriesOnNextGet(t *testing.T) {
	t.Parallel()

	s, docs := newSessionsFixture(t)
	docs.setFail("read", true)
	if _, err := s.Get(context.Background(), "u1"); !IsTransport(err) {
		t.Fatalf("Get() err=%v, want transport", err)
	}
	docs.setFail("read", false)
	st, err := s.Get(context.Background(), "u1")
	if err != nil || !st.Ready() {
		t.Fatalf("Get() retry err=%v ready=%v", err, st != nil && st.Ready())
	}
}

func TestSessions_SignOutResetsAndForgets(t *testing.T) {
	t.Parallel()

	s, _ := newSessionsFixture(t)
	st, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if _, err := st.Create(context.Background(), "u1", CreateInput{CountryCode: "FRA", Ratings: domain.Ratings{Price: 1}}); err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	if !s.SignOut("u1") {
		t.Fatalf("SignOut() = false, want true")
	}
	if len(st.State().Countries) != 0 || st.Ready() {
		t.Fatalf("signed-out store not reset: %+v", st.State())
	}
	if _, ok := s.Peek("u1"); ok {
		t.Fatalf("Peek() found a signed-out session")
	}
	if s.SignOut("u1") {
		t.Fatalf("second SignOut() = true")
	}

	// Data survives remotely and is reloaded into a fresh store.
	again, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if again == st {
		t.Fatalf("Get() after sign-out returned the old store")
	}
	if _, ok := again.Lookup("FRA"); !ok {
		t.Fatalf("reloaded store missing FRA")
	}
}

func TestSessions_RejectsEmptyUser(t *testing.T) {
	t.Parallel()

	s, _ := newSessionsFixture(t)
	if _, err := s.Get(context.Background(), ""); !IsValidation(err) {
		t.Fatalf("Get(\"\") err=%v, want validation", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len()=%d, want 0", s.Len())
	}
}

// ctxDocs fails reads whose context is already done.
type ctxDocs struct {
	docstore.Store
}

func (d ctxDocs) Read(ctx context.Context, p docstore.Path) (json.RawMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return d.Store.Read(ctx, p)
}

func TestSessions_SharedLoadIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	docs := ctxDocs{Store: memdocstore.NewStore()}
	clk := memclock.NewManualClock(t0)
	s := NewSessions(func(domain.UserID) *Store { return NewStore(docs, clk) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get(cancelled ctx) err=%v", err)
	}
	if !st.Ready() {
		t.Fatalf("store not loaded")
	}
}

func TestSessions_EvictIdle(t *testing.T) {
	t.Parallel()

	docs := newFlakyDocs(memdocstore.NewStore())
	clk := memclock.NewManualClock(t0)
	s := NewSessions(func(domain.UserID) *Store { return NewStore(docs, clk) }, WithSessionClock(clk))

	old, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get(u1) err=%v", err)
	}
	if _, err := old.Create(context.Background(), "u1", CreateInput{CountryCode: "FRA", Ratings: domain.Ratings{Price: 1}}); err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	clk.Advance(time.Hour)
	if _, err := s.Get(context.Background(), "u2"); err != nil {
		t.Fatalf("Get(u2) err=%v", err)
	}

	if n := s.EvictIdle(clk.Now().Add(-30 * time.Minute)); n != 1 {
		t.Fatalf("EvictIdle()=%d, want 1", n)
	}
	if _, ok := s.Peek("u1"); ok {
		t.Fatalf("idle session u1 still present")
	}
	if _, ok := s.Peek("u2"); !ok {
		t.Fatalf("recent session u2 evicted")
	}
	if !old.Ready() {
		t.Fatalf("evicted store was reset")
	}

	again, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get(u1) after eviction err=%v", err)
	}
	if again == old {
		t.Fatalf("Get() after eviction returned the evicted store")
	}
	if _, ok := again.Lookup("FRA"); !ok {
		t.Fatalf("reloaded store missing FRA")
	}
	if n := docs.count("read"); n != 3 {
		t.Fatalf("read calls=%d, want 3", n)
	}
}
