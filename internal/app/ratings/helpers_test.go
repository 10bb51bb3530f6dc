package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	memclock "github.com/travelmap/ratings-api/internal/adapters/memory/clock"
	memdocstore "github.com/travelmap/ratings-api/internal/adapters/memory/docstore"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

var errBackendDown = errors.New("backend down")

// flakyDocs wraps a document store and fails the operations named in failOps.
type flakyDocs struct {
	docstore.Store

	mu      sync.Mutex
	failOps map[string]bool
	calls   map[string]int
}

func newFlakyDocs(inner docstore.Store) *flakyDocs {
	return &flakyDocs{Store: inner, failOps: map[string]bool{}, calls: map[string]int{}}
}

func (f *flakyDocs) setFail(op string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps[op] = fail
}

func (f *flakyDocs) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failOps[op] {
		return errBackendDown
	}
	return nil
}

func (f *flakyDocs) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyDocs) Read(ctx context.Context, p docstore.Path) (json.RawMessage, bool, error) {
	if err := f.hit("read"); err != nil {
		return nil, false, err
	}
	return f.Store.Read(ctx, p)
}

func (f *flakyDocs) Write(ctx context.Context, p docstore.Path, v any) error {
	if err := f.hit("write"); err != nil {
		return err
	}
	return f.Store.Write(ctx, p, v)
}

func (f *flakyDocs) Merge(ctx context.Context, p docstore.Path, fields map[string]any) error {
	if err := f.hit("merge"); err != nil {
		return err
	}
	return f.Store.Merge(ctx, p, fields)
}

func (f *flakyDocs) Delete(ctx context.Context, p docstore.Path) error {
	if err := f.hit("delete"); err != nil {
		return err
	}
	return f.Store.Delete(ctx, p)
}

var t0 = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	docs  *flakyDocs
	clock *memclock.ManualClock
	store *Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	docs := newFlakyDocs(memdocstore.NewStore())
	clk := memclock.NewManualClock(t0)
	return &fixture{docs: docs, clock: clk, store: NewStore(docs, clk, opts...)}
}

// loaded returns a fixture whose store has loaded user "u1" with an empty collection.
func loaded(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	if err := f.store.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	return f
}

func mustCreate(t *testing.T, s *Store, code domain.CountryCode, r domain.Ratings) domain.RatingRecord {
	t.Helper()
	rec, err := s.Create(context.Background(), "u1", CreateInput{CountryCode: code, Ratings: r, Comments: "c-" + string(code)})
	if err != nil {
		t.Fatalf("Create(%s) err=%v", code, err)
	}
	return rec
}
