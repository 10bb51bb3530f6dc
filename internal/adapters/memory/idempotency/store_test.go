package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

func TestStore_PutThenGet(t *testing.T) {
	t.Parallel()

	s := NewStore()
	fp := idempotency.Fingerprint{
		Key:      "k1",
		UserID:   domain.UserID("user-1"),
		Method:   "PUT",
		Route:    "/me/countries/{countryCode}",
		BodyHash: "abc123",
	}
	rec := idempotency.Record{
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"countryCode":"FRA"}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}

	if err := s.Put(context.Background(), fp, rec); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	got, ok, err := s.Get(context.Background(), fp)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if !ok {
		t.Fatalf("Get() ok=false, want true")
	}
	if got.StatusCode != rec.StatusCode || got.ContentType != rec.ContentType || string(got.Body) != string(rec.Body) {
		t.Fatalf("Get()=%+v, want %+v", got, rec)
	}
}

func TestStore_BodyIsCopied(t *testing.T) {
	t.Parallel()

	s := NewStore()
	fp := idempotency.Fingerprint{Key: "k2", UserID: "user-1", Method: "PATCH", Route: "/me/countries/{countryCode}"}
	body := []byte("original")
	if err := s.Put(context.Background(), fp, idempotency.Record{StatusCode: 200, Body: body}); err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	body[0] = 'X'

	got, _, _ := s.Get(context.Background(), fp)
	if string(got.Body) != "original" {
		t.Fatalf("Get().Body=%q, want original", string(got.Body))
	}
	got.Body[0] = 'Y'
	again, _, _ := s.Get(context.Background(), fp)
	if string(again.Body) != "original" {
		t.Fatalf("stored body mutated through Get(): %q", string(again.Body))
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := idempotency.Fingerprint{Key: idempotency.Key(string(rune('a' + i))), UserID: "u"}
			_ = s.Put(context.Background(), fp, idempotency.Record{StatusCode: 200})
			_, _, _ = s.Get(context.Background(), fp)
		}(i)
	}
	wg.Wait()
}

func TestStore_Prune(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{cutoff.Add(-time.Hour), cutoff, cutoff.Add(time.Hour)} {
		fp := idempotency.Fingerprint{Key: idempotency.Key(string(rune('a' + i))), UserID: "u"}
		if err := s.Put(ctx, fp, idempotency.Record{StatusCode: 200, CreatedAt: at}); err != nil {
			t.Fatalf("Put() err=%v", err)
		}
	}

	n, err := s.Prune(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("Prune() n=%d err=%v, want 1,nil", n, err)
	}
	if _, ok, _ := s.Get(ctx, idempotency.Fingerprint{Key: "a", UserID: "u"}); ok {
		t.Fatalf("record older than cutoff survived")
	}
	if _, ok, _ := s.Get(ctx, idempotency.Fingerprint{Key: "b", UserID: "u"}); !ok {
		t.Fatalf("record at cutoff was pruned")
	}
}
