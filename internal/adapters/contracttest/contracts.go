package contracttest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/travelmap/ratings-api/internal/domain"
	docstoreport "github.com/travelmap/ratings-api/internal/ports/out/docstore"
	eventsport "github.com/travelmap/ratings-api/internal/ports/out/events"
	idempotencyport "github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

type CleanupFunc = func()

type DocStoreFactory func(t *testing.T) (docstoreport.Store, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)
type EventBusFactory func(t *testing.T) (eventsport.Bus, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		UserID:   domain.UserID("user-1"),
		Method:   "PUT",
		Route:    "/me/countries/{countryCode}",
		BodyHash: "abc",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get(missing) ok=%v err=%v, want false,nil", ok, err)
	}

	rec := idempotencyport.Record{
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"countryCode":"FRA"}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != string(rec.Body) || got.ContentType != rec.ContentType || got.StatusCode != rec.StatusCode {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Any fingerprint component change is a different request.
	other := fp
	other.UserID = "user-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get(other user) ok=%v err=%v, want false,nil", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"countryCode":"ESP"}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != string(rec2.Body) {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	// Prune drops only records older than the cutoff.
	fresh := fp
	fresh.Key = idempotencyport.Key("k-" + uuid.NewString())
	freshRec := rec
	freshRec.CreatedAt = time.Unix(5000, 0).UTC()
	if err := store.Put(ctx, fresh, freshRec); err != nil {
		t.Fatalf("Put fresh: %v", err)
	}
	n, err := store.Prune(ctx, time.Unix(1000, 0).UTC())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n < 1 {
		t.Fatalf("Prune() n=%d, want >=1", n)
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get(pruned) ok=%v err=%v, want false,nil", ok, err)
	}
	if _, ok, err := store.Get(ctx, fresh); err != nil || !ok {
		t.Fatalf("Get(fresh) ok=%v err=%v, want true,nil", ok, err)
	}
}

// RunDocumentStore checks the key-path semantics every document store adapter must share.
// Each run works under a fresh random root so shared backends need no cleanup between runs.
func RunDocumentStore(t *testing.T, newStore DocStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	root := docstoreport.Path("ct-" + uuid.NewString())
	user := root.Child("u1")
	fra := user.Child("FRA")
	esp := user.Child("ESP")

	readJSON := func(p docstoreport.Path) (any, bool) {
		t.Helper()
		raw, ok, err := store.Read(ctx, p)
		if err != nil {
			t.Fatalf("Read(%s): %v", p, err)
		}
		if !ok {
			return nil, false
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("Read(%s) returned invalid JSON %q: %v", p, string(raw), err)
		}
		return v, true
	}
	mustEqual := func(p docstoreport.Path, want any) {
		t.Helper()
		got, ok := readJSON(p)
		if !ok {
			t.Fatalf("Read(%s) found=false, want %v", p, want)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Read(%s) mismatch (-want +got):\n%s", p, diff)
		}
	}
	mustAbsent := func(p docstoreport.Path) {
		t.Helper()
		if got, ok := readJSON(p); ok {
			t.Fatalf("Read(%s)=%v, want absent", p, got)
		}
	}

	mustAbsent(user)

	record := map[string]any{
		"countryCode": "FRA",
		"ratings":     map[string]any{"note": 5, "food": 4, "culture": 3, "price": 2},
		"comments":    "bon",
	}
	if err := store.Write(ctx, fra, record); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mustEqual(fra, map[string]any{
		"countryCode": "FRA",
		"ratings":     map[string]any{"note": 5.0, "food": 4.0, "culture": 3.0, "price": 2.0},
		"comments":    "bon",
	})

	if err := store.Write(ctx, esp, map[string]any{"countryCode": "ESP"}); err != nil {
		t.Fatalf("Write esp: %v", err)
	}
	mustEqual(user, map[string]any{
		"FRA": map[string]any{
			"countryCode": "FRA",
			"ratings":     map[string]any{"note": 5.0, "food": 4.0, "culture": 3.0, "price": 2.0},
			"comments":    "bon",
		},
		"ESP": map[string]any{"countryCode": "ESP"},
	})
	mustEqual(fra.Child("ratings").Child("note"), 5.0)

	// A top-level read returns every child subtree.
	got, ok := readJSON(root)
	if !ok {
		t.Fatalf("Read(root) found=false")
	}
	if m, _ := got.(map[string]any); len(m) != 1 {
		t.Fatalf("Read(root)=%v, want one child", got)
	}

	// Write overwrites descendants.
	if err := store.Write(ctx, fra, map[string]any{"countryCode": "FRA", "ratings": map[string]any{"note": 1}}); err != nil {
		t.Fatalf("Write overwrite: %v", err)
	}
	mustEqual(fra, map[string]any{"countryCode": "FRA", "ratings": map[string]any{"note": 1.0}})

	// Merge is shallow: named fields are replaced whole, others kept, nil removes.
	if err := store.Merge(ctx, fra, map[string]any{
		"ratings":  map[string]any{"note": 2, "food": 3},
		"comments": "encore",
	}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	mustEqual(fra, map[string]any{
		"countryCode": "FRA",
		"ratings":     map[string]any{"note": 2.0, "food": 3.0},
		"comments":    "encore",
	})
	if err := store.Merge(ctx, fra, map[string]any{"comments": nil}); err != nil {
		t.Fatalf("Merge nil field: %v", err)
	}
	mustEqual(fra, map[string]any{"countryCode": "FRA", "ratings": map[string]any{"note": 2.0, "food": 3.0}})

	// Merge creates an absent node.
	ita := user.Child("ITA")
	if err := store.Merge(ctx, ita, map[string]any{"countryCode": "ITA"}); err != nil {
		t.Fatalf("Merge absent: %v", err)
	}
	mustEqual(ita, map[string]any{"countryCode": "ITA"})

	// Merge onto a scalar is rejected.
	if err := store.Merge(ctx, ita.Child("countryCode"), map[string]any{"x": 1}); !errors.Is(err, docstoreport.ErrNotObject) {
		t.Fatalf("Merge scalar err=%v, want ErrNotObject", err)
	}

	// Null write deletes.
	if err := store.Write(ctx, ita, nil); err != nil {
		t.Fatalf("Write nil: %v", err)
	}
	mustAbsent(ita)

	// Delete removes the node; deleting again is fine.
	if err := store.Delete(ctx, esp); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	mustAbsent(esp)
	if err := store.Delete(ctx, esp); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	mustEqual(fra.Child("countryCode"), "FRA")

	// Emptied parents read as absent.
	if err := store.Delete(ctx, fra); err != nil {
		t.Fatalf("Delete last child: %v", err)
	}
	mustAbsent(user)
	mustAbsent(root)

	// Every operation validates its path.
	bad := root.Child("u.1")
	if _, _, err := store.Read(ctx, bad); !errors.Is(err, docstoreport.ErrInvalidPath) {
		t.Fatalf("Read bad path err=%v, want ErrInvalidPath", err)
	}
	if err := store.Write(ctx, bad, "x"); !errors.Is(err, docstoreport.ErrInvalidPath) {
		t.Fatalf("Write bad path err=%v, want ErrInvalidPath", err)
	}
	if err := store.Merge(ctx, bad, map[string]any{"a": 1}); !errors.Is(err, docstoreport.ErrInvalidPath) {
		t.Fatalf("Merge bad path err=%v, want ErrInvalidPath", err)
	}
	if err := store.Delete(ctx, bad); !errors.Is(err, docstoreport.ErrInvalidPath) {
		t.Fatalf("Delete bad path err=%v, want ErrInvalidPath", err)
	}
	if err := store.Merge(ctx, user, map[string]any{"a#b": 1}); !errors.Is(err, docstoreport.ErrInvalidPath) {
		t.Fatalf("Merge bad field err=%v, want ErrInvalidPath", err)
	}
}

// RunEventBus checks per-user delivery and cancellation.
func RunEventBus(t *testing.T, newBus EventBusFactory) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	bus, cleanup := newBus(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	alice := domain.UserID("alice-" + uuid.NewString())
	bob := domain.UserID("bob-" + uuid.NewString())

	got := make(chan eventsport.Event, 8)
	cancel, err := bus.Subscribe(ctx, alice, func(ev eventsport.Event) {
		select {
		case got <- ev:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	rec := &domain.RatingRecord{
		CountryCode:   "FRA",
		UserID:        alice,
		Ratings:       domain.Ratings{Note: 5, Food: 5, Culture: 5, Price: 1},
		GeneralRating: 5,
		CreatedAt:     time.Unix(100, 0).UTC(),
		UpdatedAt:     time.Unix(100, 0).UTC(),
	}
	// Subscriptions on remote brokers may take a moment to become active.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	var first eventsport.Event
waitFirst:
	for {
		ev := eventsport.Event{ID: uuid.NewString(), UserID: alice, Kind: eventsport.KindRatingCreated, CountryCode: "FRA", Record: rec, OccurredAt: time.Unix(100, 0).UTC()}
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case first = <-got:
			break waitFirst
		case <-tick.C:
		case <-deadline:
			t.Fatalf("timed out waiting for event")
		}
	}
	if first.UserID != alice || first.Kind != eventsport.KindRatingCreated || first.Record == nil || first.Record.Ratings != rec.Ratings {
		t.Fatalf("unexpected event: %+v", first)
	}
	if !first.Record.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("CreatedAt=%v, want %v", first.Record.CreatedAt, rec.CreatedAt)
	}

	// Drain retries of the first publish.
	drain := time.After(300 * time.Millisecond)
drained:
	for {
		select {
		case <-got:
		case <-drain:
			break drained
		}
	}

	// Other users' events are not delivered.
	if err := bus.Publish(ctx, eventsport.Event{ID: uuid.NewString(), UserID: bob, Kind: eventsport.KindSessionReset, OccurredAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Publish bob: %v", err)
	}
	marker := eventsport.Event{ID: uuid.NewString(), UserID: alice, Kind: eventsport.KindSelectionChanged, CountryCode: "ESP", OccurredAt: time.Now().UTC()}
	if err := bus.Publish(ctx, marker); err != nil {
		t.Fatalf("Publish marker: %v", err)
	}
	select {
	case ev := <-got:
		if ev.ID != marker.ID {
			t.Fatalf("got event %+v, want marker %s", ev, marker.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for marker")
	}

	// After cancel nothing more arrives.
	cancel()
	_ = bus.Publish(ctx, eventsport.Event{ID: uuid.NewString(), UserID: alice, Kind: eventsport.KindSessionReset, OccurredAt: time.Now().UTC()})
	select {
	case ev := <-got:
		t.Fatalf("received %+v after cancel", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
