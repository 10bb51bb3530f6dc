package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func TestIdempotency_ReplaysSameRequest(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	first := api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(3, 3, 3, 3, "a"), headerIdempotencyKey, "k-1")
	requireStatus(t, first, http.StatusCreated)
	if first.header.Get(headerReplayed) != "" {
		t.Fatalf("first response marked as replayed")
	}

	api.clk.Advance(time.Minute)
	second := api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(3, 3, 3, 3, "a"), headerIdempotencyKey, "k-1")
	requireStatus(t, second, http.StatusCreated)
	if second.header.Get(headerReplayed) != "true" {
		t.Fatalf("%s=%q want=true", headerReplayed, second.header.Get(headerReplayed))
	}
	if string(second.body) != string(first.body) {
		t.Fatalf("replayed body differs:\n%s\n%s", first.body, second.body)
	}

	// A fresh key runs the handler again; the record now exists.
	third := api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(3, 3, 3, 3, "a"), headerIdempotencyKey, "k-2")
	requireStatus(t, third, http.StatusOK)
}

func TestIdempotency_RejectsKeyReuseWithDifferentBody(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	requireStatus(t, api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(3, 3, 3, 3, "a"), headerIdempotencyKey, "k-1"), http.StatusCreated)

	res := api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(1, 1, 1, 1, "b"), headerIdempotencyKey, "k-1")
	requireError(t, res, http.StatusConflict, codeIdemReuse)

	res = api.do(t, http.MethodPut, "/me/countries/ESP", "alice", rating(3, 3, 3, 3, "a"), headerIdempotencyKey, "k-1")
	requireError(t, res, http.StatusConflict, codeIdemReuse)
}

func TestIdempotency_KeysAreScopedPerUser(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	requireStatus(t, api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(3, 3, 3, 3, ""), headerIdempotencyKey, "shared"), http.StatusCreated)
	res := api.do(t, http.MethodPut, "/me/countries/FRA", "bob", rating(3, 3, 3, 3, ""), headerIdempotencyKey, "shared")
	requireStatus(t, res, http.StatusCreated)
	if res.header.Get(headerReplayed) != "" {
		t.Fatalf("bob got alice's replay")
	}
	if rec := decode[struct{ Record wireRecord }](t, res).Record; rec.UserID != "bob" {
		t.Fatalf("userId=%q want=bob", rec.UserID)
	}
}

func TestIdempotency_FailuresAreNotStored(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	res := api.do(t, http.MethodPatch, "/me/countries/FRA", "alice", map[string]any{"comments": "x"}, headerIdempotencyKey, "k-1")
	requireError(t, res, http.StatusNotFound, "RATING_NOT_FOUND")

	requireStatus(t, api.do(t, http.MethodPut, "/me/countries/FRA", "alice", rating(3, 3, 3, 3, ""), headerIdempotencyKey, "k-put"), http.StatusCreated)

	res = api.do(t, http.MethodPatch, "/me/countries/FRA", "alice", map[string]any{"comments": "x"}, headerIdempotencyKey, "k-1")
	requireStatus(t, res, http.StatusOK)
}

func TestHashRequest_IncludesPath(t *testing.T) {
	t.Parallel()

	body := map[string]any{"comments": "x"}
	a, err := hashRequest("/me/countries/FRA", body)
	if err != nil {
		t.Fatalf("hashRequest() err=%v", err)
	}
	b, _ := hashRequest("/me/countries/ESP", body)
	if a == b {
		t.Fatalf("hashRequest() ignored the path")
	}
	c, _ := hashRequest("/me/countries/FRA", map[string]any{"comments": "x"})
	if a != c {
		t.Fatalf("hashRequest() not deterministic: %s vs %s", a, c)
	}
}
