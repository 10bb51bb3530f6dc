package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/travelmap/ratings-api/internal/adapters/httpapi"
	memclock "github.com/travelmap/ratings-api/internal/adapters/memory/clock"
	memdocstore "github.com/travelmap/ratings-api/internal/adapters/memory/docstore"
	memevents "github.com/travelmap/ratings-api/internal/adapters/memory/events"
	memidempotency "github.com/travelmap/ratings-api/internal/adapters/memory/idempotency"
	pgdocstore "github.com/travelmap/ratings-api/internal/adapters/postgres/docstore"
	pgidempotency "github.com/travelmap/ratings-api/internal/adapters/postgres/idempotency"
	postgres_testutil "github.com/travelmap/ratings-api/internal/adapters/postgres/testutil"
	redisdocstore "github.com/travelmap/ratings-api/internal/adapters/redis/docstore"
	redisevents "github.com/travelmap/ratings-api/internal/adapters/redis/events"
	redis_testutil "github.com/travelmap/ratings-api/internal/adapters/redis/testutil"
	"github.com/travelmap/ratings-api/internal/app/countries"
	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/app/roles"
	"github.com/travelmap/ratings-api/internal/domain"
	docstoreport "github.com/travelmap/ratings-api/internal/ports/out/docstore"
	eventsport "github.com/travelmap/ratings-api/internal/ports/out/events"
	idempotencyport "github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
	backendRedis    backend = "redis"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "redis":
		return []backend{backendRedis}
	case "all":
		return []backend{backendMemory, backendPostgres, backendRedis}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|redis|all)")
		return nil
	}
}

type catalogFixture []domain.Country

func (c catalogFixture) FetchAll(context.Context) ([]domain.Country, error) { return c, nil }

type testServer struct {
	baseURL string
	client  *http.Client
	roles   *roles.Service
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		docs      docstoreport.Store
		idemStore idempotencyport.Store
		bus       eventsport.Bus
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		docs = pgdocstore.NewStore(pool)
		idemStore = pgidempotency.NewStore(pool)
		bus = memevents.NewBus()
	case backendRedis:
		rdb := redis_testutil.OpenClient(t)
		prefix := "itest:" + uuid.NewString() + ":"
		docs = redisdocstore.NewStore(rdb, prefix)
		idemStore = memidempotency.NewStore()
		bus = redisevents.NewBus(rdb, prefix+"events", nil)
	case backendMemory:
		docs = memdocstore.NewStore()
		idemStore = memidempotency.NewStore()
		bus = memevents.NewBus()
	default:
		t.Fatalf("unknown backend: %s", b)
	}
	t.Cleanup(func() { _ = bus.Close() })

	sessions := ratings.NewSessions(func(domain.UserID) *ratings.Store {
		return ratings.NewStore(docs, clk, ratings.WithEvents(bus))
	})
	rolesSvc := roles.NewService(docs, nil)
	catalog := catalogFixture{
		{Name: domain.CountryName{Common: "Japan", Official: "Japan"}, CCA2: "JP", CCA3: "JPN", Region: "Asia"},
		{Name: domain.CountryName{Common: "Peru", Official: "Republic of Peru"}, CCA2: "PE", CCA3: "PER", Region: "Americas"},
	}
	api := httpapi.NewServer(httpapi.ServerDeps{
		Sessions:  sessions,
		Roles:     rolesSvc,
		Countries: countries.NewService(catalog, clk, time.Hour, nil),
		Idem:      idemStore,
		Events:    bus,
		Clock:     clk,
	})

	// Empty default subject: requests must send X-Debug-Subject.
	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{
		AuthMiddleware:  httpapi.NewDevAuthMiddleware(""),
		AdminMiddleware: httpapi.NewAdminMiddleware(rolesSvc),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		roles:   rolesSvc,
	}
}

// subject returns a user id unique to this run, so shared databases need no cleanup.
func subject(name string) string {
	return "itest-" + name + "-" + uuid.NewString()
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any, headers ...string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireStatus(t *testing.T, status int, body []byte, want int) {
	t.Helper()
	if status != want {
		t.Fatalf("status=%d want=%d body=%s", status, want, string(body))
	}
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	requireStatus(t, status, body, wantStatus)
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
