package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	memclock "github.com/travelmap/ratings-api/internal/adapters/memory/clock"
	memdocstore "github.com/travelmap/ratings-api/internal/adapters/memory/docstore"
	memevents "github.com/travelmap/ratings-api/internal/adapters/memory/events"
	memidempotency "github.com/travelmap/ratings-api/internal/adapters/memory/idempotency"
	"github.com/travelmap/ratings-api/internal/app/countries"
	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/app/roles"
	"github.com/travelmap/ratings-api/internal/domain"
)

type staticCatalog []domain.Country

func (c staticCatalog) FetchAll(context.Context) ([]domain.Country, error) {
	return c, nil
}

type testAPI struct {
	handler http.Handler
	docs    *memdocstore.Store
	clk     *memclock.ManualClock
	bus     *memevents.Bus
	roles   *roles.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return buildTestAPI(t, memdocstore.NewStore(), memclock.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

// newTestAPIWithDocs is a second server instance over the same documents, like another device.
func newTestAPIWithDocs(t *testing.T, base *testAPI) *testAPI {
	t.Helper()
	return buildTestAPI(t, base.docs, base.clk)
}

func buildTestAPI(t *testing.T, docs *memdocstore.Store, clk *memclock.ManualClock) *testAPI {
	t.Helper()

	bus := memevents.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	sessions := ratings.NewSessions(func(domain.UserID) *ratings.Store {
		return ratings.NewStore(docs, clk, ratings.WithEvents(bus))
	})
	rolesSvc := roles.NewService(docs, nil)
	catalog := staticCatalog{
		{Name: domain.CountryName{Common: "France", Official: "French Republic"}, CCA2: "FR", CCA3: "FRA"},
		{Name: domain.CountryName{Common: "Spain", Official: "Kingdom of Spain"}, CCA2: "ES", CCA3: "ESP"},
	}

	api := NewServer(ServerDeps{
		Sessions:  sessions,
		Roles:     rolesSvc,
		Countries: countries.NewService(catalog, clk, time.Hour, nil),
		Idem:      memidempotency.NewStore(),
		Events:    bus,
		Clock:     clk,
	})
	h := NewRouterWithOptions(api, RouterOptions{
		AuthMiddleware:  NewDevAuthMiddleware(""),
		AdminMiddleware: NewAdminMiddleware(rolesSvc),
	})
	return &testAPI{handler: h, docs: docs, clk: clk, bus: bus, roles: rolesSvc}
}

type response struct {
	status int
	body   []byte
	header http.Header
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any, headers ...string) response {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Debug-Subject", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return response{status: rec.Code, body: rec.Body.Bytes(), header: rec.Header()}
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(r.body, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(r.body))
	}
	return out
}

type wireError struct {
	Error struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details"`
		RequestID string         `json:"requestId"`
	} `json:"error"`
}

func requireError(t *testing.T, r response, wantStatus int, wantCode string) wireError {
	t.Helper()
	if r.status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", r.status, wantStatus, string(r.body))
	}
	got := decode[wireError](t, r)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(r.body))
	}
	return got
}

func requireStatus(t *testing.T, r response, want int) {
	t.Helper()
	if r.status != want {
		t.Fatalf("status=%d want=%d body=%s", r.status, want, string(r.body))
	}
}

type wireRecord struct {
	CountryCode   string         `json:"countryCode"`
	UserID        string         `json:"userId"`
	Ratings       map[string]int `json:"ratings"`
	GeneralRating float64        `json:"generalRating"`
	Comments      string         `json:"comments"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
}

type wireState struct {
	UserID          *string               `json:"userId"`
	Countries       map[string]wireRecord `json:"countries"`
	SelectedCountry *string               `json:"selectedCountry"`
	Loading         bool                  `json:"loading"`
	Error           *string               `json:"error"`
	Ready           bool                  `json:"ready"`
}

func rating(note, food, culture, price int, comments string) map[string]any {
	return map[string]any{
		"ratings":  map[string]int{"note": note, "food": food, "culture": culture, "price": price},
		"comments": comments,
	}
}
