package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStoreObserver_ExportsOperations(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	obs := NewStoreObserver(reg)
	obs.ObserveOperation("create", "OK", 10*time.Millisecond)
	obs.ObserveOperation("create", "TRANSPORT_ERROR", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`ratings_store_operations_total{code="OK",operation="create"} 1`,
		`ratings_store_operations_total{code="TRANSPORT_ERROR",operation="create"} 1`,
		`ratings_store_operation_duration_seconds_count{operation="create"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestHTTPMiddleware_RecordsRequests(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	h := HTTPMiddleware(reg)("state")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me/state", nil))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() err=%v", err)
	}
	found := false
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), "ratings_http_request") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no http request metrics registered")
	}
}
