package restcountries

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sample = `[
  {
    "name": {"common": "France", "official": "French Republic"},
    "cca2": "FR", "cca3": "FRA",
    "capital": ["Paris"], "population": 67391582,
    "region": "Europe", "subregion": "Western Europe",
    "currencies": {"EUR": {"name": "Euro", "symbol": "€"}},
    "languages": {"fra": "French"},
    "flags": {"png": "https://flagcdn.com/w320/fr.png", "svg": "https://flagcdn.com/fr.svg", "alt": "tricolour"}
  },
  {"name": {"common": "Broken"}, "cca3": "X1"}
]`

func TestFetchAll_DecodesAndSkipsInvalidCodes(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3.1/all" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("fields")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	t.Cleanup(srv.Close)

	src := NewSource(srv.URL+"/v3.1/", srv.Client())
	got, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() err=%v", err)
	}
	if !strings.Contains(gotQuery, "cca3") {
		t.Fatalf("fields query=%q, want cca3 requested", gotQuery)
	}
	if len(got) != 1 {
		t.Fatalf("len(FetchAll())=%d, want 1", len(got))
	}
	fr := got[0]
	if fr.CCA3 != "FRA" || fr.Name.Official != "French Republic" || fr.Currencies["EUR"].Symbol != "€" || fr.Capital[0] != "Paris" {
		t.Fatalf("FetchAll()[0]=%+v", fr)
	}
}

func TestFetchAll_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	if _, err := NewSource(srv.URL, srv.Client()).FetchAll(context.Background()); err == nil {
		t.Fatalf("FetchAll() err=nil, want error")
	}
}
