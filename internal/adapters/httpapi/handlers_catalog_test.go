package httpapi

import (
	"net/http"
	"testing"
)

func TestSearchCountries(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	cases := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"FRA", "ESP"}},
		{query: "?q=spa", want: []string{"ESP"}},
		{query: "?q=fra", want: []string{"FRA"}},
		{query: "?q=zzz", want: nil},
	}
	for _, tc := range cases {
		res := api.do(t, http.MethodGet, "/countries"+tc.query, "alice", nil)
		requireStatus(t, res, http.StatusOK)
		got := decode[struct {
			Countries []struct {
				CCA3 string `json:"cca3"`
			} `json:"countries"`
		}](t, res).Countries
		if len(got) != len(tc.want) {
			t.Fatalf("q=%q got %d countries, want %v", tc.query, len(got), tc.want)
		}
		for i := range got {
			if got[i].CCA3 != tc.want[i] {
				t.Fatalf("q=%q [%d]=%s want=%s", tc.query, i, got[i].CCA3, tc.want[i])
			}
		}
	}
}

func TestGetCountry(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	res := api.do(t, http.MethodGet, "/countries/esp", "alice", nil)
	requireStatus(t, res, http.StatusOK)
	got := decode[struct {
		Name struct {
			Common string `json:"common"`
		} `json:"name"`
		CCA2 string `json:"cca2"`
	}](t, res)
	if got.Name.Common != "Spain" || got.CCA2 != "ES" {
		t.Fatalf("country=%+v", got)
	}

	requireError(t, api.do(t, http.MethodGet, "/countries/DEU", "alice", nil), http.StatusNotFound, "COUNTRY_NOT_FOUND")
	requireError(t, api.do(t, http.MethodGet, "/countries/DE", "alice", nil), http.StatusUnprocessableEntity, codeValidation)
}
