package itest

import (
	"context"
	"net/http"
	"testing"

	"github.com/travelmap/ratings-api/internal/domain"
)

type record struct {
	CountryCode   string         `json:"countryCode"`
	UserID        string         `json:"userId"`
	Ratings       map[string]int `json:"ratings"`
	GeneralRating float64        `json:"generalRating"`
	Comments      string         `json:"comments"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
}

type state struct {
	UserID          *string           `json:"userId"`
	Countries       map[string]record `json:"countries"`
	SelectedCountry *string           `json:"selectedCountry"`
	Error           *string           `json:"error"`
	Ready           bool              `json:"ready"`
}

func TestRatings_ITest(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			srv := newTestServer(t, b)
			alice := subject("alice")

			// Missing auth header => 401
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/me/state", "", nil)
				requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
			}

			// A new user starts with an empty, ready collection.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/me/state", alice, nil)
				requireStatus(t, status, body, http.StatusOK)
				st := mustUnmarshal[state](t, body)
				if !st.Ready || len(st.Countries) != 0 || st.UserID == nil || *st.UserID != alice {
					t.Fatalf("state=%+v", st)
				}
			}

			// Rate Japan, replaying under an idempotency key.
			var created record
			{
				body := map[string]any{
					"ratings":  map[string]int{"note": 5, "food": 4, "culture": 4, "price": 4},
					"comments": "ramen",
				}
				status, raw, hdr := srv.doJSON(t, http.MethodPut, "/me/countries/jpn", alice, body, "Idempotency-Key", "rate-jpn")
				requireStatus(t, status, raw, http.StatusCreated)
				created = mustUnmarshal[struct{ Record record }](t, raw).Record
				if created.GeneralRating != 3.75 {
					t.Fatalf("generalRating=%v want=3.75", created.GeneralRating)
				}
				if hdr.Get("Idempotent-Replayed") != "" {
					t.Fatalf("first request marked replayed")
				}

				status, raw, hdr = srv.doJSON(t, http.MethodPut, "/me/countries/jpn", alice, body, "Idempotency-Key", "rate-jpn")
				requireStatus(t, status, raw, http.StatusCreated)
				requireHeaderPresent(t, hdr, "Idempotent-Replayed")
			}

			// Partial update keeps createdAt and the untouched scores.
			{
				status, raw, _ := srv.doJSON(t, http.MethodPatch, "/me/countries/JPN", alice, map[string]any{
					"ratings": map[string]int{"price": 2},
				})
				requireStatus(t, status, raw, http.StatusOK)
				rec := mustUnmarshal[struct{ Record record }](t, raw).Record
				if rec.GeneralRating != 4.25 || rec.Ratings["note"] != 5 || rec.Comments != "ramen" {
					t.Fatalf("record=%+v", rec)
				}
				if rec.CreatedAt != created.CreatedAt {
					t.Fatalf("createdAt changed: %q -> %q", created.CreatedAt, rec.CreatedAt)
				}
			}

			// Sign out and back in: the collection is read back from storage.
			{
				status, raw, _ := srv.doJSON(t, http.MethodPost, "/me/signout", alice, nil)
				requireStatus(t, status, raw, http.StatusNoContent)

				status, raw, _ = srv.doJSON(t, http.MethodGet, "/me/state", alice, nil)
				requireStatus(t, status, raw, http.StatusOK)
				st := mustUnmarshal[state](t, raw)
				got, ok := st.Countries["JPN"]
				if !ok || got.GeneralRating != 4.25 || got.Ratings["price"] != 2 || got.CreatedAt != created.CreatedAt {
					t.Fatalf("countries=%+v", st.Countries)
				}
			}

			// Admin reads the stored collection.
			{
				root := subject("root")
				if err := srv.roles.SetUserRoles(context.Background(), domain.UserID(root), "root@example.com", true); err != nil {
					t.Fatalf("SetUserRoles() err=%v", err)
				}
				status, raw, _ := srv.doJSON(t, http.MethodGet, "/admin/users/"+alice+"/countries", root, nil)
				requireStatus(t, status, raw, http.StatusOK)
				got := mustUnmarshal[struct {
					Countries map[string]record `json:"countries"`
				}](t, raw)
				if _, ok := got.Countries["JPN"]; !ok {
					t.Fatalf("admin view=%+v", got)
				}

				status, raw, _ = srv.doJSON(t, http.MethodGet, "/admin/users/"+root+"/countries", alice, nil)
				requireErrorCode(t, status, raw, http.StatusForbidden, "FORBIDDEN")
			}

			// Remove it.
			{
				status, raw, _ := srv.doJSON(t, http.MethodDelete, "/me/countries/JPN", alice, nil)
				requireStatus(t, status, raw, http.StatusNoContent)
				status, raw, _ = srv.doJSON(t, http.MethodGet, "/me/countries/JPN", alice, nil)
				requireErrorCode(t, status, raw, http.StatusNotFound, "RATING_NOT_FOUND")
			}

			// Catalog lookups.
			{
				status, raw, _ := srv.doJSON(t, http.MethodGet, "/countries?q=peru", alice, nil)
				requireStatus(t, status, raw, http.StatusOK)
				got := mustUnmarshal[struct {
					Countries []struct {
						CCA3 string `json:"cca3"`
					} `json:"countries"`
				}](t, raw)
				if len(got.Countries) != 1 || got.Countries[0].CCA3 != "PER" {
					t.Fatalf("search=%+v", got)
				}
			}
		})
	}
}
