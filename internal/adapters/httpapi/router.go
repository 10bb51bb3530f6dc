package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterOptions struct {
	// AuthMiddleware authenticates every route except /healthz and /metrics.
	AuthMiddleware func(http.Handler) http.Handler
	// AdminMiddleware guards /admin routes; without it they are not mounted.
	AdminMiddleware func(http.Handler) http.Handler

	Logger *zap.Logger

	// Metrics wraps a route with HTTP metrics under the given handler id.
	Metrics        func(handlerID string) func(http.Handler) http.Handler
	MetricsHandler http.Handler
}

func NewRouter(api *Server) http.Handler {
	return NewRouterWithOptions(api, RouterOptions{})
}

func NewRouterWithOptions(api *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Logger != nil {
		r.Use(NewRequestLogger(opts.Logger))
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if opts.AuthMiddleware != nil {
			r.Use(opts.AuthMiddleware)
		}
		route := func(id string) chi.Router {
			if opts.Metrics == nil {
				return r
			}
			return r.With(opts.Metrics(id))
		}

		route("me_state").Get("/me/state", api.GetMyState)
		route("me_reload").Post("/me/reload", api.ReloadMyState)
		route("me_country_get").Get("/me/countries/{countryCode}", api.GetMyCountry)
		route("me_country_put").Put("/me/countries/{countryCode}", api.PutMyCountry)
		route("me_country_patch").Patch("/me/countries/{countryCode}", api.PatchMyCountry)
		route("me_country_delete").Delete("/me/countries/{countryCode}", api.DeleteMyCountry)
		route("me_selection").Put("/me/selection", api.PutMySelection)
		route("me_error").Delete("/me/error", api.ClearMyError)
		route("me_map").Get("/me/map", api.GetMyMap)
		r.Get("/me/events", api.StreamMyEvents)
		route("me_signout").Post("/me/signout", api.SignOut)
		route("me_registration").Post("/me/registration", api.RegisterMe)
		route("me_roles").Get("/me/roles", api.GetMyRoles)
		route("countries_search").Get("/countries", api.SearchCountries)
		route("countries_get").Get("/countries/{cca3}", api.GetCountry)

		if opts.AdminMiddleware != nil {
			r.Group(func(r chi.Router) {
				r.Use(opts.AdminMiddleware)
				admin := func(id string) chi.Router {
					if opts.Metrics == nil {
						return r
					}
					return r.With(opts.Metrics(id))
				}
				admin("admin_user_countries").Get("/admin/users/{userId}/countries", api.GetUserCollection)
				admin("admin_user_roles").Put("/admin/users/{userId}/roles", api.SetUserRoles)
			})
		}
	})
	return r
}
