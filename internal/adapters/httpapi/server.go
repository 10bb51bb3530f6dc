package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/app/countries"
	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/app/roles"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/clock"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
	"github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers. Every /me route acts on the session of the authenticated user.
type Server struct {
	Sessions  *ratings.Sessions
	Roles     *roles.Service
	Countries *countries.Service
	Idem      idempotency.Store
	Events    events.Subscriber
	Clock     clock.Clock
	Log       *zap.Logger
}

type ServerDeps struct {
	Sessions  *ratings.Sessions
	Roles     *roles.Service
	Countries *countries.Service
	Idem      idempotency.Store
	Events    events.Subscriber
	Clock     clock.Clock
	Log       *zap.Logger
}

func NewServer(d ServerDeps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Sessions:  d.Sessions,
		Roles:     d.Roles,
		Countries: d.Countries,
		Idem:      d.Idem,
		Events:    d.Events,
		Clock:     d.Clock,
		Log:       log,
	}
}

func rangeMessage(lo, hi int) string {
	return fmt.Sprintf("must be between %d and %d", lo, hi)
}

// session resolves the caller's store, loading it on first use. It writes the error response
// itself and reports false on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (domain.UserID, *ratings.Store, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject", nil)
		return "", nil, false
	}
	st, err := s.Sessions.Get(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return "", nil, false
	}
	return userID, st, true
}

// readBody reads the request body, bounded, and decodes it into dst.
func readBody(w http.ResponseWriter, r *http.Request, dst any) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		if isMaxBytes(err) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeValidation, "request body too large", nil)
		} else {
			writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "unreadable request body", nil)
		}
		return nil, false
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "missing request body", nil)
		return nil, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid request body", map[string]any{"body": err.Error()})
		return nil, false
	}
	return raw, true
}

func countryParam(w http.ResponseWriter, r *http.Request, name string) (domain.CountryCode, bool) {
	var raw string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &raw, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid path parameter", map[string]any{name: err.Error()})
		return "", false
	}
	code := domain.NormalizeCountryCode(raw)
	if !code.IsAlpha3() {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid country code", map[string]any{name: "must be an ISO-3166 alpha-3 code"})
		return "", false
	}
	return code, true
}

func userParam(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	var raw string
	err := runtime.BindStyledParameterWithOptions("simple", "userId", chi.URLParam(r, "userId"), &raw, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil || strings.TrimSpace(raw) == "" {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid path parameter", map[string]any{"userId": "is required"})
		return "", false
	}
	return domain.UserID(strings.TrimSpace(raw)), true
}

func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
