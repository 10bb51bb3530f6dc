package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/platform/logger"
)

func (s *Server) GetMyState(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stateToDTO(st.State()))
}

func (s *Server) ReloadMyState(w http.ResponseWriter, r *http.Request) {
	userID, st, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := st.Load(r.Context(), userID); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateToDTO(st.State()))
}

func (s *Server) GetMyCountry(w http.ResponseWriter, r *http.Request) {
	code, ok := countryParam(w, r, "countryCode")
	if !ok {
		return
	}
	_, st, ok := s.session(w, r)
	if !ok {
		return
	}
	rec, found := st.Lookup(code)
	if !found {
		writeError(w, r, http.StatusNotFound, ratings.CodeNotFound, "country data not found", map[string]any{"countryCode": string(code)})
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Record: recordToDTO(rec)})
}

// PutMyCountry submits the rating form: it updates an existing record or creates one.
func (s *Server) PutMyCountry(w http.ResponseWriter, r *http.Request) {
	code, ok := countryParam(w, r, "countryCode")
	if !ok {
		return
	}
	var req submitRatingRequest
	if _, ok := readBody(w, r, &req); !ok {
		return
	}
	if req.Ratings == nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid rating", map[string]any{"ratings": "is required"})
		return
	}
	rs := req.Ratings.toDomain()
	if problems := rs.Validate(); problems != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid rating", problems)
		return
	}
	userID, st, ok := s.session(w, r)
	if !ok {
		return
	}

	s.idempotent(w, r, userID, "PUT /me/countries/{countryCode}", req, func() (int, any, error) {
		_, existed := st.Lookup(code)
		rec, err := st.SubmitRating(r.Context(), code, rs, req.Comments)
		if err != nil {
			return 0, nil, err
		}
		status := http.StatusOK
		if !existed {
			status = http.StatusCreated
		}
		return status, recordResponse{Record: recordToDTO(rec)}, nil
	})
}

func (s *Server) PatchMyCountry(w http.ResponseWriter, r *http.Request) {
	code, ok := countryParam(w, r, "countryCode")
	if !ok {
		return
	}
	var req patchRatingRequest
	if _, ok := readBody(w, r, &req); !ok {
		return
	}
	if problems := req.problems(); problems != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid update", problems)
		return
	}
	userID, st, ok := s.session(w, r)
	if !ok {
		return
	}

	s.idempotent(w, r, userID, "PATCH /me/countries/{countryCode}", req, func() (int, any, error) {
		rec, err := st.Update(r.Context(), userID, req.toInput(code))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, recordResponse{Record: recordToDTO(rec)}, nil
	})
}

func (s *Server) DeleteMyCountry(w http.ResponseWriter, r *http.Request) {
	code, ok := countryParam(w, r, "countryCode")
	if !ok {
		return
	}
	_, st, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := st.DeleteRating(r.Context(), code); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PutMySelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if _, ok := readBody(w, r, &req); !ok {
		return
	}
	code := domain.NoCountry
	if v, err := req.CountryCode.Get(); err == nil {
		code = domain.NormalizeCountryCode(v)
		if code != domain.NoCountry && !code.IsAlpha3() {
			writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid country code", map[string]any{"countryCode": "must be an ISO-3166 alpha-3 code or null"})
			return
		}
	}
	_, st, ok := s.session(w, r)
	if !ok {
		return
	}
	st.SelectCountry(code)
	writeJSON(w, http.StatusOK, stateToDTO(st.State()))
}

func (s *Server) ClearMyError(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.session(w, r)
	if !ok {
		return
	}
	st.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetMyMap(w http.ResponseWriter, r *http.Request) {
	_, st, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapToDTO(st.MapData()))
}

// SignOut drops the caller's session. It never loads one.
func (s *Server) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject", nil)
		return
	}
	s.Sessions.SignOut(userID)
	w.WriteHeader(http.StatusNoContent)
}

// RegisterMe records the caller's profile with the default USER role.
func (s *Server) RegisterMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject", nil)
		return
	}
	var req registrationRequest
	if _, ok := readBody(w, r, &req); !ok {
		return
	}
	if err := s.Roles.SetUserRoles(r.Context(), userID, string(req.Email), false); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Log.Info("user registered", zap.String("userId", string(userID)), zap.String("email", logger.RedactEmail(string(req.Email))))
	writeJSON(w, http.StatusCreated, rolesToDTO([]domain.Role{domain.RoleUser}))
}

func (s *Server) GetMyRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject", nil)
		return
	}
	rs, err := s.Roles.GetUserRoles(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolesToDTO(rs))
}
