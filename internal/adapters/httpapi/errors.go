package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/travelmap/ratings-api/internal/app/countries"
	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/app/roles"
)

const (
	codeUnauthorized  = "UNAUTHORIZED"
	codeForbidden     = "FORBIDDEN"
	codeValidation    = ratings.CodeValidation
	codeIdemReuse     = "IDEMPOTENCY_KEY_REUSE"
	codeInternal      = "INTERNAL_ERROR"
	codeNotStreamable = "STREAMING_UNSUPPORTED"
)

type errorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestID nullable.Nullable[string]         `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er errorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestID = nullable.NewNullableWithValue(rid)
	}
	writeJSON(w, status, er)
}

// writeAppError maps application errors to the error envelope. Anything unrecognized is a 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if re := (*ratings.Error)(nil); errors.As(err, &re) {
		writeError(w, r, re.Status, re.Code, re.Message, re.Details)
		return
	}
	if ae := (*roles.Error)(nil); errors.As(err, &ae) {
		writeError(w, r, ae.Status, ae.Code, ae.Message, ae.Details)
		return
	}
	if ce := (*countries.Error)(nil); errors.As(err, &ce) {
		writeError(w, r, ce.Status, ce.Code, ce.Message, nil)
		return
	}
	writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
