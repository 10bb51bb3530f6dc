package httpapi

import (
	"net/http"

	"github.com/oapi-codegen/runtime"
)

func (s *Server) SearchCountries(w http.ResponseWriter, r *http.Request) {
	var q string
	if err := runtime.BindQueryParameter("form", true, false, "q", r.URL.Query(), &q); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "invalid query parameter", map[string]any{"q": err.Error()})
		return
	}
	cs, err := s.Countries.Search(r.Context(), q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countriesToDTO(cs))
}

func (s *Server) GetCountry(w http.ResponseWriter, r *http.Request) {
	code, ok := countryParam(w, r, "cca3")
	if !ok {
		return
	}
	c, err := s.Countries.Get(r.Context(), code)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countryToDTO(c))
}
