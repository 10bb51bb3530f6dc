package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// GetUserCollection returns another user's stored ratings without touching their session.
func (s *Server) GetUserCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	c, err := s.Roles.ReadUserCollection(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionResponse{UserID: string(userID), Countries: collectionToDTO(c)})
}

func (s *Server) SetUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	var req setRolesRequest
	if _, ok := readBody(w, r, &req); !ok {
		return
	}
	if err := s.Roles.SetUserRoles(r.Context(), userID, string(req.Email), req.Admin); err != nil {
		writeAppError(w, r, err)
		return
	}
	actor, _ := UserIDFromContext(r.Context())
	s.Log.Info("user roles changed",
		zap.String("actor", string(actor)),
		zap.String("userId", string(userID)),
		zap.Bool("admin", req.Admin),
	)
	rs, err := s.Roles.GetUserRoles(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rolesToDTO(rs))
}
