package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/travelmap/ratings-api/internal/domain"
)

// TokenVerifier turns a bearer token into the authenticated user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

// AdminChecker reports whether a user holds the ADMIN role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID domain.UserID) (bool, error)
}

// NewAuthMiddleware requires Authorization: Bearer <JWT> and stores the token subject as the
// request's user id.
func NewAuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing Authorization header", nil)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing bearer token", nil)
				return
			}

			userID, err := v.Verify(r.Context(), raw)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// NewDevAuthMiddleware is a local-only shim: the user id comes from X-Debug-Subject, falling back
// to defaultUserID. Never use it in production deployments.
func NewDevAuthMiddleware(defaultUserID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := strings.TrimSpace(r.Header.Get("X-Debug-Subject"))
			if sub == "" {
				sub = strings.TrimSpace(defaultUserID)
			}
			if sub == "" {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject (set X-Debug-Subject)", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), domain.UserID(sub))))
		})
	}
}

// NewAdminMiddleware lets only ADMIN users through. It must run after an auth middleware.
func NewAdminMiddleware(c AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "missing subject", nil)
				return
			}
			admin, err := c.IsAdmin(r.Context(), userID)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			if !admin {
				writeError(w, r, http.StatusForbidden, codeForbidden, "admin role required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
