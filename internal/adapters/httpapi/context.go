package httpapi

import (
	"context"

	"github.com/travelmap/ratings-api/internal/domain"
)

type userIDKey struct{}

func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	v, ok := ctx.Value(userIDKey{}).(domain.UserID)
	return v, ok && v != ""
}
