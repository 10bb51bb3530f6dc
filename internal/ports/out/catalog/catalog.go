package catalog

import (
	"context"

	"github.com/travelmap/ratings-api/internal/domain"
)

// Source fetches the full country catalog from an upstream provider.
type Source interface {
	FetchAll(ctx context.Context) ([]domain.Country, error)
}
