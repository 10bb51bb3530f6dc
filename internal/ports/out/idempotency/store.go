package idempotency

import (
	"context"
	"time"

	"github.com/travelmap/ratings-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint identifies a request uniquely for idempotency purposes:
// key + route + user + request body hash.
// Route is the HTTP method plus the route template (e.g. "PUT /me/countries/{countryCode}").
type Fingerprint struct {
	Key      Key
	UserID   domain.UserID
	Method   string
	Route    string
	BodyHash string
}

// Record is the stored response replayed for a duplicate request.
type Record struct {
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
	// Prune drops records created before the cutoff and reports how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}
