package events

import (
	"context"
	"time"

	"github.com/travelmap/ratings-api/internal/domain"
)

// Kind names a state change observed on a user's rating state.
type Kind string

const (
	KindCollectionLoaded Kind = "collection.loaded"
	KindRatingCreated    Kind = "rating.created"
	KindRatingUpdated    Kind = "rating.updated"
	KindRatingRemoved    Kind = "rating.removed"
	KindSelectionChanged Kind = "selection.changed"
	KindSessionReset     Kind = "session.reset"
)

// Event is published after the in-memory state has changed.
// CountryCode and Record are set for rating and selection events only.
type Event struct {
	ID          string               `json:"id"`
	UserID      domain.UserID        `json:"userId"`
	Kind        Kind                 `json:"kind"`
	CountryCode domain.CountryCode   `json:"countryCode,omitempty"`
	Record      *domain.RatingRecord `json:"record,omitempty"`
	OccurredAt  time.Time            `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler receives events for one user. It must not block for long: adapters call it from their
// delivery goroutine.
type Handler func(Event)

type Subscriber interface {
	// Subscribe delivers events for userID until cancel is called or ctx is done.
	Subscribe(ctx context.Context, userID domain.UserID, fn Handler) (cancel func(), err error)
}

// Bus is both ends of an event transport.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
