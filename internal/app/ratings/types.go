package ratings

import (
	"maps"

	"github.com/travelmap/ratings-api/internal/domain"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

type CreateInput struct {
	CountryCode domain.CountryCode
	Ratings     domain.Ratings
	Comments    string
}

// RatingsPatch names the sub-scores an update overwrites. Omitted fields keep their prior value.
// Null is not allowed for any field.
type RatingsPatch struct {
	Note    Optional[int]
	Food    Optional[int]
	Culture Optional[int]
	Price   Optional[int]
}

// FullPatch overwrites every sub-score.
func FullPatch(r domain.Ratings) RatingsPatch {
	return RatingsPatch{Note: Some(r.Note), Food: Some(r.Food), Culture: Some(r.Culture), Price: Some(r.Price)}
}

type UpdateInput struct {
	CountryCode domain.CountryCode
	Ratings     RatingsPatch

	// Comments: null clears to the empty string.
	Comments Optional[string]

	// GeneralRating, when specified, is stored verbatim instead of the value derived from the
	// merged sub-scores. It cannot be null.
	GeneralRating Optional[float64]
}

// State is a snapshot of a store. Snapshots never alias the store's own collection.
type State struct {
	UserID          domain.UserID
	Countries       map[domain.CountryCode]domain.RatingRecord
	SelectedCountry domain.CountryCode
	Loading         bool
	Error           string
	Ready           bool
}

func (s State) clone() State {
	s.Countries = maps.Clone(s.Countries)
	if s.Countries == nil {
		s.Countries = map[domain.CountryCode]domain.RatingRecord{}
	}
	return s
}

func initialState() State {
	return State{Countries: map[domain.CountryCode]domain.RatingRecord{}}
}
