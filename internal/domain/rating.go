package domain

import (
	"fmt"
	"time"
)

// Sub-score bounds. 0 means "unset" for note, food and culture; price is 1 (cheapest) to 5.
const (
	MinScore = 0
	MaxScore = 5
	MinPrice = 1
	MaxPrice = 5

	MinGeneralRating = 0.0
	MaxGeneralRating = 5.0
)

// Ratings holds the four independently-set sub-scores of a rating record.
type Ratings struct {
	Note    int
	Food    int
	Culture int
	Price   int
}

// RatingRecord is one user's evaluation of one country.
type RatingRecord struct {
	CountryCode CountryCode
	UserID      UserID

	Ratings       Ratings
	GeneralRating float64
	Comments      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GeneralRating is the derived aggregate of the four sub-scores.
//
// Price is inverted (6 - price) so that every term rewards higher-is-better before averaging.
// The formula must stay bit-for-bit stable: persisted records carry values computed with it.
func GeneralRating(r Ratings) float64 {
	priceAsStars := 6 - r.Price
	return float64(r.Note+r.Food+r.Culture+priceAsStars) / 4
}

// Validate checks every sub-score against its range.
// It returns a map of field name to problem, or nil when all fields are in range.
func (r Ratings) Validate() map[string]any {
	problems := map[string]any{}
	checkScore := func(name string, v int) {
		if v < MinScore || v > MaxScore {
			problems[name] = fmt.Sprintf("must be between %d and %d", MinScore, MaxScore)
		}
	}
	checkScore("note", r.Note)
	checkScore("food", r.Food)
	checkScore("culture", r.Culture)
	if r.Price < MinPrice || r.Price > MaxPrice {
		problems["price"] = fmt.Sprintf("must be between %d and %d", MinPrice, MaxPrice)
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

// ValidGeneralRating reports whether v lies within the aggregate's range.
func ValidGeneralRating(v float64) bool {
	return v >= MinGeneralRating && v <= MaxGeneralRating
}
