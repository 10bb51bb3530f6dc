package domain

// FillKey is the map coloring band for a country.
type FillKey string

const (
	FillKeyExcellent FillKey = "EXCELLENT"
	FillKeyGood      FillKey = "GOOD"
	FillKeyFair      FillKey = "FAIR"
	FillKeyPoor      FillKey = "POOR"
	FillKeyDefault   FillKey = "DEFAULT"
)

// FillKeyFor maps a general rating to its coloring band.
func FillKeyFor(generalRating float64) FillKey {
	switch {
	case generalRating >= 4:
		return FillKeyExcellent
	case generalRating >= 3:
		return FillKeyGood
	case generalRating >= 2:
		return FillKeyFair
	case generalRating >= 1:
		return FillKeyPoor
	default:
		return FillKeyDefault
	}
}

// MapCountry is the per-country data the map view colors from.
type MapCountry struct {
	CountryCode   CountryCode
	HasUserData   bool
	GeneralRating *float64
	FillKey       FillKey
	IsSelected    bool

	// Sub-scores and comments are only set when HasUserData is true.
	Ratings  *Ratings
	Comments string
}
