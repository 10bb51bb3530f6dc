package ratings

import (
	"sort"

	"github.com/travelmap/ratings-api/internal/domain"
)

// MapData lists the coloring data for every rated country, plus the selected country when it
// has no record yet. Entries are sorted by country code.
func (s *Store) MapData() []domain.MapCountry {
	st := s.State()
	return BuildMapData(st.Countries, st.SelectedCountry)
}

func BuildMapData(countries map[domain.CountryCode]domain.RatingRecord, selected domain.CountryCode) []domain.MapCountry {
	out := make([]domain.MapCountry, 0, len(countries)+1)
	for code, rec := range countries {
		gr := rec.GeneralRating
		r := rec.Ratings
		out = append(out, domain.MapCountry{
			CountryCode:   code,
			HasUserData:   true,
			GeneralRating: &gr,
			FillKey:       domain.FillKeyFor(gr),
			IsSelected:    code == selected,
			Ratings:       &r,
			Comments:      rec.Comments,
		})
	}
	if _, rated := countries[selected]; selected != domain.NoCountry && !rated {
		out = append(out, domain.MapCountry{
			CountryCode: selected,
			FillKey:     domain.FillKeyDefault,
			IsSelected:  true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountryCode < out[j].CountryCode })
	return out
}
