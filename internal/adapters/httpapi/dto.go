package httpapi

import (
	"sort"
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
)

type ratingsDTO struct {
	Note    int `json:"note"`
	Food    int `json:"food"`
	Culture int `json:"culture"`
	Price   int `json:"price"`
}

type ratingRecordDTO struct {
	CountryCode   string     `json:"countryCode"`
	UserID        string     `json:"userId"`
	Ratings       ratingsDTO `json:"ratings"`
	GeneralRating float64    `json:"generalRating"`
	Comments      string     `json:"comments"`
	CreatedAt     string     `json:"createdAt"`
	UpdatedAt     string     `json:"updatedAt"`
}

type recordResponse struct {
	Record ratingRecordDTO `json:"record"`
}

type stateResponse struct {
	UserID          nullable.Nullable[string]  `json:"userId"`
	Countries       map[string]ratingRecordDTO `json:"countries"`
	SelectedCountry nullable.Nullable[string]  `json:"selectedCountry"`
	Loading         bool                       `json:"loading"`
	Error           nullable.Nullable[string]  `json:"error"`
	Ready           bool                       `json:"ready"`
}

type mapCountryDTO struct {
	CountryCode   string                     `json:"countryCode"`
	HasUserData   bool                       `json:"hasUserData"`
	GeneralRating nullable.Nullable[float64] `json:"generalRating"`
	FillKey       string                     `json:"fillKey"`
	IsSelected    bool                       `json:"isSelected"`
	Ratings       *ratingsDTO                `json:"ratings,omitempty"`
	Comments      string                     `json:"comments,omitempty"`
}

type mapResponse struct {
	Countries []mapCountryDTO `json:"countries"`
}

type countryNameDTO struct {
	Common   string `json:"common"`
	Official string `json:"official"`
}

type currencyDTO struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type flagsDTO struct {
	PNG string `json:"png"`
	SVG string `json:"svg"`
	Alt string `json:"alt,omitempty"`
}

type countryDTO struct {
	Name       countryNameDTO         `json:"name"`
	CCA2       string                 `json:"cca2"`
	CCA3       string                 `json:"cca3"`
	Capital    []string               `json:"capital"`
	Population int64                  `json:"population"`
	Region     string                 `json:"region"`
	Subregion  string                 `json:"subregion"`
	Currencies map[string]currencyDTO `json:"currencies"`
	Languages  map[string]string      `json:"languages"`
	Flags      flagsDTO               `json:"flags"`
}

type countriesResponse struct {
	Countries []countryDTO `json:"countries"`
}

type collectionResponse struct {
	UserID    string                     `json:"userId"`
	Countries map[string]ratingRecordDTO `json:"countries"`
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

type eventDTO struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Kind        string           `json:"kind"`
	CountryCode string           `json:"countryCode,omitempty"`
	Record      *ratingRecordDTO `json:"record,omitempty"`
	OccurredAt  string           `json:"occurredAt"`
}

// Requests.

type submitRatingRequest struct {
	Ratings  *ratingsDTO `json:"ratings"`
	Comments string      `json:"comments"`
}

type ratingsPatchDTO struct {
	Note    nullable.Nullable[int] `json:"note,omitempty"`
	Food    nullable.Nullable[int] `json:"food,omitempty"`
	Culture nullable.Nullable[int] `json:"culture,omitempty"`
	Price   nullable.Nullable[int] `json:"price,omitempty"`
}

type patchRatingRequest struct {
	Ratings       *ratingsPatchDTO           `json:"ratings,omitempty"`
	Comments      nullable.Nullable[string]  `json:"comments,omitempty"`
	GeneralRating nullable.Nullable[float64] `json:"generalRating,omitempty"`
}

type selectionRequest struct {
	CountryCode nullable.Nullable[string] `json:"countryCode"`
}

type registrationRequest struct {
	Email openapi_types.Email `json:"email"`
}

type setRolesRequest struct {
	Email openapi_types.Email `json:"email"`
	Admin bool                `json:"admin"`
}

// Conversions.

func ratingsToDTO(r domain.Ratings) ratingsDTO {
	return ratingsDTO{Note: r.Note, Food: r.Food, Culture: r.Culture, Price: r.Price}
}

func (d ratingsDTO) toDomain() domain.Ratings {
	return domain.Ratings{Note: d.Note, Food: d.Food, Culture: d.Culture, Price: d.Price}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(ratings.TimestampLayout)
}

func recordToDTO(rec domain.RatingRecord) ratingRecordDTO {
	return ratingRecordDTO{
		CountryCode:   string(rec.CountryCode),
		UserID:        string(rec.UserID),
		Ratings:       ratingsToDTO(rec.Ratings),
		GeneralRating: rec.GeneralRating,
		Comments:      rec.Comments,
		CreatedAt:     formatTime(rec.CreatedAt),
		UpdatedAt:     formatTime(rec.UpdatedAt),
	}
}

func collectionToDTO(c map[domain.CountryCode]domain.RatingRecord) map[string]ratingRecordDTO {
	out := make(map[string]ratingRecordDTO, len(c))
	for code, rec := range c {
		out[string(code)] = recordToDTO(rec)
	}
	return out
}

// nullableString maps "" to null.
func nullableString(s string) nullable.Nullable[string] {
	if s == "" {
		return nullable.NewNullNullable[string]()
	}
	return nullable.NewNullableWithValue(s)
}

func stateToDTO(st ratings.State) stateResponse {
	return stateResponse{
		UserID:          nullableString(string(st.UserID)),
		Countries:       collectionToDTO(st.Countries),
		SelectedCountry: nullableString(string(st.SelectedCountry)),
		Loading:         st.Loading,
		Error:           nullableString(st.Error),
		Ready:           st.Ready,
	}
}

func mapToDTO(entries []domain.MapCountry) mapResponse {
	out := mapResponse{Countries: make([]mapCountryDTO, 0, len(entries))}
	for _, e := range entries {
		d := mapCountryDTO{
			CountryCode:   string(e.CountryCode),
			HasUserData:   e.HasUserData,
			GeneralRating: nullable.NewNullNullable[float64](),
			FillKey:       string(e.FillKey),
			IsSelected:    e.IsSelected,
			Comments:      e.Comments,
		}
		if e.GeneralRating != nil {
			d.GeneralRating = nullable.NewNullableWithValue(*e.GeneralRating)
		}
		if e.Ratings != nil {
			r := ratingsToDTO(*e.Ratings)
			d.Ratings = &r
		}
		out.Countries = append(out.Countries, d)
	}
	return out
}

func countryToDTO(c domain.Country) countryDTO {
	d := countryDTO{
		Name:       countryNameDTO{Common: c.Name.Common, Official: c.Name.Official},
		CCA2:       c.CCA2,
		CCA3:       string(c.CCA3),
		Capital:    c.Capital,
		Population: c.Population,
		Region:     c.Region,
		Subregion:  c.Subregion,
		Languages:  c.Languages,
		Flags:      flagsDTO{PNG: c.Flags.PNG, SVG: c.Flags.SVG, Alt: c.Flags.Alt},
	}
	if len(c.Currencies) > 0 {
		d.Currencies = make(map[string]currencyDTO, len(c.Currencies))
		for k, cur := range c.Currencies {
			d.Currencies[k] = currencyDTO{Name: cur.Name, Symbol: cur.Symbol}
		}
	}
	return d
}

func countriesToDTO(cs []domain.Country) countriesResponse {
	out := countriesResponse{Countries: make([]countryDTO, 0, len(cs))}
	for _, c := range cs {
		out.Countries = append(out.Countries, countryToDTO(c))
	}
	return out
}

func rolesToDTO(rs []domain.Role) rolesResponse {
	out := rolesResponse{Roles: make([]string, 0, len(rs))}
	for _, r := range rs {
		out.Roles = append(out.Roles, string(r))
	}
	sort.Strings(out.Roles)
	return out
}

func eventToDTO(ev events.Event) eventDTO {
	d := eventDTO{
		ID:          ev.ID,
		UserID:      string(ev.UserID),
		Kind:        string(ev.Kind),
		CountryCode: string(ev.CountryCode),
		OccurredAt:  formatTime(ev.OccurredAt),
	}
	if ev.Record != nil {
		r := recordToDTO(*ev.Record)
		d.Record = &r
	}
	return d
}

func optionalFrom[T any](n nullable.Nullable[T]) ratings.Optional[T] {
	if !n.IsSpecified() {
		return ratings.Unspecified[T]()
	}
	if n.IsNull() {
		return ratings.Null[T]()
	}
	v, _ := n.Get()
	return ratings.Some(v)
}

func (req patchRatingRequest) toInput(code domain.CountryCode) ratings.UpdateInput {
	in := ratings.UpdateInput{
		CountryCode:   code,
		Comments:      optionalFrom(req.Comments),
		GeneralRating: optionalFrom(req.GeneralRating),
	}
	if req.Ratings != nil {
		in.Ratings = ratings.RatingsPatch{
			Note:    optionalFrom(req.Ratings.Note),
			Food:    optionalFrom(req.Ratings.Food),
			Culture: optionalFrom(req.Ratings.Culture),
			Price:   optionalFrom(req.Ratings.Price),
		}
	}
	return in
}

// problems range-checks the specified, non-null fields of a patch. Nulls are left to the store.
func (req patchRatingRequest) problems() map[string]any {
	out := map[string]any{}
	if req.Ratings != nil {
		check := func(name string, f nullable.Nullable[int], lo, hi int) {
			if v, err := f.Get(); err == nil && (v < lo || v > hi) {
				out["ratings."+name] = rangeMessage(lo, hi)
			}
		}
		check("note", req.Ratings.Note, domain.MinScore, domain.MaxScore)
		check("food", req.Ratings.Food, domain.MinScore, domain.MaxScore)
		check("culture", req.Ratings.Culture, domain.MinScore, domain.MaxScore)
		check("price", req.Ratings.Price, domain.MinPrice, domain.MaxPrice)
	}
	if v, err := req.GeneralRating.Get(); err == nil && !domain.ValidGeneralRating(v) {
		out["generalRating"] = "must be between 0 and 5"
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
