package ratings

import (
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"

	"github.com/travelmap/ratings-api/internal/domain"
)

// TimestampLayout is the stored form of createdAt/updatedAt: UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ratingsDocument(r domain.Ratings) map[string]any {
	return map[string]any{
		"note":    r.Note,
		"food":    r.Food,
		"culture": r.Culture,
		"price":   r.Price,
	}
}

func recordDocument(rec domain.RatingRecord) map[string]any {
	return map[string]any{
		"countryCode":   string(rec.CountryCode),
		"userId":        string(rec.UserID),
		"ratings":       ratingsDocument(rec.Ratings),
		"generalRating": rec.GeneralRating,
		"comments":      rec.Comments,
		"createdAt":     formatTimestamp(rec.CreatedAt),
		"updatedAt":     formatTimestamp(rec.UpdatedAt),
	}
}

// DecodeCollection parses the stored subtree of one user. Every record must be well formed:
// problems are reported per "<countryCode>.<field>" and no partial collection is returned.
func DecodeCollection(userID domain.UserID, raw []byte) (map[domain.CountryCode]domain.RatingRecord, map[string]any) {
	if !gjson.ValidBytes(raw) {
		return nil, map[string]any{"userCountries": "is not valid JSON"}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, map[string]any{"userCountries": "must be an object keyed by country code"}
	}

	out := map[domain.CountryCode]domain.RatingRecord{}
	problems := map[string]any{}
	root.ForEach(func(key, value gjson.Result) bool {
		code := domain.CountryCode(key.String())
		rec, bad := decodeRecord(userID, code, value)
		if bad != nil {
			for field, p := range bad {
				problems[key.String()+"."+field] = p
			}
			return true
		}
		out[code] = rec
		return true
	})
	if len(problems) > 0 {
		return nil, problems
	}
	return out, nil
}

func decodeRecord(userID domain.UserID, key domain.CountryCode, v gjson.Result) (domain.RatingRecord, map[string]any) {
	if !v.IsObject() {
		return domain.RatingRecord{}, map[string]any{"record": "must be an object"}
	}
	problems := map[string]any{}

	str := func(name string) string {
		f := v.Get(name)
		switch {
		case !f.Exists():
			problems[name] = "is required"
		case f.Type != gjson.String:
			problems[name] = "must be a string"
		}
		return f.Str
	}
	score := func(name string, lo, hi int) int {
		f := v.Get("ratings." + name)
		switch {
		case !f.Exists():
			problems["ratings."+name] = "is required"
		case f.Type != gjson.Number || f.Num != math.Trunc(f.Num):
			problems["ratings."+name] = "must be an integer"
		case f.Num < float64(lo) || f.Num > float64(hi):
			problems["ratings."+name] = fmt.Sprintf("must be between %d and %d", lo, hi)
		default:
			return int(f.Num)
		}
		return 0
	}
	timestamp := func(name string) time.Time {
		s := str(name)
		if _, bad := problems[name]; bad {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			problems[name] = "must be an ISO-8601 timestamp"
			return time.Time{}
		}
		return t.UTC()
	}

	rec := domain.RatingRecord{}

	rec.CountryCode = domain.CountryCode(str("countryCode"))
	if _, bad := problems["countryCode"]; !bad && rec.CountryCode != key {
		problems["countryCode"] = fmt.Sprintf("must equal its key %q", string(key))
	}
	rec.UserID = domain.UserID(str("userId"))
	if _, bad := problems["userId"]; !bad && rec.UserID != userID {
		problems["userId"] = "does not match the loaded user"
	}

	if r := v.Get("ratings"); !r.IsObject() {
		problems["ratings"] = "must be an object"
	} else {
		rec.Ratings = domain.Ratings{
			Note:    score("note", domain.MinScore, domain.MaxScore),
			Food:    score("food", domain.MinScore, domain.MaxScore),
			Culture: score("culture", domain.MinScore, domain.MaxScore),
			Price:   score("price", domain.MinPrice, domain.MaxPrice),
		}
	}

	switch g := v.Get("generalRating"); {
	case !g.Exists():
		problems["generalRating"] = "is required"
	case g.Type != gjson.Number:
		problems["generalRating"] = "must be a number"
	default:
		rec.GeneralRating = g.Num
	}

	switch c := v.Get("comments"); {
	case !c.Exists() || c.Type == gjson.Null:
	case c.Type != gjson.String:
		problems["comments"] = "must be a string"
	default:
		rec.Comments = c.Str
	}

	rec.CreatedAt = timestamp("createdAt")
	rec.UpdatedAt = timestamp("updatedAt")

	if len(problems) > 0 {
		return domain.RatingRecord{}, problems
	}
	return rec, nil
}
