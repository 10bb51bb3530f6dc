package countries

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/catalog"
	"github.com/travelmap/ratings-api/internal/ports/out/clock"
)

const DefaultTTL = 24 * time.Hour

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Service serves the country catalog from a cache refreshed once per TTL.
type Service struct {
	src   catalog.Source
	clock clock.Clock
	ttl   time.Duration
	log   *zap.Logger

	fetch singleflight.Group

	mu        sync.RWMutex
	list      []domain.Country
	byCode    map[domain.CountryCode]domain.Country
	fetchedAt time.Time
}

func NewService(src catalog.Source, clk clock.Clock, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{src: src, clock: clk, ttl: ttl, log: log}
}

// List returns every country sorted by common name, case-insensitively.
func (s *Service) List(ctx context.Context) ([]domain.Country, error) {
	list, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]domain.Country(nil), list...), nil
}

// Search matches q as a case-insensitive substring of the common or official name, or of either
// code. A blank query returns the full list.
func (s *Service) Search(ctx context.Context, q string) ([]domain.Country, error) {
	list, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return append([]domain.Country(nil), list...), nil
	}
	out := make([]domain.Country, 0)
	for _, c := range list {
		if matches(c, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, code domain.CountryCode) (domain.Country, error) {
	_, byCode, err := s.load(ctx)
	if err != nil {
		return domain.Country{}, err
	}
	c, ok := byCode[domain.NormalizeCountryCode(string(code))]
	if !ok {
		return domain.Country{}, &Error{Status: 404, Code: "COUNTRY_NOT_FOUND", Message: "country not found"}
	}
	return c, nil
}

func matches(c domain.Country, q string) bool {
	for _, field := range []string{c.Name.Common, c.Name.Official, c.CCA2, string(c.CCA3)} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

type snapshot struct {
	list   []domain.Country
	byCode map[domain.CountryCode]domain.Country
}

func (s *Service) load(ctx context.Context) ([]domain.Country, map[domain.CountryCode]domain.Country, error) {
	s.mu.RLock()
	fresh := s.list != nil && s.clock.Now().Sub(s.fetchedAt) < s.ttl
	list, byCode := s.list, s.byCode
	s.mu.RUnlock()
	if fresh {
		return list, byCode, nil
	}

	v, err, _ := s.fetch.Do("all", func() (any, error) {
		s.mu.RLock()
		if s.list != nil && s.clock.Now().Sub(s.fetchedAt) < s.ttl {
			defer s.mu.RUnlock()
			return snapshot{list: s.list, byCode: s.byCode}, nil
		}
		s.mu.RUnlock()

		all, err := s.src.FetchAll(ctx)
		if err != nil {
			return nil, err
		}
		sorted := append([]domain.Country(nil), all...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return strings.ToLower(sorted[i].Name.Common) < strings.ToLower(sorted[j].Name.Common)
		})
		idx := make(map[domain.CountryCode]domain.Country, len(sorted))
		for _, c := range sorted {
			idx[c.CCA3] = c
		}
		s.mu.Lock()
		s.list, s.byCode, s.fetchedAt = sorted, idx, s.clock.Now()
		s.mu.Unlock()
		return snapshot{list: sorted, byCode: idx}, nil
	})
	if err != nil {
		if list != nil {
			s.log.Warn("country catalog refresh failed, serving stale copy", zap.Error(err))
			return list, byCode, nil
		}
		s.log.Error("country catalog fetch failed", zap.Error(err))
		return nil, nil, &Error{Status: 502, Code: "CATALOG_UNAVAILABLE", Message: "error fetching countries", Err: err}
	}
	snap := v.(snapshot)
	return snap.list, snap.byCode, nil
}
