package restcountries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/travelmap/ratings-api/internal/domain"
)

const (
	DefaultBaseURL = "https://restcountries.com/v3.1"

	allFields = "name,cca2,cca3,capital,population,region,subregion,currencies,languages,flags"
)

// Source fetches the catalog from the restcountries v3.1 API.
type Source struct {
	baseURL string
	client  *http.Client
}

func NewSource(baseURL string, httpClient *http.Client) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

type countryDTO struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	CCA2       string   `json:"cca2"`
	CCA3       string   `json:"cca3"`
	Capital    []string `json:"capital"`
	Population int64    `json:"population"`
	Region     string   `json:"region"`
	Subregion  string   `json:"subregion"`
	Currencies map[string]struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"currencies"`
	Languages map[string]string `json:"languages"`
	Flags     struct {
		PNG string `json:"png"`
		SVG string `json:"svg"`
		Alt string `json:"alt"`
	} `json:"flags"`
}

func (s *Source) FetchAll(ctx context.Context) ([]domain.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/all?fields="+allFields, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("restcountries fetch failed: status=%d", resp.StatusCode)
	}

	var dtos []countryDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("decode restcountries response: %w", err)
	}

	out := make([]domain.Country, 0, len(dtos))
	for _, d := range dtos {
		code := domain.NormalizeCountryCode(d.CCA3)
		if !code.IsAlpha3() {
			continue
		}
		c := domain.Country{
			Name:       domain.CountryName{Common: d.Name.Common, Official: d.Name.Official},
			CCA2:       d.CCA2,
			CCA3:       code,
			Capital:    d.Capital,
			Population: d.Population,
			Region:     d.Region,
			Subregion:  d.Subregion,
			Languages:  d.Languages,
			Flags:      domain.CountryFlags{PNG: d.Flags.PNG, SVG: d.Flags.SVG, Alt: d.Flags.Alt},
		}
		if len(d.Currencies) > 0 {
			c.Currencies = make(map[string]domain.Currency, len(d.Currencies))
			for k, cur := range d.Currencies {
				c.Currencies[k] = domain.Currency{Name: cur.Name, Symbol: cur.Symbol}
			}
		}
		out = append(out, c)
	}
	return out, nil
}
