package domain

// CountryName is the display name pair of a catalog country.
type CountryName struct {
	Common   string
	Official string
}

// Currency describes one currency used in a country.
type Currency struct {
	Name   string
	Symbol string
}

// CountryFlags holds flag image URLs.
type CountryFlags struct {
	PNG string
	SVG string
	Alt string
}

// Country is a catalog entry. Catalog data is informational: rating records
// never depend on a code being present in the catalog.
type Country struct {
	Name       CountryName
	CCA2       string
	CCA3       CountryCode
	Capital    []string
	Population int64
	Region     string
	Subregion  string
	Currencies map[string]Currency
	Languages  map[string]string
	Flags      CountryFlags
}
