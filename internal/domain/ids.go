package domain

// UserID is the authenticated subject supplied by the identity provider (typically JWT "sub").
// We model it as an opaque identifier: its format is controlled by the IdP.
type UserID string

// CountryCode is an ISO-3166 alpha-3 country identifier (e.g. "FRA").
// It is the key of a rating record within a user's collection.
type CountryCode string

// NoCountry is the empty selection.
const NoCountry CountryCode = ""
