package docstore

import (
	"fmt"
	"strings"

	"github.com/travelmap/ratings-api/internal/domain"
)

// Path is a slash-separated key path, e.g. "userCountries/u1/FRA".
type Path string

const (
	rootUserCountries = "userCountries"
	rootUsers         = "users"
)

const forbiddenSegmentChars = "/.#$[]"

// UserCountriesPath is the subtree holding every rating record of a user.
func UserCountriesPath(userID domain.UserID) Path {
	return Join(rootUserCountries, string(userID))
}

// UserCountryPath is the location of a single rating record.
func UserCountryPath(userID domain.UserID, code domain.CountryCode) Path {
	return Join(rootUserCountries, string(userID), string(code))
}

func UserPath(userID domain.UserID) Path {
	return Join(rootUsers, string(userID))
}

func UserRolesPath(userID domain.UserID) Path {
	return Join(rootUsers, string(userID), "roles")
}

// Join builds a path from raw segments. It does not validate them; see Validate.
func Join(segments ...string) Path {
	return Path(strings.Join(segments, "/"))
}

// Validate reports ErrInvalidPath when any segment is empty or contains a forbidden character.
func (p Path) Validate() error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(string(p), "/") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, string(p))
		}
		if strings.ContainsAny(seg, forbiddenSegmentChars) {
			return fmt.Errorf("%w: segment %q contains one of %q", ErrInvalidPath, seg, forbiddenSegmentChars)
		}
	}
	return nil
}

func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Parent returns the path without its last segment, or "" for a top-level path.
func (p Path) Parent() Path {
	i := strings.LastIndexByte(string(p), '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the last segment.
func (p Path) Base() string {
	i := strings.LastIndexByte(string(p), '/')
	return string(p[i+1:])
}

// Child appends one segment.
func (p Path) Child(segment string) Path {
	if p == "" {
		return Path(segment)
	}
	return p + "/" + Path(segment)
}

// IsAncestorOf reports whether q lies strictly below p.
func (p Path) IsAncestorOf(q Path) bool {
	return strings.HasPrefix(string(q), string(p)+"/")
}
