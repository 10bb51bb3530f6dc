package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/app/ratings"
	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
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

// Service reads and writes user roles kept next to the rating data:
//
//	users/{uid} = {"email": "...", "roles": {"admin": true|false}}
type Service struct {
	docs docstore.Store
	log  *zap.Logger
}

func NewService(docs docstore.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{docs: docs, log: log}
}

// GetUserRoles returns [ADMIN] when the admin flag is set and [USER] otherwise, including when
// the user has no roles document.
func (s *Service) GetUserRoles(ctx context.Context, userID domain.UserID) ([]domain.Role, error) {
	p := docstore.UserRolesPath(userID)
	if err := p.Validate(); err != nil {
		return nil, &Error{Status: 422, Code: ratings.CodeValidation, Message: "invalid user id", Details: map[string]any{"userId": err.Error()}}
	}
	raw, found, err := s.docs.Read(ctx, p)
	if err != nil {
		s.log.Error("read roles failed", zap.String("userId", string(userID)), zap.Error(err))
		return nil, &Error{Status: 502, Code: ratings.CodeTransport, Message: "error fetching user roles"}
	}
	if !found {
		return []domain.Role{domain.RoleUser}, nil
	}
	if gjson.GetBytes(raw, "admin").Bool() {
		return []domain.Role{domain.RoleAdmin}, nil
	}
	return []domain.Role{domain.RoleUser}, nil
}

func (s *Service) IsAdmin(ctx context.Context, userID domain.UserID) (bool, error) {
	rs, err := s.GetUserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	return domain.HasRole(rs, domain.RoleAdmin), nil
}

// SetUserRoles writes the user's profile document, replacing any previous one.
func (s *Service) SetUserRoles(ctx context.Context, userID domain.UserID, email string, admin bool) error {
	email = strings.TrimSpace(email)
	p := docstore.UserPath(userID)
	if err := p.Validate(); err != nil {
		return &Error{Status: 422, Code: ratings.CodeValidation, Message: "invalid user id", Details: map[string]any{"userId": err.Error()}}
	}
	if email == "" {
		return &Error{Status: 422, Code: ratings.CodeValidation, Message: "invalid email", Details: map[string]any{"email": "is required"}}
	}
	err := s.docs.Write(ctx, p, map[string]any{
		"email": email,
		"roles": map[string]any{"admin": admin},
	})
	if err != nil {
		s.log.Error("write roles failed", zap.String("userId", string(userID)), zap.Error(err))
		return &Error{Status: 502, Code: ratings.CodeTransport, Message: "error saving user roles"}
	}
	return nil
}

// ReadUserCollection decodes another user's stored ratings without loading them into a session.
func (s *Service) ReadUserCollection(ctx context.Context, userID domain.UserID) (map[domain.CountryCode]domain.RatingRecord, error) {
	p := docstore.UserCountriesPath(userID)
	if err := p.Validate(); err != nil {
		return nil, &Error{Status: 422, Code: ratings.CodeValidation, Message: "invalid user id", Details: map[string]any{"userId": err.Error()}}
	}
	raw, found, err := s.docs.Read(ctx, p)
	if err != nil {
		s.log.Error("read user collection failed", zap.String("userId", string(userID)), zap.Error(err))
		return nil, &Error{Status: 502, Code: ratings.CodeTransport, Message: "error fetching user country data"}
	}
	if !found {
		return map[domain.CountryCode]domain.RatingRecord{}, nil
	}
	out, problems := ratings.DecodeCollection(userID, raw)
	if problems != nil {
		return nil, &Error{Status: 422, Code: ratings.CodeValidation, Message: "invalid user country data", Details: problems}
	}
	return out, nil
}

// IsError reports whether err is a roles error with the given code.
func IsError(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
