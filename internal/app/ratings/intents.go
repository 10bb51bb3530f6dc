package ratings

import (
	"context"

	"github.com/travelmap/ratings-api/internal/domain"
)

// SelectCountry is the view's selection intent.
func (s *Store) SelectCountry(code domain.CountryCode) {
	s.Select(code)
}

// SubmitRating saves the view's rating form for the loaded user: it updates the existing record
// for code with every sub-score and the comments, or creates one when none exists.
func (s *Store) SubmitRating(ctx context.Context, code domain.CountryCode, r domain.Ratings, comments string) (domain.RatingRecord, error) {
	userID, err := s.loadedUser()
	if err != nil {
		return domain.RatingRecord{}, err
	}
	if _, ok := s.lookupFor(userID, code); ok {
		return s.Update(ctx, userID, UpdateInput{
			CountryCode: code,
			Ratings:     FullPatch(r),
			Comments:    Some(comments),
		})
	}
	return s.Create(ctx, userID, CreateInput{CountryCode: code, Ratings: r, Comments: comments})
}

// DeleteRating removes the loaded user's record for code.
func (s *Store) DeleteRating(ctx context.Context, code domain.CountryCode) error {
	userID, err := s.loadedUser()
	if err != nil {
		return err
	}
	return s.Remove(ctx, userID, code)
}

func (s *Store) loadedUser() (domain.UserID, error) {
	s.mu.Lock()
	userID := s.state.UserID
	s.mu.Unlock()
	if userID == "" {
		return "", s.fail(validationError(msgNoUser, map[string]any{"userId": "load a user first"}))
	}
	return userID, nil
}
