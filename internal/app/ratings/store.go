package ratings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/clock"
	"github.com/travelmap/ratings-api/internal/ports/out/docstore"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
)

// Store is the rating state of one signed-in user: the collection of rating records, the
// selection cursor and a shared loading/error status.
//
// Remote calls are not serialized. Each operation awaits its document store round trip before
// touching local state; across concurrent operations the last one to resolve wins.
type Store struct {
	docs  docstore.Store
	clock clock.Clock

	log      *zap.Logger
	events   events.Publisher
	observer Observer

	newEventID func() string

	mu      sync.Mutex
	state   State
	subs    map[uint64]func(State)
	nextSub uint64
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEvents publishes a change event after every state mutation.
func WithEvents(p events.Publisher) Option {
	return func(s *Store) { s.events = p }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

func NewStore(docs docstore.Store, clk clock.Clock, opts ...Option) *Store {
	s := &Store{
		docs:       docs,
		clock:      clk,
		log:        zap.NewNop(),
		newEventID: uuid.NewString,
		state:      initialState(),
		subs:       make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Ready
}

// Lookup returns the local record for code.
func (s *Store) Lookup(code domain.CountryCode) (domain.RatingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.Countries[code]
	return rec, ok
}

// Subscribe registers fn to receive a snapshot after every state mutation.
// fn runs on the goroutine that performed the mutation, outside the store lock.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// mutate applies fn under the lock and notifies subscribers with the resulting snapshot.
func (s *Store) mutate(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Store) begin() {
	s.mutate(func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

// fail records e in the shared status and returns it.
func (s *Store) fail(e *Error) *Error {
	s.mutate(func(st *State) {
		st.Loading = false
		st.Error = e.Message
	})
	return e
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

// Load replaces the collection with the user's stored records. A missing subtree is an empty
// collection. On failure the prior collection is kept.
func (s *Store) Load(ctx context.Context, userID domain.UserID) (err error) {
	ctx, finish := s.instrument(ctx, "load", userID, domain.NoCountry)
	defer func() { finish(err) }()

	if userID == "" {
		return s.fail(validationError(msgNoUser, map[string]any{"userId": "is required"}))
	}

	s.begin()
	raw, found, err := s.docs.Read(ctx, docstore.UserCountriesPath(userID))
	if err != nil {
		s.logTransport("load", userID, domain.NoCountry, err)
		return s.fail(transportError(msgLoadFailed, err))
	}

	countries := map[domain.CountryCode]domain.RatingRecord{}
	if found {
		decoded, problems := DecodeCollection(userID, raw)
		if problems != nil {
			s.log.Warn("stored rating data failed validation",
				zap.String("userId", string(userID)),
				zap.Any("problems", problems),
			)
			return s.fail(validationError(msgInvalidData, problems))
		}
		countries = decoded
	}

	s.mutate(func(st *State) {
		st.UserID = userID
		st.Countries = countries
		st.Loading = false
		st.Ready = true
	})
	s.publish(ctx, events.Event{UserID: userID, Kind: events.KindCollectionLoaded})
	return nil
}

// Select sets the selection cursor. NoCountry clears it. Codes are not checked against any list.
func (s *Store) Select(code domain.CountryCode) {
	var userID domain.UserID
	s.mutate(func(st *State) {
		st.SelectedCountry = code
		userID = st.UserID
	})
	if userID != "" {
		s.publish(context.Background(), events.Event{UserID: userID, Kind: events.KindSelectionChanged, CountryCode: code})
	}
}

// ClearError resets the shared error.
func (s *Store) ClearError() {
	s.mutate(func(st *State) { st.Error = "" })
}

// Reset returns the store to its initial state, selection included.
func (s *Store) Reset() {
	var userID domain.UserID
	s.mutate(func(st *State) {
		userID = st.UserID
		*st = initialState()
	})
	if userID != "" {
		s.publish(context.Background(), events.Event{UserID: userID, Kind: events.KindSessionReset})
	}
}

// Create writes a new record and inserts it locally. An existing record for the same code is
// overwritten.
func (s *Store) Create(ctx context.Context, userID domain.UserID, in CreateInput) (rec domain.RatingRecord, err error) {
	ctx, finish := s.instrument(ctx, "create", userID, in.CountryCode)
	defer func() { finish(err) }()

	path, verr := recordPath(userID, in.CountryCode)
	if verr != nil {
		return domain.RatingRecord{}, s.fail(verr)
	}

	now := s.now()
	rec = domain.RatingRecord{
		CountryCode:   in.CountryCode,
		UserID:        userID,
		Ratings:       in.Ratings,
		GeneralRating: domain.GeneralRating(in.Ratings),
		Comments:      in.Comments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.begin()
	if err := s.docs.Write(ctx, path, recordDocument(rec)); err != nil {
		s.logTransport("create", userID, in.CountryCode, err)
		return domain.RatingRecord{}, s.fail(transportError(msgCreateFailed, err))
	}

	s.mutate(func(st *State) {
		st.Loading = false
		if st.UserID == "" {
			st.UserID = userID
		}
		if st.UserID == userID {
			st.Countries[rec.CountryCode] = rec
		}
	})
	s.publish(ctx, events.Event{UserID: userID, Kind: events.KindRatingCreated, CountryCode: rec.CountryCode, Record: &rec})
	return rec, nil
}

// Update merges a partial change into an existing local record and persists the changed fields.
func (s *Store) Update(ctx context.Context, userID domain.UserID, in UpdateInput) (rec domain.RatingRecord, err error) {
	ctx, finish := s.instrument(ctx, "update", userID, in.CountryCode)
	defer func() { finish(err) }()

	path, verr := recordPath(userID, in.CountryCode)
	if verr != nil {
		return domain.RatingRecord{}, s.fail(verr)
	}
	if problems := patchProblems(in); problems != nil {
		return domain.RatingRecord{}, s.fail(validationError("invalid update", problems))
	}

	existing, ok := s.lookupFor(userID, in.CountryCode)
	if !ok {
		return domain.RatingRecord{}, s.fail(notFoundError(map[string]any{"countryCode": string(in.CountryCode)}))
	}

	rec = existing
	rec.Ratings = mergeRatings(existing.Ratings, in.Ratings)
	if in.GeneralRating.IsSpecified() {
		rec.GeneralRating = in.GeneralRating.Value()
	} else {
		rec.GeneralRating = domain.GeneralRating(rec.Ratings)
	}
	rec.UpdatedAt = s.now()

	// userId and createdAt never change; they keep a merge onto a record deleted elsewhere
	// decodable.
	fields := map[string]any{
		"countryCode":   string(rec.CountryCode),
		"userId":        string(rec.UserID),
		"createdAt":     formatTimestamp(rec.CreatedAt),
		"ratings":       ratingsDocument(rec.Ratings),
		"generalRating": rec.GeneralRating,
		"updatedAt":     formatTimestamp(rec.UpdatedAt),
	}
	if in.Comments.IsSpecified() {
		rec.Comments = in.Comments.Value()
		if in.Comments.IsNull() {
			rec.Comments = ""
		}
		fields["comments"] = rec.Comments
	}

	s.begin()
	if err := s.docs.Merge(ctx, path, fields); err != nil {
		s.logTransport("update", userID, in.CountryCode, err)
		return domain.RatingRecord{}, s.fail(transportError(msgUpdateFailed, err))
	}

	s.mutate(func(st *State) {
		st.Loading = false
		if st.UserID == userID {
			st.Countries[rec.CountryCode] = rec
		}
	})
	s.publish(ctx, events.Event{UserID: userID, Kind: events.KindRatingUpdated, CountryCode: rec.CountryCode, Record: &rec})
	return rec, nil
}

// Remove deletes an existing record remotely, then locally. A selection pointing at it is cleared.
func (s *Store) Remove(ctx context.Context, userID domain.UserID, code domain.CountryCode) (err error) {
	ctx, finish := s.instrument(ctx, "remove", userID, code)
	defer func() { finish(err) }()

	path, verr := recordPath(userID, code)
	if verr != nil {
		return s.fail(verr)
	}
	if _, ok := s.lookupFor(userID, code); !ok {
		return s.fail(notFoundError(map[string]any{"countryCode": string(code)}))
	}

	s.begin()
	if err := s.docs.Delete(ctx, path); err != nil {
		s.logTransport("remove", userID, code, err)
		return s.fail(transportError(msgRemoveFailed, err))
	}

	s.mutate(func(st *State) {
		st.Loading = false
		if st.UserID == userID {
			delete(st.Countries, code)
		}
		if st.SelectedCountry == code {
			st.SelectedCountry = domain.NoCountry
		}
	})
	s.publish(ctx, events.Event{UserID: userID, Kind: events.KindRatingRemoved, CountryCode: code})
	return nil
}

func (s *Store) lookupFor(userID domain.UserID, code domain.CountryCode) (domain.RatingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.UserID != userID {
		return domain.RatingRecord{}, false
	}
	rec, ok := s.state.Countries[code]
	return rec, ok
}

func recordPath(userID domain.UserID, code domain.CountryCode) (docstore.Path, *Error) {
	if userID == "" {
		return "", validationError(msgNoUser, map[string]any{"userId": "is required"})
	}
	p := docstore.UserCountryPath(userID, code)
	if err := p.Validate(); err != nil {
		return "", validationError("invalid country code", map[string]any{"countryCode": err.Error()})
	}
	return p, nil
}

func patchProblems(in UpdateInput) map[string]any {
	problems := map[string]any{}
	for name, f := range map[string]Optional[int]{
		"ratings.note":    in.Ratings.Note,
		"ratings.food":    in.Ratings.Food,
		"ratings.culture": in.Ratings.Culture,
		"ratings.price":   in.Ratings.Price,
	} {
		if f.IsNull() {
			problems[name] = "cannot be null"
		}
	}
	if in.GeneralRating.IsNull() {
		problems["generalRating"] = "cannot be null"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func mergeRatings(cur domain.Ratings, p RatingsPatch) domain.Ratings {
	if p.Note.IsSpecified() {
		cur.Note = p.Note.Value()
	}
	if p.Food.IsSpecified() {
		cur.Food = p.Food.Value()
	}
	if p.Culture.IsSpecified() {
		cur.Culture = p.Culture.Value()
	}
	if p.Price.IsSpecified() {
		cur.Price = p.Price.Value()
	}
	return cur
}

func (s *Store) publish(ctx context.Context, ev events.Event) {
	if s.events == nil {
		return
	}
	ev.ID = s.newEventID()
	ev.OccurredAt = s.clock.Now().UTC()
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("publish state event failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("userId", string(ev.UserID)),
			zap.Error(err),
		)
	}
}

func (s *Store) logTransport(op string, userID domain.UserID, code domain.CountryCode, err error) {
	s.log.Error("document store call failed",
		zap.String("op", op),
		zap.String("userId", string(userID)),
		zap.String("countryCode", string(code)),
		zap.Error(err),
	)
}
