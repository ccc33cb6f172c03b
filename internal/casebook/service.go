// Package casebook is the case library used by every surface: it joins the
// SQLite store, the stored recordings, the tag vocabulary and analytics.
package casebook

import (
	"context"
	"time"

	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/db"
	"github.com/elparko/CaseTracker/internal/tags"
	"go.uber.org/zap"
)

// AudioRemover deletes stored recordings.
type AudioRemover interface {
	Remove(ref string) error
}

// MutationObserver is told about every successful repository change.
type MutationObserver interface {
	ObserveMutation(op string)
}

// Service is the case library.
type Service struct {
	store    *db.Store
	audio    AudioRemover
	policy   analytics.Policy
	observer MutationObserver
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the analytics policy.
func WithPolicy(p analytics.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithObserver reports mutations to o.
func WithObserver(o MutationObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the clock used for analytics.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service over store. audio may be nil when recordings are not
// kept.
func New(store *db.Store, audio AudioRemover, opts ...Option) *Service {
	s := &Service{
		store:  store,
		audio:  audio,
		policy: analytics.DefaultPolicy(),
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) mutated(op string) {
	if s.observer != nil {
		s.observer.ObserveMutation(op)
	}
}

// Create persists a new case.
func (s *Service) Create(ctx context.Context, d cases.Draft) (cases.Record, error) {
	rec, err := s.store.Create(ctx, d)
	if err != nil {
		return cases.Record{}, err
	}
	s.mutated("create")
	return rec, nil
}

// Get returns one case.
func (s *Service) Get(ctx context.Context, id string) (cases.Record, error) {
	return s.store.Get(ctx, id)
}

// List returns cases newest first.
func (s *Service) List(ctx context.Context, skip, limit int) ([]cases.Record, error) {
	return s.store.List(ctx, skip, limit)
}

// Search returns the cases matching q, newest first.
func (s *Service) Search(ctx context.Context, q cases.Query) ([]cases.Record, error) {
	return s.store.Search(ctx, q)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, p cases.Patch) (cases.Record, error) {
	rec, err := s.store.Update(ctx, id, p)
	if err != nil {
		return cases.Record{}, err
	}
	s.mutated("update")
	return rec, nil
}

// SetFavorite marks or unmarks a case as favorite.
func (s *Service) SetFavorite(ctx context.Context, id string, favorite bool) (cases.Record, error) {
	return s.Update(ctx, id, cases.Patch{IsFavorite: cases.BoolPtr(favorite)})
}

// RemoveTags detaches tags from a case.
func (s *Service) RemoveTags(ctx context.Context, id string, drop []string) (cases.Record, error) {
	rec, err := s.store.RemoveTags(ctx, id, drop)
	if err != nil {
		return cases.Record{}, err
	}
	s.mutated("remove_tags")
	return rec, nil
}

// Delete permanently removes a case and its recording.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.mutated("delete")

	if s.audio != nil && rec.AudioReference != "" {
		if err := s.audio.Remove(rec.AudioReference); err != nil {
			s.log.Warn("remove case audio", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// Vocabulary builds the tag vocabulary from every stored case.
func (s *Service) Vocabulary(ctx context.Context) (*tags.Vocabulary, error) {
	lists, err := s.store.TagLists(ctx)
	if err != nil {
		return nil, err
	}
	return tags.NewVocabulary(lists), nil
}

// AllTags returns every distinct tag in use, sorted.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	v, err := s.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	return v.All(), nil
}

// TagCounts returns how many cases carry each tag.
func (s *Service) TagCounts(ctx context.Context) (map[string]int, error) {
	v, err := s.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	return v.Counts(), nil
}

// SuggestTags returns known tags containing query, minus exclude.
func (s *Service) SuggestTags(ctx context.Context, query string, exclude []string) ([]string, error) {
	v, err := s.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}
	return v.Suggest(query, exclude), nil
}

// Analytics summarizes the library as of now.
func (s *Service) Analytics(ctx context.Context) (analytics.Summary, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(all, s.now(), s.policy), nil
}
