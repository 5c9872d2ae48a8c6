// Package rating implements the ELO update applied after every committed vote.
package rating

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	// KFactor bounds how far a single vote can move a rating.
	KFactor = 32
	scale   = 400.0
)

// Expected returns the probability that a player rated ra beats one rated rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/scale))
}

// Update returns the new ratings of A and B after outcome. Each side is
// rounded half away from zero.
func Update(ra, rb int, outcome model.Outcome) (int, int) {
	sa, sb := 1.0, 0.0
	if outcome == model.BWins {
		sa, sb = 0.0, 1.0
	}
	na := float64(ra) + KFactor*(sa-Expected(ra, rb))
	nb := float64(rb) + KFactor*(sb-Expected(rb, ra))
	return int(math.Round(na)), int(math.Round(nb))
}

// Catalog is the shared in-memory candidate set the engine mutates.
type Catalog interface {
	Get(id string) (model.Candidate, bool)
	Upsert(c model.Candidate)
}

// Persister writes a candidate's ratings to the authoritative store.
type Persister interface {
	UpdateCandidateRating(ctx context.Context, id string, r model.Ratings, voteCount int) error
}

// Engine applies vote outcomes to the catalog and persists the result.
type Engine struct {
	catalog Catalog
	store   Persister
	logger  logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an Engine over catalog, persisting through store.
func NewEngine(catalog Catalog, store Persister, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		logger:  logger.Get().Named("rating"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyOutcome updates category ratings of a and b, recomputes overall,
// bumps both vote counts and writes both back into the catalog before
// persisting them. A persist failure returns ErrRatingPersistFailed and the
// catalog keeps the new values.
func (e *Engine) ApplyOutcome(ctx context.Context, a, b string, outcome model.Outcome, category model.Category) (model.Candidate, model.Candidate, error) {
	start := time.Now()
	if !category.IsVotable() {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: %s", model.ErrInvalidCategory, category)
	}
	ca, ok := e.catalog.Get(a)
	if !ok {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: %s", model.ErrUnknownCandidate, a)
	}
	cb, ok := e.catalog.Get(b)
	if !ok {
		return model.Candidate{}, model.Candidate{}, fmt.Errorf("%w: %s", model.ErrUnknownCandidate, b)
	}

	na, nb := Update(ca.Ratings.Get(category), cb.Ratings.Get(category), outcome)
	ca.Ratings.Set(category, na)
	cb.Ratings.Set(category, nb)
	ca.Ratings.Recompute()
	cb.Ratings.Recompute()
	ca.VoteCount++
	cb.VoteCount++

	e.catalog.Upsert(ca)
	e.catalog.Upsert(cb)

	// Both writes run to completion; one failing does not abort the other.
	var g errgroup.Group
	for _, c := range []model.Candidate{ca, cb} {
		g.Go(func() error {
			return e.store.UpdateCandidateRating(ctx, c.ID, c.Ratings, c.VoteCount)
		})
	}
	err := g.Wait()
	metrics.RecordRatingUpdateLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRatingPersistFailure()
		e.logger.Error(ctx, "rating persist failed",
			logger.String("a", a),
			logger.String("b", b),
			logger.String("category", category.String()),
			logger.Error(err),
		)
		return ca, cb, fmt.Errorf("%w: %w", model.ErrRatingPersistFailed, err)
	}

	e.logger.Debug(ctx, "ratings updated",
		logger.String("category", category.String()),
		logger.String("a", a), logger.Int("a_rating", na),
		logger.String("b", b), logger.Int("b_rating", nb),
	)
	return ca, cb, nil
}
