package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
	"github.com/sony/gobreaker"
)

const (
	defaultMaxFailures = 5
	defaultOpenTimeout = 30 * time.Second
)

// Guarded wraps a Store with a circuit breaker, metrics and error
// classification. Read failures are wrapped in model.ErrRemoteReadFailed and
// write failures in model.ErrRemoteWriteFailed. ErrDuplicateVote passes
// through unwrapped and does not count against the breaker.
type Guarded struct {
	inner       Store
	cb          *gobreaker.CircuitBreaker
	maxFailures uint32
	openTimeout time.Duration
	logger      logger.Logger
}

// GuardOption configures a Guarded store.
type GuardOption func(*Guarded)

// WithMaxFailures sets the consecutive failure count that opens the breaker.
func WithMaxFailures(n int) GuardOption {
	return func(g *Guarded) {
		if n > 0 {
			g.maxFailures = uint32(n)
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.openTimeout = d
		}
	}
}

// NewGuarded wraps inner.
func NewGuarded(inner Store, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:       inner,
		maxFailures: defaultMaxFailures,
		openTimeout: defaultOpenTimeout,
		logger:      logger.Get().Named("remote"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     g.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= g.maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDuplicateVote) || errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn(context.Background(), "circuit breaker state changed",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateBreakerState(name, breakerStateValue(to))
		},
	})
	metrics.UpdateBreakerState("remote", 0)
	return g
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

func (g *Guarded) call(ctx context.Context, op string, kind error, fn func() (any, error)) (any, error) {
	start := time.Now()
	res, err := g.cb.Execute(fn)
	ms := float64(time.Since(start).Milliseconds())
	switch {
	case err == nil:
		metrics.RecordRemoteCall(op, "ok", ms)
		return res, nil
	case errors.Is(err, ErrDuplicateVote):
		metrics.RecordRemoteCall(op, "duplicate", ms)
		return res, err
	default:
		metrics.RecordRemoteCall(op, "error", ms)
		metrics.RecordErrorByComponent("remote", op)
		g.logger.Debug(ctx, "remote call failed", logger.String("op", op), logger.Error(err))
		return res, fmt.Errorf("%w: %s: %w", kind, op, err)
	}
}

func (g *Guarded) FetchCandidates(ctx context.Context) ([]model.Candidate, error) {
	res, err := g.call(ctx, OpFetchCandidates, model.ErrRemoteReadFailed, func() (any, error) {
		return g.inner.FetchCandidates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]model.Candidate), nil
}

func (g *Guarded) InsertCandidates(ctx context.Context, cs []model.Candidate) error {
	_, err := g.call(ctx, OpInsertCandidates, model.ErrRemoteWriteFailed, func() (any, error) {
		return nil, g.inner.InsertCandidates(ctx, cs)
	})
	return err
}

func (g *Guarded) UpdateCandidateMetadata(ctx context.Context, c model.Candidate) error {
	_, err := g.call(ctx, OpUpdateMetadata, model.ErrRemoteWriteFailed, func() (any, error) {
		return nil, g.inner.UpdateCandidateMetadata(ctx, c)
	})
	return err
}

func (g *Guarded) UpdateCandidateRating(ctx context.Context, id string, r model.Ratings, voteCount int) error {
	_, err := g.call(ctx, OpUpdateRating, model.ErrRemoteWriteFailed, func() (any, error) {
		return nil, g.inner.UpdateCandidateRating(ctx, id, r, voteCount)
	})
	return err
}

func (g *Guarded) InsertVoteRecord(ctx context.Context, v model.VoteRecord) error {
	_, err := g.call(ctx, OpInsertVote, model.ErrRemoteWriteFailed, func() (any, error) {
		return nil, g.inner.InsertVoteRecord(ctx, v)
	})
	return err
}

func (g *Guarded) FetchVoteRecordsByIdentity(ctx context.Context, voterID string) ([]model.VoteRecord, error) {
	res, err := g.call(ctx, OpFetchVotes, model.ErrRemoteReadFailed, func() (any, error) {
		return g.inner.FetchVoteRecordsByIdentity(ctx, voterID)
	})
	if err != nil {
		return nil, err
	}
	return res.([]model.VoteRecord), nil
}

func (g *Guarded) SubscribeToCandidateChanges(ctx context.Context, h ChangeHandler) (func(), error) {
	res, err := g.call(ctx, OpSubscribe, model.ErrRemoteReadFailed, func() (any, error) {
		return g.inner.SubscribeToCandidateChanges(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return res.(func()), nil
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}
