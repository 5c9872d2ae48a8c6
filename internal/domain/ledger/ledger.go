// Package ledger records votes: it runs the admission checks, writes the
// vote record remotely, applies the rating change and marks the pair as
// voted for the current identity.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/report"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// KeyVotedPairs is the local storage key of the serialized voted-pairs index.
const KeyVotedPairs = "arena_model_pair_votes"

// VotedPairsTTL is how long the persisted index is kept.
const VotedPairsTTL = 365 * 24 * time.Hour

// Notice titles and dismiss delays raised by RecordVote.
const (
	TitleInvalidVote   = "Invalid Vote"
	TitleRateLimited   = "Rate Limit Exceeded"
	TitleAlreadyVoted  = "Already Voted"
	TitleRecordFailed  = "Vote Recording Failed"
	TitleRatingFailed  = "Rating Update Failed"
	TitleLocalCorrupt  = "Local Vote History Reset"
	tooFrequentDismiss = 3 * time.Second
	quotaDismiss       = 10 * time.Second
)

// KV is the local persisted key/value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Checker validates a vote request against the catalog.
type Checker interface {
	CheckShape(req model.VoteRequest) error
	Validate(ctx context.Context, a, b, category string) (model.Category, error)
}

// Limiter gates vote cadence and quota.
type Limiter interface {
	Check(ctx context.Context) error
	RecordSuccess(ctx context.Context) error
}

// Rater applies a vote outcome to both candidates.
type Rater interface {
	ApplyOutcome(ctx context.Context, a, b string, outcome model.Outcome, category model.Category) (model.Candidate, model.Candidate, error)
}

// Recorder persists vote records remotely.
type Recorder interface {
	InsertVoteRecord(ctx context.Context, v model.VoteRecord) error
}

// Voter returns the voter token, issuing one on first use.
type Voter interface {
	Acquire(ctx context.Context) (string, error)
}

// Deps are the collaborators a Ledger needs.
type Deps struct {
	Local    KV
	Remote   Recorder
	Checker  Checker
	Limiter  Limiter
	Rater    Rater
	Voter    Voter
	Reporter report.Reporter
}

// Receipt describes a committed vote.
type Receipt struct {
	Record model.VoteRecord `json:"record"`
	A      model.Candidate  `json:"model_a"`
	B      model.Candidate  `json:"model_b"`
}

// Ledger serializes vote submissions for one client instance.
type Ledger struct {
	mu    sync.Mutex
	deps  Deps
	index *dedupe.Index
	clock clockwork.Clock

	logger logger.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used for vote timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

// New creates a Ledger.
func New(deps Deps, opts ...Option) *Ledger {
	l := &Ledger{
		deps:   deps,
		index:  dedupe.NewIndex(),
		clock:  clockwork.NewRealClock(),
		logger: logger.Get().Named("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HasVoted reports whether the current identity already voted on the
// unordered pair in category.
func (l *Ledger) HasVoted(a, b string, category model.Category) bool {
	return l.index.Has(category, a, b)
}

// Pairs returns the sorted pair keys voted in category.
func (l *Ledger) Pairs(category model.Category) []string {
	return l.index.Keys(category)
}

// Size returns the number of voted pairs across categories.
func (l *Ledger) Size() int64 {
	return l.index.Size()
}

// Load replaces the in-memory index with the persisted one. A corrupt
// persisted index is reported, deleted and replaced by an empty one; the
// returned error then wraps model.ErrLocalStateCorrupt.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, ok, err := l.deps.Local.Get(ctx, KeyVotedPairs)
	if err != nil {
		return fmt.Errorf("read voted pairs: %w", err)
	}
	if !ok || raw == "" {
		l.index.Reset()
		metrics.UpdateVotedPairs(0)
		return nil
	}
	if err := l.index.UnmarshalJSON([]byte(raw)); err != nil {
		l.index.Reset()
		_ = l.deps.Local.Delete(ctx, KeyVotedPairs)
		metrics.UpdateVotedPairs(0)
		l.report(ctx, TitleLocalCorrupt, err.Error(), 0)
		return err
	}
	metrics.UpdateVotedPairs(int(l.index.Size()))
	return nil
}

// Save persists the index.
func (l *Ledger) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(ctx)
}

func (l *Ledger) save(ctx context.Context) error {
	b, err := l.index.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode voted pairs: %w", err)
	}
	if err := l.deps.Local.Set(ctx, KeyVotedPairs, string(b), VotedPairsTTL); err != nil {
		return fmt.Errorf("write voted pairs: %w", err)
	}
	metrics.UpdateVotedPairs(int(l.index.Size()))
	return nil
}

// Merge adds remote vote records to the index and persists it. Pairs are
// only ever added.
func (l *Ledger) Merge(ctx context.Context, records []model.VoteRecord) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := l.index.Merge(records)
	if err := l.save(ctx); err != nil {
		return added, err
	}
	return added, nil
}

// Reset forgets every voted pair, in memory and on disk.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.index.Reset()
	metrics.UpdateVotedPairs(0)
	if err := l.deps.Local.Delete(ctx, KeyVotedPairs); err != nil {
		return fmt.Errorf("delete voted pairs: %w", err)
	}
	return nil
}

// RecordVote admits and commits one vote. Checks run in a fixed order:
// request shape, catalog validation, rate limit, winner, duplicate. Quota is
// consumed only once the vote record is stored remotely.
//
// A rating persist failure still commits the vote: the pair is marked and
// quota consumed, and the returned error wraps model.ErrRatingPersistFailed
// alongside a valid Receipt.
func (l *Ledger) RecordVote(ctx context.Context, req model.VoteRequest) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.deps.Checker.CheckShape(req); err != nil {
		return Receipt{}, l.reject(ctx, "malformed", TitleInvalidVote, err, 0)
	}
	category, err := l.deps.Checker.Validate(ctx, req.CandidateA, req.CandidateB, req.Category)
	if err != nil {
		return Receipt{}, l.reject(ctx, reason(err), TitleInvalidVote, err, 0)
	}
	if err := l.deps.Limiter.Check(ctx); err != nil {
		dismiss := tooFrequentDismiss
		if errors.Is(err, model.ErrHourlyQuotaExceeded) {
			dismiss = quotaDismiss
		}
		return Receipt{}, l.reject(ctx, reason(err), TitleRateLimited, err, dismiss)
	}

	var outcome model.Outcome
	switch req.WinnerID {
	case req.CandidateA:
		outcome = model.AWins
	case req.CandidateB:
		outcome = model.BWins
	default:
		err := fmt.Errorf("%w: %q", model.ErrInvalidWinner, req.WinnerID)
		return Receipt{}, l.reject(ctx, "invalid_winner", TitleInvalidVote, err, 0)
	}

	if l.index.Has(category, req.CandidateA, req.CandidateB) {
		err := fmt.Errorf("%w: %s in %s", model.ErrAlreadyVoted, dedupe.PairKey(req.CandidateA, req.CandidateB), category)
		return Receipt{}, l.reject(ctx, "duplicate", TitleAlreadyVoted, err, 0)
	}

	voter, err := l.deps.Voter.Acquire(ctx)
	if err != nil {
		metrics.RecordVoteRejected("identity")
		l.report(ctx, TitleRecordFailed, err.Error(), 0)
		return Receipt{}, fmt.Errorf("acquire voter id: %w", err)
	}

	rec := model.VoteRecord{
		CandidateA: req.CandidateA,
		CandidateB: req.CandidateB,
		Category:   category,
		Outcome:    outcome,
		Timestamp:  l.clock.Now().UnixMilli(),
		VoterID:    voter,
	}
	if err := l.deps.Remote.InsertVoteRecord(ctx, rec); err != nil {
		if errors.Is(err, remote.ErrDuplicateVote) {
			l.mark(ctx, rec)
			err = fmt.Errorf("%w: recorded remotely: %w", model.ErrAlreadyVoted, err)
			return Receipt{}, l.reject(ctx, "duplicate", TitleAlreadyVoted, err, 0)
		}
		metrics.RecordVoteRejected("remote_write")
		l.report(ctx, TitleRecordFailed, err.Error(), 0)
		return Receipt{}, err
	}

	a, b, rateErr := l.deps.Rater.ApplyOutcome(ctx, rec.CandidateA, rec.CandidateB, outcome, category)
	if rateErr != nil && !errors.Is(rateErr, model.ErrRatingPersistFailed) {
		// The record is stored but the catalog no longer knows a candidate.
		l.report(ctx, TitleRecordFailed, rateErr.Error(), 0)
		return Receipt{}, rateErr
	}

	if err := l.deps.Limiter.RecordSuccess(ctx); err != nil {
		l.logger.Warn(ctx, "persist rate limit state", logger.Error(err))
	}
	l.mark(ctx, rec)
	metrics.RecordVote(category.String())

	receipt := Receipt{Record: rec, A: a, B: b}
	if rateErr != nil {
		l.report(ctx, TitleRatingFailed, rateErr.Error(), 0)
		return receipt, rateErr
	}
	l.logger.Info(ctx, "vote recorded",
		logger.String("category", category.String()),
		logger.String("pair", dedupe.PairKey(rec.CandidateA, rec.CandidateB)),
		logger.String("winner", rec.Winner()),
	)
	return receipt, nil
}

// mark records the pair locally. Persist failures are logged; the in-memory
// index stays authoritative for this process.
func (l *Ledger) mark(ctx context.Context, rec model.VoteRecord) {
	l.index.SeenAndRecord(ctx, rec.Category, rec.CandidateA, rec.CandidateB)
	if err := l.save(ctx); err != nil {
		metrics.RecordLocalOp("save_voted_pairs", "error")
		l.logger.Warn(ctx, "persist voted pairs", logger.Error(err))
	}
}

func (l *Ledger) reject(ctx context.Context, why, title string, err error, dismiss time.Duration) error {
	metrics.RecordVoteRejected(why)
	l.report(ctx, title, err.Error(), dismiss)
	return err
}

func (l *Ledger) report(ctx context.Context, title, detail string, dismiss time.Duration) {
	if l.deps.Reporter != nil {
		l.deps.Reporter.Report(ctx, title, detail, dismiss)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, model.ErrUnknownCandidate):
		return "unknown_candidate"
	case errors.Is(err, model.ErrInvalidCategory):
		return "invalid_category"
	case errors.Is(err, model.ErrSelfPair):
		return "self_pair"
	case errors.Is(err, model.ErrTooFrequent):
		return "too_frequent"
	case errors.Is(err, model.ErrHourlyQuotaExceeded):
		return "hourly_quota"
	default:
		return "other"
	}
}
