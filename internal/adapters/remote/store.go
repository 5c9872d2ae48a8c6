// Package remote defines the authoritative store shared by every voter and
// the adapters that implement it.
package remote

import (
	"context"
	"errors"

	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/model"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrDuplicateVote means a record with the same natural key already exists.
	ErrDuplicateVote = errors.New("duplicate vote record")
	ErrNotFound      = errors.New("candidate not found")
)

// ChangeHandler receives candidate change notifications. It must not block.
type ChangeHandler func(model.ChangeEvent)

// Store is the authoritative candidate and vote record store.
type Store interface {
	FetchCandidates(ctx context.Context) ([]model.Candidate, error)
	InsertCandidates(ctx context.Context, cs []model.Candidate) error
	// UpdateCandidateMetadata writes descriptive fields only; ratings and
	// vote counts are left untouched.
	UpdateCandidateMetadata(ctx context.Context, c model.Candidate) error
	UpdateCandidateRating(ctx context.Context, id string, r model.Ratings, voteCount int) error

	// InsertVoteRecord appends v, failing with ErrDuplicateVote when the
	// voter already has a record for the same category and unordered pair.
	InsertVoteRecord(ctx context.Context, v model.VoteRecord) error
	FetchVoteRecordsByIdentity(ctx context.Context, voterID string) ([]model.VoteRecord, error)

	// SubscribeToCandidateChanges delivers change events to h until the
	// returned unsubscribe func is called or ctx ends.
	SubscribeToCandidateChanges(ctx context.Context, h ChangeHandler) (unsubscribe func(), err error)

	Close() error
}

// NaturalKey identifies a vote record by voter, category and unordered pair.
func NaturalKey(v model.VoteRecord) string {
	return v.VoterID + "/" + v.Category.String() + "/" + dedupe.PairKey(v.CandidateA, v.CandidateB)
}
