// Package model contains domain models passed between layers.
package model

import "errors"

// Sentinel errors for the vote pipeline. Match with errors.Is.
var (
	ErrUnknownCandidate    = errors.New("unknown candidate")
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidWinner       = errors.New("winner is not part of the pair")
	ErrSelfPair            = errors.New("candidate paired with itself")
	ErrAlreadyVoted        = errors.New("pair already voted in category")
	ErrTooFrequent         = errors.New("votes submitted too frequently")
	ErrHourlyQuotaExceeded = errors.New("hourly vote quota exceeded")
	ErrRemoteWriteFailed   = errors.New("remote write failed")
	ErrRemoteReadFailed    = errors.New("remote read failed")
	ErrLocalStateCorrupt   = errors.New("local state corrupt")
	ErrRatingPersistFailed = errors.New("rating persist failed")
)
