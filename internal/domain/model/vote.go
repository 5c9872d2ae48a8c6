package model

import "time"

// Outcome encodes which side of a pair won.
type Outcome uint8

const (
	AWins Outcome = 0
	BWins Outcome = 1
)

// VoteRecord is one voter's judgement on a pair in a category.
// Records are append-only; the natural key is voter + category + unordered pair.
type VoteRecord struct {
	CandidateA string   `json:"model_a_id"`
	CandidateB string   `json:"model_b_id"`
	Category   Category `json:"category"`
	Outcome    Outcome  `json:"vote"`
	Timestamp  int64    `json:"timestamp"` // unix milliseconds
	VoterID    string   `json:"user_browser_id"`
}

// Winner returns the id of the winning candidate.
func (v VoteRecord) Winner() string {
	if v.Outcome == AWins {
		return v.CandidateA
	}
	return v.CandidateB
}

// VoteRequest is a vote submission before it is turned into a record.
type VoteRequest struct {
	CandidateA string `json:"model_a_id" validate:"required"`
	CandidateB string `json:"model_b_id" validate:"required"`
	Category   string `json:"category" validate:"required"`
	WinnerID   string `json:"winner_id" validate:"required"`
}

// ChangeKind tags a candidate change notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ChangeEvent is delivered by the remote store when a candidate row changes.
type ChangeEvent struct {
	Kind        ChangeKind `json:"kind"`
	CandidateID string     `json:"candidate_id"`
	At          time.Time  `json:"at"`
}
