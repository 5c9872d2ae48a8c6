package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/arena/internal/domain/model"
)

// maxVoteBody bounds POST /votes payloads.
const maxVoteBody = 4 << 10

// VoteDependencies defines the interface for vote operations.
type VoteDependencies interface {
	Vote(ctx context.Context, req model.VoteRequest) (Receipt, error)
	HasVoted(a, b, category string) (bool, error)
	Pairs(category string) ([]string, error)
}

// VotesHandler handles vote requests.
type VotesHandler struct {
	deps VoteDependencies
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps VoteDependencies) *VotesHandler {
	return &VotesHandler{deps: deps}
}

type voteResponse struct {
	Receipt
	// Warning is set when the vote committed but the new ratings could not
	// be written remotely.
	Warning string `json:"warning,omitempty"`
}

// HandlePostVote handles POST /votes requests.
func (h *VotesHandler) HandlePostVote(w http.ResponseWriter, r *http.Request) {
	var req model.VoteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVoteBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	receipt, err := h.deps.Vote(r.Context(), req)
	switch {
	case errors.Is(err, model.ErrRatingPersistFailed):
		writeJSON(w, http.StatusAccepted, voteResponse{Receipt: receipt, Warning: err.Error()})
	case err != nil:
		writeFailure(w, err)
	default:
		writeJSON(w, http.StatusCreated, voteResponse{Receipt: receipt})
	}
}

type checkResponse struct {
	CandidateA string `json:"model_a_id"`
	CandidateB string `json:"model_b_id"`
	Category   string `json:"category"`
	Voted      bool   `json:"voted"`
}

// HandleCheck handles GET /votes/check?model_a_id=&model_b_id=&category=.
func (h *VotesHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b := strings.TrimSpace(q.Get("model_a_id")), strings.TrimSpace(q.Get("model_b_id"))
	category := q.Get("category")
	if a == "" || b == "" {
		writeFailure(w, fmt.Errorf("%w: model_a_id and model_b_id are required", ErrBadRequest))
		return
	}
	voted, err := h.deps.HasVoted(a, b, category)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{CandidateA: a, CandidateB: b, Category: category, Voted: voted})
}

type pairsResponse struct {
	Category string   `json:"category"`
	Pairs    []string `json:"pairs"`
}

// HandlePairs handles GET /votes/pairs?category=.
func (h *VotesHandler) HandlePairs(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	pairs, err := h.deps.Pairs(category)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if pairs == nil {
		pairs = []string{}
	}
	writeJSON(w, http.StatusOK, pairsResponse{Category: category, Pairs: pairs})
}
