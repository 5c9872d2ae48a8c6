// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/arena/internal/adapters/repository"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, sortBy string, limit int, ascending bool) ([]repository.Entry, error)
	Candidate(ctx context.Context, id, sortBy string) (repository.Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?sort=&order=&limit= requests.
// sort is a category or one of costCredits, contextWindow, speed; order is
// asc or desc (default).
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := defaultLeaderboardLimit
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeFailure(w, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		n = v
	}
	var ascending bool
	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		writeFailure(w, fmt.Errorf("%w: order must be asc or desc", ErrBadRequest))
		return
	}

	entries, err := h.deps.Leaderboard(r.Context(), q.Get("sort"), n, ascending)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []repository.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
