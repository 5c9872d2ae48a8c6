// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/arena/internal/adapters/remote"
	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/ledger"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/report"
	"github.com/okian/arena/internal/domain/validation"
	"github.com/sony/gobreaker"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	VoteDependencies
	LeaderboardDependencies
	NoticeDependencies
	IdentityDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	votesHandler       *VotesHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	noticesHandler     *NoticesHandler
	identityHandler    *IdentityHandler

	throttle *Throttle
}

// Option configures a Server.
type Option func(*Server)

// WithThrottle limits requests per client address.
func WithThrottle(t *Throttle) Option {
	return func(s *Server) {
		s.throttle = t
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		votesHandler:       NewVotesHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		rankHandler:        NewRankHandler(deps),
		noticesHandler:     NewNoticesHandler(deps),
		identityHandler:    NewIdentityHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		h = MetricsMiddleware(h, endpoint)
		if s.throttle != nil {
			h = s.throttle.Middleware(h)
		}
		mux.HandleFunc(pattern, h)
	}

	// Scrapes are not throttled.
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))

	handle("GET /stats", "stats", s.statsHandler.HandleStats)
	handle("POST /votes", "votes", s.votesHandler.HandlePostVote)
	handle("GET /votes/check", "votes_check", s.votesHandler.HandleCheck)
	handle("GET /votes/pairs", "votes_pairs", s.votesHandler.HandlePairs)
	handle("GET /leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	handle("GET /candidates/{id}", "candidate", s.rankHandler.HandleGetRank)
	handle("GET /errors", "errors", s.noticesHandler.HandleList)
	handle("DELETE /errors", "errors", s.noticesHandler.HandleClear)
	handle("DELETE /errors/{id}", "errors", s.noticesHandler.HandleDismiss)
	handle("GET /identity", "identity", s.identityHandler.HandleGet)
	handle("POST /identity/reset", "identity_reset", s.identityHandler.HandleReset)
	handle("POST /sync", "sync", s.identityHandler.HandleSync)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain errors to a status and a stable code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, validation.ErrMalformedRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrInvalidCategory):
		return http.StatusBadRequest, "invalid_category"
	case errors.Is(err, model.ErrUnknownCandidate):
		return http.StatusBadRequest, "unknown_candidate"
	case errors.Is(err, model.ErrSelfPair):
		return http.StatusBadRequest, "self_pair"
	case errors.Is(err, model.ErrInvalidWinner):
		return http.StatusBadRequest, "invalid_winner"
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, repository.ErrInvalidSortKey):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrNoticeNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrAlreadyVoted):
		return http.StatusConflict, "already_voted"
	case errors.Is(err, model.ErrTooFrequent):
		return http.StatusTooManyRequests, "too_frequent"
	case errors.Is(err, model.ErrHourlyQuotaExceeded):
		return http.StatusTooManyRequests, "hourly_quota_exceeded"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, model.ErrRemoteWriteFailed), errors.Is(err, model.ErrRemoteReadFailed),
		errors.Is(err, remote.ErrNotFound):
		return http.StatusServiceUnavailable, "remote_unavailable"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Receipt mirrors the committed-vote shape returned by POST /votes.
type Receipt = ledger.Receipt

// Notice mirrors an error feed entry.
type Notice = report.Entry
