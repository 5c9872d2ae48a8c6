package api

import (
	"context"
	"net/http"
)

// IdentityDependencies defines the interface for voter identity and sync
// operations.
type IdentityDependencies interface {
	Identity() string
	ResetIdentity(ctx context.Context) (string, error)
	Sync(ctx context.Context) error
}

// IdentityHandler handles identity and sync requests.
type IdentityHandler struct {
	deps IdentityDependencies
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(deps IdentityDependencies) *IdentityHandler {
	return &IdentityHandler{deps: deps}
}

type identityResponse struct {
	VoterID string `json:"user_browser_id"`
}

// HandleGet handles GET /identity requests.
func (h *IdentityHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, identityResponse{VoterID: h.deps.Identity()})
}

// HandleReset handles POST /identity/reset requests.
func (h *IdentityHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id, err := h.deps.ResetIdentity(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{VoterID: id})
}

type syncResponse struct {
	Status string `json:"status"`
}

// HandleSync handles POST /sync requests. A failed sync still leaves the
// engine serving cached data, so it answers 503 with the failure.
func (h *IdentityHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sync(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "sync_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Status: "synced"})
}
