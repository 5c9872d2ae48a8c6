package api

import (
	"fmt"
	"net/http"
)

// NoticeDependencies defines the interface for the error feed.
type NoticeDependencies interface {
	Errors() []Notice
	DismissError(id string) bool
	ClearErrors()
}

// NoticesHandler serves the error feed.
type NoticesHandler struct {
	deps NoticeDependencies
}

// NewNoticesHandler creates a new notices handler.
func NewNoticesHandler(deps NoticeDependencies) *NoticesHandler {
	return &NoticesHandler{deps: deps}
}

// HandleList handles GET /errors requests.
func (h *NoticesHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	list := h.deps.Errors()
	if list == nil {
		list = []Notice{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDismiss handles DELETE /errors/{id} requests.
func (h *NoticesHandler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.deps.DismissError(id) {
		writeFailure(w, fmt.Errorf("%w: %s", ErrNoticeNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClear handles DELETE /errors requests.
func (h *NoticesHandler) HandleClear(w http.ResponseWriter, _ *http.Request) {
	h.deps.ClearErrors()
	w.WriteHeader(http.StatusNoContent)
}
