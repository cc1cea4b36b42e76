package handler

import (
	"net/http"

	"github.com/airmonitor/airmonitor/internal/api/response"
)

// StateHandler serves the consolidated UI state.
type StateHandler struct {
	ctrl Orchestrator
}

// NewStateHandler creates a new StateHandler.
func NewStateHandler(ctrl Orchestrator) *StateHandler {
	return &StateHandler{ctrl: ctrl}
}

// GetState handles GET /v1/state.
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.State(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, st)
}
