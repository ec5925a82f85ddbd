package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/storage"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryHandler provides REST endpoints for journaled state changes
type HistoryHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(store storage.Store, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "history_handler").Logger(),
	}
}

// GetHistory returns state changes for the given agent, newest first
// GET /api/agents/{agentID}/history?limit=N
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	changes, err := h.store.GetAgentHistory(r.Context(), agentID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to get agent history")
		writeError(w, http.StatusInternalServerError, "failed to retrieve history")
		return
	}

	if changes == nil {
		changes = []types.StateChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}
