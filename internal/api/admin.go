package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/auth"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/storage"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/supervisor"
)

// StatusReporter reports the current gateway connection
type StatusReporter interface {
	Status() supervisor.Status
}

// AdminHandler exposes gateway status and journal maintenance
type AdminHandler struct {
	status StatusReporter
	store  storage.Store
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(status StatusReporter, store storage.Store, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		status: status,
		store:  store,
		logger: logger.With().Str("component", "admin_handler").Logger(),
	}
}

// GatewayStatus handles GET /api/gateway
func (h *AdminHandler) GatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status())
}

// TruncateJournal handles DELETE /api/admin/journal
func (h *AdminHandler) TruncateJournal(w http.ResponseWriter, r *http.Request) {
	if err := h.store.TruncateAll(r.Context()); err != nil {
		h.logger.Error().Err(err).Str("requested_by", requester(r)).Msg("failed to truncate journal")
		writeError(w, http.StatusInternalServerError, "failed to truncate journal")
		return
	}

	h.logger.Info().Str("requested_by", requester(r)).Msg("journal truncated")
	writeJSON(w, http.StatusOK, map[string]string{"message": "journal truncated"})
}

// requester names the authenticated caller, or "anonymous" when the API
// runs without auth.
func requester(r *http.Request) string {
	if claims, ok := auth.GetUserFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}
