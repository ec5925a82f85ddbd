package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers groups everything mounted under /api
type Handlers struct {
	Agents  *AgentsHandler
	History *HistoryHandler
	Admin   *AdminHandler
}

// Router builds the /api subrouter. auth may be nil.
func (h Handlers) Router(auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if auth != nil {
		r.Use(auth)
	}

	r.Get("/agents", h.Agents.List)
	r.Post("/agents/query", h.Agents.Query)
	r.Get("/agents/{agentID}", h.Agents.Get)
	r.Get("/agents/{agentID}/history", h.History.GetHistory)
	r.Get("/gateway", h.Admin.GatewayStatus)
	r.Delete("/admin/journal", h.Admin.TruncateJournal)
	return r
}
