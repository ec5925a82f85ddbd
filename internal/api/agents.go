// Package api serves the REST view of the agent directory, the state change
// journal and the gateway connection.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// maxQueryAgents bounds a single POST /api/agents/query body
const maxQueryAgents = 500

// agentIDPattern is the agent id form the bridge accepts in a client command
var agentIDPattern = regexp.MustCompile(`^[0-9]+$`)

// AgentView is an AgentRecord with its state name resolved
type AgentView struct {
	types.AgentRecord
	StateName string `json:"stateName"`
}

func newAgentView(rec types.AgentRecord) AgentView {
	return AgentView{AgentRecord: rec, StateName: types.AgentStateName(rec.AgentState)}
}

// QueryRequest asks the gateway for the current state of some agents
type QueryRequest struct {
	PeripheralID uint32   `json:"peripheralId"`
	AgentIDs     []string `json:"agentIds"`
}

// AgentsHandler serves the directory and forwards queries to the bridge
type AgentsHandler struct {
	dir      *cache.Directory
	commands *broker.Broker[types.ClientEvent]
	logger   zerolog.Logger
}

// NewAgentsHandler creates a new AgentsHandler
func NewAgentsHandler(dir *cache.Directory, commands *broker.Broker[types.ClientEvent], logger zerolog.Logger) *AgentsHandler {
	return &AgentsHandler{
		dir:      dir,
		commands: commands,
		logger:   logger.With().Str("component", "agents_handler").Logger(),
	}
}

// List handles GET /api/agents
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.dir.Snapshot()
	views := make([]AgentView, 0, len(records))
	for _, rec := range records {
		views = append(views, newAgentView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /api/agents/{agentID}
func (h *AgentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	rec, ok := h.dir.Get(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, newAgentView(rec))
}

// Query handles POST /api/agents/query. The request becomes an ordinary
// client command so it takes the same path as TCP and WebSocket input.
func (h *AgentsHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.AgentIDs) == 0 {
		writeError(w, http.StatusBadRequest, "agentIds is required")
		return
	}
	if len(req.AgentIDs) > maxQueryAgents {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d agents per query", maxQueryAgents))
		return
	}

	for _, id := range req.AgentIDs {
		if !agentIDPattern.MatchString(id) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid agent id %q", id))
			return
		}
	}

	parts := make([]string, 0, len(req.AgentIDs))
	for _, id := range req.AgentIDs {
		parts = append(parts, fmt.Sprintf("%d-%s", req.PeripheralID, id))
	}
	h.commands.Publish(types.ClientEvent{ClientID: "api", Payload: []byte(strings.Join(parts, ","))})

	h.logger.Info().
		Uint32("peripheral_id", req.PeripheralID).
		Int("agents", len(req.AgentIDs)).
		Str("requested_by", requester(r)).
		Msg("agent query accepted")

	writeJSON(w, http.StatusAccepted, map[string]int{"queued": len(req.AgentIDs)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
