package sim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// API provides HTTP control interface for the simulator
type API struct {
	gateway *Gateway
	logger  zerolog.Logger
}

// NewAPI creates a new control API
func NewAPI(g *Gateway, logger zerolog.Logger) *API {
	return &API{gateway: g, logger: logger.With().Str("component", "sim_control").Logger()}
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/agents", api.agentsHandler).Methods("GET")
	router.HandleFunc("/agents/{id}/state", api.stateHandler).Methods("POST")
	router.HandleFunc("/drop", api.dropHandler).Methods("POST")
}

// Start serves the control API until ctx is done.
func (api *API) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		api.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	api.logger.Info().Str("addr", addr).Msg("control API started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.gateway.Status())
}

func (api *API) agentsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.gateway.Agents())
}

// dropHandler closes all gateway connections to force a failover
func (api *API) dropHandler(w http.ResponseWriter, r *http.Request) {
	n := api.gateway.Drop()
	writeJSON(w, http.StatusOK, map[string]int{"dropped": n})
}

// stateHandler sets one agent's state. The state is a code or a name
// such as "talking".
func (api *API) stateHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		State      json.RawMessage `json:"state"`
		ReasonCode uint16          `json:"reasonCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	state, ok := parseState(req.State)
	if !ok {
		http.Error(w, "unknown state", http.StatusBadRequest)
		return
	}

	if err := api.gateway.SetState(id, state, req.ReasonCode); err != nil {
		if errors.Is(err, ErrUnknownAgent) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.logger.Info().Str("agent_id", id).Str("state", types.AgentStateName(state)).Msg("state set via control API")
	writeJSON(w, http.StatusOK, map[string]any{
		"agentId":   id,
		"state":     state,
		"stateName": types.AgentStateName(state),
	})
}

// parseState accepts a JSON number or a state name.
func parseState(raw json.RawMessage) (uint16, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		for code := types.AgentLogin; code <= types.AgentNotActive; code++ {
			if types.AgentStateName(code) == name {
				return code, true
			}
		}
		return 0, false
	}

	n, err := strconv.ParseUint(string(raw), 10, 16)
	if err != nil || n > uint64(types.AgentNotActive) {
		return 0, false
	}
	return uint16(n), true
}
