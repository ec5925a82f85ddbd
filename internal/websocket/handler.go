// Package websocket serves agent updates to browser and service clients
// over WebSocket. Each record is sent as one binary frame; text or binary
// frames from the client are query commands.
package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/auth"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/config"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/hub"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub       *hub.Hub
	commands  *broker.Broker[types.ClientEvent]
	validator *auth.Validator
	config    *config.Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. validator may be nil.
func NewHandler(h *hub.Hub, commands *broker.Broker[types.ClientEvent], validator *auth.Validator, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	handler := &Handler{
		hub:       h,
		commands:  commands,
		validator: validator,
		config:    cfg,
		metrics:   m,
		logger:    logger.With().Str("component", "websocket").Logger(),
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return handler
}

// originChecker allows requests without an Origin header (non-browser
// clients) and origins on the allowlist. "*" allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.validator.Authenticate(r); err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket client rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.commands, h.config, h.metrics, h.logger)
	client.Start()
}
