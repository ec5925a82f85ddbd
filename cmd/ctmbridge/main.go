package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/api"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/auth"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/bridge"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/config"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cti"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/hub"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/storage"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/supervisor"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/tcp"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/ticker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/websocket"
	"github.com/dennisdiepolder/monti/ctmbridge/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log.Logger = newLogger(cfg.LogFormat, os.Stderr)

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("side_a", cfg.CTI.Address(cti.SideActive)).
		Str("side_b", cfg.CTI.Address(cti.SideStandby)).
		Bool("secure", cfg.CTI.Secure).
		Bool("ws_enabled", cfg.WSEnabled).
		Bool("tcp_enabled", cfg.TCPEnabled).
		Str("log_level", cfg.LogLevel).
		Msg("starting ctmbridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	dir := cache.NewDirectory()

	// Brokers
	gatewayBroker := broker.New[types.GatewayEvent]("gateway", log.Logger)
	clientBroker := broker.New[types.ClientEvent]("client", log.Logger)
	bridgeBroker := broker.New[types.BridgeEvent]("bridge", log.Logger)
	errorBroker := broker.New[types.ErrorEvent]("errors", log.Logger)
	journalBroker := broker.New[types.StateChange]("journal", log.Logger)

	// Journal store
	store, err := storage.NewStore(ctx, storage.LoadConfig(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open journal store")
	}
	journal := storage.NewJournal(store, journalBroker, m, log.Logger)
	journal.Start()

	// Client fan-out
	clientHub := hub.NewHub(dir, m, log.Logger)
	go clientHub.Run(ctx)
	bridgeBroker.Subscribe(clientHub.Subscriber())

	// Gateway <-> client translation
	msgBridge := bridge.New(dir, bridge.Brokers{
		Gateway: gatewayBroker,
		Client:  clientBroker,
		Bridge:  bridgeBroker,
		Errors:  errorBroker,
		Journal: journalBroker,
	}, m, log.Logger)
	msgBridge.Start()

	gatewayBroker.Start()
	clientBroker.Start()
	bridgeBroker.Start()
	errorBroker.Start()
	journalBroker.Start()

	// Gateway connection
	side := cti.NewSide()
	deps := cti.Deps{Gateway: gatewayBroker, Bridge: bridgeBroker, Errors: errorBroker, Metrics: m}
	sup := supervisor.New(side, func(id uint64) supervisor.Session {
		return cti.NewSession(id, cfg.CTI, side, deps, log.Logger)
	}, errorBroker, cfg.Failover, m, log.Logger)
	sup.Start(ctx)

	go ticker.NewSampler(dir, []ticker.Queue{gatewayBroker, clientBroker, bridgeBroker, errorBroker, journalBroker},
		m, cfg.SampleInterval, log.Logger).Start(ctx)

	// TCP clients
	tcpDone := make(chan struct{})
	if cfg.TCPEnabled {
		tcpServer := tcp.NewServer(tcp.Config{
			Addr:         ":" + cfg.TCPPort,
			CertFile:     cfg.TLSCertFile,
			KeyFile:      cfg.TLSKeyFile,
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteWait,
		}, clientHub, clientBroker, m, log.Logger)
		if err := tcpServer.Listen(); err != nil {
			log.Fatal().Err(err).Msg("failed to start TCP listener")
		}
		go func() {
			defer close(tcpDone)
			if err := tcpServer.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("TCP server stopped")
			}
		}()
	} else {
		close(tcpDone)
	}

	validator, err := auth.NewValidator(cfg.Auth, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth")
	}

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes
	r.Get("/health", healthHandler(m, sup))
	r.Get("/metrics", m.Handler())

	if cfg.WSEnabled {
		// The handler authenticates before upgrading.
		r.Get(cfg.WSPath, websocket.NewHandler(clientHub, clientBroker, validator, cfg, m, log.Logger).ServeHTTP)
	}

	var apiAuth func(http.Handler) http.Handler
	if validator.Enabled() {
		apiAuth = validator.Middleware
	}
	r.Mount("/api", api.Handlers{
		Agents:  api.NewAgentsHandler(dir, clientBroker, log.Logger),
		History: api.NewHistoryHandler(store, log.Logger),
		Admin:   api.NewAdminHandler(sup, store, log.Logger),
	}.Router(apiAuth))

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Close the gateway session first so it sends CloseReq
	sup.Stop()
	msgBridge.Stop()
	journal.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	select {
	case <-tcpDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("TCP server did not stop in time")
	}

	gatewayBroker.Stop()
	clientBroker.Stop()
	bridgeBroker.Stop()
	errorBroker.Stop()
	journalBroker.Stop()

	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close journal store")
	}

	log.Info().Msg("ctmbridge stopped")
}

// newLogger returns the process logger. "json" writes raw JSON lines;
// anything else uses the console writer.
func newLogger(format string, out io.Writer) zerolog.Logger {
	if format == "json" {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

type gatewayStatus interface {
	Status() supervisor.Status
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Gateway supervisor.Status `json:"gateway"`
	Clients int64             `json:"clients"`
}

// healthHandler reports liveness. The process is healthy while it runs;
// the gateway state is informational.
func healthHandler(m *metrics.Metrics, gw gatewayStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(healthResponse{
			Status:  "ok",
			Service: "ctmbridge",
			Gateway: gw.Status(),
			Clients: m.GetActiveClients(),
		})
	}
}
