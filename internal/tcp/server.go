// Package tcp serves agent updates over a raw TCP stream. Records are
// written back to back as CBOR; whatever the client sends is treated as
// query commands.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/hub"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Config configures the listener. TLS is used when both files are set.
type Config struct {
	Addr         string
	CertFile     string
	KeyFile      string
	SendBuffer   int
	WriteTimeout time.Duration
}

type Server struct {
	cfg      Config
	hub      *hub.Hub
	commands *broker.Broker[types.ClientEvent]
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(cfg Config, h *hub.Hub, commands *broker.Broker[types.ClientEvent], m *metrics.Metrics, logger zerolog.Logger) *Server {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 4096
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		cfg:      cfg,
		hub:      h,
		commands: commands,
		metrics:  m,
		logger:   logger.With().Str("component", "tcp").Logger(),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	var (
		ln  net.Listener
		err error
	)
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		cert, lerr := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
		if lerr != nil {
			return fmt.Errorf("load tls key pair: %w", lerr)
		}
		ln, err = tls.Listen("tcp", s.cfg.Addr, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	} else {
		ln, err = net.Listen("tcp", s.cfg.Addr)
	}
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info().Str("addr", ln.Addr().String()).Bool("tls", s.cfg.CertFile != "").Msg("tcp server listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts clients until ctx is done. It calls Listen first when the
// socket is not bound yet.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeAll()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				s.logger.Info().Msg("tcp server stopped")
				return nil
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		c := newConn(nc, s)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.run()
		}()
	}
}

func (s *Server) track(nc net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[nc] = struct{}{}
	} else {
		delete(s.conns, nc)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for nc := range s.conns {
		nc.Close()
	}
}
