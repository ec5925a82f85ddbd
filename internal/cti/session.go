// Package cti owns the connection to the CTI gateway: dialing the selected
// side, opening the session, heartbeating, framing inbound messages and
// writing agent queries.
package cti

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

const (
	readBufferSize = 4096
	writeTimeout   = 5 * time.Second
)

var (
	// ErrPeerClosed is reported when the gateway closes the connection.
	ErrPeerClosed = errors.New("gateway closed the connection")
	// ErrClosed is returned by Connect when Close won the race.
	ErrClosed = errors.New("session closed")
)

// State is the session lifecycle state.
type State int32

const (
	StateInitialized State = iota
	StateConnecting
	StateConnected
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens the transport connection to the gateway.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Deps are the shared components a Session talks to.
type Deps struct {
	Gateway *broker.Broker[types.GatewayEvent]
	Bridge  *broker.Broker[types.BridgeEvent]
	Errors  *broker.Broker[types.ErrorEvent]
	Metrics *metrics.Metrics
	// Dialer overrides the plain or TLS dialer derived from Config.
	Dialer Dialer
}

// Session is one connection attempt to the gateway. A session runs at most
// once: after it reaches StateFinished it must be replaced.
type Session struct {
	id     uint64
	cfg    Config
	side   *Side
	deps   Deps
	logger zerolog.Logger

	state    atomic.Int32
	invokeID atomic.Uint32

	mu      sync.Mutex
	host    string
	conn    net.Conn
	cancel  context.CancelFunc
	group   *errgroup.Group
	writeMu sync.Mutex

	queries chan []byte
	limiter *rate.Limiter
	sub     *broker.Func[types.BridgeEvent]
}

// NewSession creates a session in StateInitialized.
func NewSession(id uint64, cfg Config, side *Side, deps Deps, logger zerolog.Logger) *Session {
	limit := rate.Inf
	if cfg.QueryRate > 0 {
		limit = rate.Limit(cfg.QueryRate)
	}
	burst := cfg.QueryBurst
	if burst < 1 {
		burst = 1
	}
	queue := cfg.QueryQueue
	if queue < 1 {
		queue = 1024
	}

	s := &Session{
		id:      id,
		cfg:     cfg,
		side:    side,
		deps:    deps,
		logger:  logger.With().Str("component", "cti").Uint64("session_id", id).Logger(),
		queries: make(chan []byte, queue),
		limiter: rate.NewLimiter(limit, burst),
	}
	s.invokeID.Store(1)
	s.sub = broker.NewFunc(s.handleBridgeEvent)
	return s
}

// ID returns the session id assigned by the supervisor.
func (s *Session) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Host returns the address dialed by Connect, or "" before that.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

func (s *Session) nextInvokeID() uint32 { return s.invokeID.Add(1) }

func (s *Session) dialer() Dialer {
	if s.deps.Dialer != nil {
		return s.deps.Dialer
	}
	nd := &net.Dialer{Timeout: s.cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	if s.cfg.Secure {
		return &tls.Dialer{NetDialer: nd, Config: s.cfg.TLSConfig}
	}
	return nd
}

// Connect dials the currently selected side, sends OPEN_REQ and starts the
// receive, heartbeat and query loops. It does nothing unless the session
// is still in StateInitialized. A dial failure is published as
// GatewayConnectionFailed and leaves the session in StateInitialized.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateInitialized), int32(StateConnecting)) {
		return nil
	}

	side := s.side.Current()
	addr := s.cfg.Address(side)
	s.mu.Lock()
	s.host = addr
	s.mu.Unlock()
	logger := s.logger.With().Str("side", side.String()).Str("host", addr).Logger()

	logger.Info().Bool("secure", s.cfg.Secure).Msg("connecting to gateway")

	dialCtx, cancelDial := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.dialer().DialContext(dialCtx, "tcp", addr)
	cancelDial()
	if err != nil {
		if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateInitialized)) {
			return ErrClosed
		}
		s.deps.Metrics.RecordGatewayConnectFailure()
		logger.Error().Err(err).Msg("gateway connection failed")
		s.deps.Errors.Publish(types.ErrorEvent{
			Kind:      types.GatewayConnectionFailed,
			SessionID: s.id,
			Host:      addr,
			Err:       err,
		})
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()

	s.deps.Bridge.Subscribe(s.sub)
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		s.deps.Bridge.Unsubscribe(s.sub)
		cancel()
		conn.Close()
		return ErrClosed
	}
	s.deps.Metrics.RecordGatewayConnect()
	logger.Info().Msg("connected to gateway")

	open := &wire.OpenReq{
		InvokeID:          s.invokeID.Load(),
		VersionNumber:     s.cfg.VersionNumber,
		IdleTimeout:       s.cfg.IdleTimeout,
		PeripheralID:      s.cfg.PeripheralID,
		ServicesRequested: s.cfg.ServicesRequested,
		CallMessageMask:   s.cfg.CallMessageMask,
		AgentStateMask:    s.cfg.AgentStateMask,
		ConfigMessageMask: s.cfg.ConfigMessageMask,
		ClientID:          s.cfg.ClientID,
		ClientPassword:    s.cfg.ClientPassword,
	}
	if err := s.write(wire.Encode(open)); err != nil {
		s.fail(err)
		cancel()
		conn.Close()
		return fmt.Errorf("send open request: %w", err)
	}
	logger.Info().Uint32("invoke_id", open.InvokeID).Msg("sent OPEN_REQ")

	g.Go(func() error { return s.receiveLoop(conn) })
	g.Go(func() error { return s.heartbeatLoop(gctx) })
	g.Go(func() error { return s.queryLoop(gctx) })
	g.Go(func() error {
		// A blocked Read only returns once the socket is closed.
		<-gctx.Done()
		conn.Close()
		return nil
	})
	return nil
}

// Wait blocks until the session's loops have exited and returns the error
// that ended them. It returns nil for a session that never connected.
func (s *Session) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Close finishes the session without reporting an error. It sends a
// best-effort CLOSE_REQ when connected and waits for the loops to exit.
func (s *Session) Close() error {
	prev := State(s.state.Swap(int32(StateFinished)))
	if prev == StateFinished {
		return nil
	}
	s.deps.Bridge.Unsubscribe(s.sub)

	s.mu.Lock()
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	if prev == StateConnected && conn != nil {
		req := &wire.CloseReq{InvokeID: s.nextInvokeID()}
		if err := s.write(wire.Encode(req)); err != nil {
			s.logger.Debug().Err(err).Msg("close request not sent")
		}
		s.deps.Metrics.RecordGatewayClosed()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	// The loops end with the error from the closed socket; that is the
	// expected outcome here, not a failure.
	_ = s.Wait()
	s.logger.Info().Str("previous_state", prev.String()).Msg("session closed")
	return nil
}

// fail moves a connected session to StateFinished and reports the loss
// once. Failures after Close or a previous failure are ignored.
func (s *Session) fail(err error) {
	if !s.state.CompareAndSwap(int32(StateConnected), int32(StateFinished)) {
		return
	}
	s.deps.Bridge.Unsubscribe(s.sub)

	s.mu.Lock()
	host, cancel := s.host, s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.deps.Metrics.RecordGatewayLost()
	s.logger.Error().Err(err).Str("host", host).Msg("gateway connection lost")
	s.deps.Errors.Publish(types.ErrorEvent{
		Kind:      types.GatewayConnectionLost,
		SessionID: s.id,
		Host:      host,
		Err:       err,
	})
}

// write sends one encoded message. Writes from the different loops are
// serialized so messages never interleave on the socket.
func (s *Session) write(b []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(b)
	return err
}

func (s *Session) receiveLoop(conn net.Conn) error {
	var framer wire.Framer
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			packets, ferr := framer.Feed(buf[:n])
			for _, p := range packets {
				s.deps.Gateway.Publish(types.GatewayEvent{Packet: p})
			}
			if ferr != nil {
				s.fail(ferr)
				return ferr
			}
		}
		if err == nil && n == 0 {
			err = ErrPeerClosed
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrPeerClosed
			}
			s.fail(err)
			return err
		}
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for s.State() == StateConnected {
		id := s.nextInvokeID()
		if err := s.write(wire.Encode(&wire.HeartbeatReq{InvokeID: id})); err != nil {
			s.fail(err)
			return err
		}
		s.deps.Metrics.RecordHeartbeatSent()
		s.logger.Debug().Uint32("invoke_id", id).Msg("sent HEARTBEAT_REQ")

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Session) queryLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-s.queries:
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := s.write(pkt); err != nil {
				s.fail(err)
				return err
			}
			s.deps.Metrics.RecordQuerySent()
		}
	}
}

// handleBridgeEvent queues agent queries addressed to the gateway. The
// invoke id is taken here so ids follow the order queries were requested.
func (s *Session) handleBridgeEvent(ev types.BridgeEvent) {
	if ev.Destination != types.DestinationGateway {
		return
	}
	q, ok := ev.Payload.(types.QueryAgentState)
	if !ok || s.State() != StateConnected {
		return
	}

	req := &wire.QueryAgentStateReq{
		InvokeID:     s.nextInvokeID(),
		PeripheralID: q.PeripheralID,
		AgentID:      q.AgentID,
	}

	select {
	case s.queries <- wire.Encode(req):
		s.logger.Debug().
			Uint32("invoke_id", req.InvokeID).
			Uint32("peripheral_id", req.PeripheralID).
			Str("agent_id", req.AgentID).
			Msg("queued QUERY_AGENT_STATE_REQ")
	default:
		s.deps.Metrics.RecordQueryDropped()
		s.logger.Warn().Str("agent_id", req.AgentID).Msg("query queue full, dropping agent query")
	}
}
