package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

// ErrUnknownAgent is returned for agent ids that are not on the roster.
var ErrUnknownAgent = errors.New("unknown agent")

// statusInvalidAgent is the FailureConf status sent for queries about
// agents that are not on the roster.
const statusInvalidAgent uint32 = 21

const writeTimeout = 5 * time.Second

// nextStates lists where an agent may move from each state.
var nextStates = map[uint16][]uint16{
	types.AgentLogin:     {types.AgentAvailable, types.AgentNotReady},
	types.AgentAvailable: {types.AgentTalking, types.AgentTalking, types.AgentReserved, types.AgentNotReady},
	types.AgentReserved:  {types.AgentTalking},
	types.AgentTalking:   {types.AgentWorkReady, types.AgentHold, types.AgentAvailable},
	types.AgentHold:      {types.AgentTalking},
	types.AgentWorkReady: {types.AgentAvailable},
	types.AgentNotReady:  {types.AgentAvailable},
}

// Status summarizes the simulator for the control API.
type Status struct {
	Addr        string `json:"addr"`
	Connections int    `json:"connections"`
	Sessions    int64  `json:"sessions"`
	EventsSent  int64  `json:"eventsSent"`
	Agents      int    `json:"agents"`
}

type simAgent struct {
	Agent
	since time.Time
}

// Gateway is a TCP server that answers like a CTI Server.
type Gateway struct {
	peripheralID uint32
	teamID       uint32
	teamName     string
	monitorID    uint32
	logger       zerolog.Logger
	now          func() time.Time

	mu     sync.Mutex
	agents map[string]*simAgent
	order  []string
	rng    *rand.Rand
	conns  map[*gatewayConn]struct{}
	ln     net.Listener

	sessions   atomic.Int64
	eventsSent atomic.Int64
	wg         sync.WaitGroup
}

// NewGateway creates a simulator for the given roster.
func NewGateway(r *Roster, seed int64, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		peripheralID: r.PeripheralID,
		teamID:       r.TeamID,
		teamName:     r.TeamName,
		monitorID:    1,
		logger:       logger.With().Str("component", "sim_gateway").Logger(),
		now:          time.Now,
		agents:       make(map[string]*simAgent, len(r.Agents)),
		rng:          rand.New(rand.NewSource(seed)),
		conns:        make(map[*gatewayConn]struct{}),
	}
	now := g.now()
	for _, a := range r.Agents {
		g.agents[a.ID] = &simAgent{Agent: a, since: now}
		g.order = append(g.order, a.ID)
	}
	return g
}

// Listen binds the gateway address.
func (g *Gateway) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sim listen %s: %w", addr, err)
	}
	g.mu.Lock()
	g.ln = ln
	g.mu.Unlock()
	g.logger.Info().Str("addr", ln.Addr().String()).Msg("simulated gateway listening")
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln == nil {
		return ""
	}
	return g.ln.Addr().String()
}

// Serve accepts connections until ctx is done.
func (g *Gateway) Serve(ctx context.Context) error {
	g.mu.Lock()
	ln := g.ln
	g.mu.Unlock()
	if ln == nil {
		return errors.New("sim: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		g.Drop()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				g.wg.Wait()
				return nil
			}
			return fmt.Errorf("sim accept: %w", err)
		}
		c := &gatewayConn{id: uuid.NewString(), conn: nc}
		g.mu.Lock()
		g.conns[c] = struct{}{}
		g.mu.Unlock()

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handle(c)
		}()
	}
}

// Drop closes every gateway connection and returns how many were open.
// The bridge sees a lost connection and fails over.
func (g *Gateway) Drop() int {
	g.mu.Lock()
	conns := make([]*gatewayConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
	if len(conns) > 0 {
		g.logger.Warn().Int("connections", len(conns)).Msg("dropped gateway connections")
	}
	return len(conns)
}

// Status reports listener and traffic counters.
func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := Status{
		Connections: len(g.conns),
		Sessions:    g.sessions.Load(),
		EventsSent:  g.eventsSent.Load(),
		Agents:      len(g.agents),
	}
	if g.ln != nil {
		st.Addr = g.ln.Addr().String()
	}
	return st
}

// Agents returns the roster with current states, in roster order.
func (g *Gateway) Agents() []Agent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Agent, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.agents[id].Agent)
	}
	return out
}

// SetState moves an agent to state and broadcasts an AgentStateEvent.
func (g *Gateway) SetState(agentID string, state uint16, reason uint16) error {
	g.mu.Lock()
	a, ok := g.agents[agentID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	a.State = state
	a.since = g.now()
	ev := &wire.AgentStateEvent{
		MonitorID:       g.monitorID,
		PeripheralID:    g.peripheralID,
		SkillGroupID:    a.SkillGroupID,
		AgentState:      state,
		EventReasonCode: reason,
		ICMAgentID:      a.ICMAgentID,
		AgentID:         a.ID,
		AgentExtension:  a.Extension,
	}
	g.mu.Unlock()

	g.broadcast(ev)
	return nil
}

// Step moves one random agent along its state machine.
func (g *Gateway) Step() (string, uint16) {
	g.mu.Lock()
	if len(g.order) == 0 {
		g.mu.Unlock()
		return "", 0
	}
	id := g.order[g.rng.Intn(len(g.order))]
	next := types.AgentAvailable
	if opts := nextStates[g.agents[id].State]; len(opts) > 0 {
		next = opts[g.rng.Intn(len(opts))]
	}
	g.mu.Unlock()

	if err := g.SetState(id, next, 0); err != nil {
		g.logger.Error().Err(err).Msg("step failed")
	}
	return id, next
}

// RunGenerator calls Step every interval until ctx is done.
func (g *Gateway) RunGenerator(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.Info().Dur("interval", interval).Msg("state generator started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, state := g.Step()
			g.logger.Debug().Str("agent_id", id).Str("state", types.AgentStateName(state)).Msg("agent state changed")
		}
	}
}

func (g *Gateway) broadcast(m wire.Message) {
	g.mu.Lock()
	conns := make([]*gatewayConn, 0, len(g.conns))
	for c := range g.conns {
		if c.opened.Load() {
			conns = append(conns, c)
		}
	}
	g.mu.Unlock()

	for _, c := range conns {
		if err := c.send(m); err != nil {
			g.logger.Debug().Err(err).Str("conn_id", c.id).Msg("event write failed")
			continue
		}
		g.eventsSent.Add(1)
	}
}

func (g *Gateway) teamConfig() *wire.AgentTeamConfigEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	ev := &wire.AgentTeamConfigEvent{
		PeripheralID:   g.peripheralID,
		TeamID:         g.teamID,
		NumberOfAgents: uint16(len(g.order)),
		TeamName:       g.teamName,
	}
	for _, id := range g.order {
		a := g.agents[id]
		dur := now.Sub(a.since) / time.Second
		ev.Members = append(ev.Members, wire.TeamMember{
			AgentID:       a.ID,
			State:         a.State,
			StateDuration: uint16(min(dur, 0xFFFF)),
		})
	}
	return ev
}

func (g *Gateway) queryConf(req *wire.QueryAgentStateReq) wire.Message {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.agents[req.AgentID]
	if !ok {
		return &wire.FailureConf{InvokeID: req.InvokeID, Status: statusInvalidAgent}
	}
	return &wire.QueryAgentStateConf{
		InvokeID:       req.InvokeID,
		AgentState:     a.State,
		NumSkillGroups: 1,
		ICMAgentID:     a.ICMAgentID,
		AgentID:        a.ID,
		AgentExtension: a.Extension,
		SkillGroups:    []wire.SkillGroup{{Number: 1, ID: a.SkillGroupID, State: a.State}},
	}
}

func (g *Gateway) handle(c *gatewayConn) {
	logger := g.logger.With().Str("conn_id", c.id).Str("remote", c.conn.RemoteAddr().String()).Logger()
	logger.Info().Msg("gateway client connected")

	defer func() {
		g.mu.Lock()
		delete(g.conns, c)
		g.mu.Unlock()
		c.conn.Close()
		logger.Info().Msg("gateway client disconnected")
	}()

	var framer wire.Framer
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			packets, ferr := framer.Feed(buf[:n])
			for _, p := range packets {
				if !g.reply(c, p, logger) {
					return
				}
			}
			if ferr != nil {
				logger.Warn().Err(ferr).Msg("framing error")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
	}
}

// reply answers one request and reports whether the connection stays open.
func (g *Gateway) reply(c *gatewayConn, packet []byte, logger zerolog.Logger) bool {
	msg, err := wire.Decode(packet)
	if err != nil {
		logger.Warn().Err(err).Msg("undecodable request")
		return true
	}

	var out []wire.Message
	keep := true
	switch m := msg.(type) {
	case *wire.OpenReq:
		g.sessions.Add(1)
		logger.Info().
			Str("client_id", m.ClientID).
			Uint32("version", m.VersionNumber).
			Uint32("peripheral_id", m.PeripheralID).
			Msg("session opened")
		conf := &wire.OpenConf{
			InvokeID:         m.InvokeID,
			ServicesGranted:  m.ServicesRequested,
			MonitorID:        g.monitorID,
			PeripheralOnline: true,
		}
		if err := c.send(conf); err != nil {
			logger.Debug().Err(err).Msg("reply failed")
			return false
		}
		// Events flow only after the OpenConf went out.
		c.opened.Store(true)
		out = append(out, g.teamConfig())
	case *wire.HeartbeatReq:
		out = append(out, &wire.HeartbeatConf{InvokeID: m.InvokeID})
	case *wire.QueryAgentStateReq:
		out = append(out, g.queryConf(m))
	case *wire.CloseReq:
		out = append(out, &wire.CloseConf{InvokeID: m.InvokeID})
		keep = false
	default:
		logger.Debug().Str("type", msg.Type().String()).Msg("ignoring message")
	}

	for _, m := range out {
		if err := c.send(m); err != nil {
			logger.Debug().Err(err).Msg("reply failed")
			return false
		}
	}
	return keep
}

type gatewayConn struct {
	id     string
	conn   net.Conn
	opened atomic.Bool
	mu     sync.Mutex
}

func (c *gatewayConn) send(m wire.Message) error {
	b := wire.Encode(m)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write(b)
	return err
}
