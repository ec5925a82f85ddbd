// Package hub fans agent updates out to every connected client, whatever
// transport it arrived on.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/payload"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Peer is one connected client. Send must not block: it returns false when
// the client's buffer is full. SendSnapshot hands over the directory
// contents once, before the first Send, and must be written out ahead of
// anything queued by Send regardless of the buffer size. The hub calls
// Close exactly once, after which neither is called again.
type Peer interface {
	ID() string
	Kind() string
	Send(msg []byte) bool
	SendSnapshot(msgs [][]byte)
	Close()
}

// Hub maintains the set of connected peers and broadcasts encoded records
type Hub struct {
	// Registered peers
	peers map[Peer]bool

	// Encoded records for all peers
	broadcast chan []byte

	// Register requests from the transports
	register chan Peer

	// Unregister requests from the transports
	unregister chan Peer

	// Closed when Run returns
	done chan struct{}

	// Protects peers for ClientCount
	mu sync.RWMutex

	dir     *cache.Directory
	metrics *metrics.Metrics
	logger  zerolog.Logger
	sub     *broker.Func[types.BridgeEvent]
}

// NewHub creates a hub that greets new peers with the directory contents
func NewHub(dir *cache.Directory, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	h := &Hub{
		peers:      make(map[Peer]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan Peer),
		unregister: make(chan Peer),
		done:       make(chan struct{}),
		dir:        dir,
		metrics:    m,
		logger:     logger.With().Str("component", "hub").Logger(),
	}
	h.sub = broker.NewFunc(h.HandleBridge)
	return h
}

// Subscriber returns the Bridge broker subscriber feeding this hub
func (h *Hub) Subscriber() broker.Subscriber[types.BridgeEvent] {
	return h.sub
}

// Run starts the hub's main loop. All peers are closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for p := range h.peers {
				delete(h.peers, p)
				p.Close()
			}
			h.mu.Unlock()
			return

		case p := <-h.register:
			h.mu.Lock()
			h.peers[p] = true
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", p.ID()).
				Str("transport", p.Kind()).
				Int("total_clients", h.ClientCount()).
				Msg("client connected")
			h.sendSnapshot(p)

		case p := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				p.Close()
				h.logger.Info().
					Str("client_id", p.ID()).
					Str("transport", p.Kind()).
					Int("total_clients", len(h.peers)).
					Msg("client disconnected")
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for p := range h.peers {
				h.deliver(p, msg)
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a peer. It closes the peer if the hub is no longer running.
func (h *Hub) Register(p Peer) {
	select {
	case h.register <- p:
	case <-h.done:
		p.Close()
	}
}

// Unregister removes a peer and closes it
func (h *Hub) Unregister(p Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// HandleBridge broadcasts agent updates addressed to clients. The record is
// encoded once for all peers.
func (h *Hub) HandleBridge(ev types.BridgeEvent) {
	if ev.Destination != types.DestinationClient {
		return
	}
	upd, ok := ev.Payload.(types.AgentUpdate)
	if !ok {
		return
	}

	data, err := payload.EncodeRecord(upd.Record)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", upd.Record.AgentID).Msg("failed to encode agent record")
		return
	}

	select {
	case h.broadcast <- data:
		h.metrics.RecordBroadcast()
	case <-h.done:
	}
}

// ClientCount returns the number of connected peers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// sendSnapshot hands the peer one record per known agent. It runs in the
// hub loop, so the snapshot reaches the peer before any later broadcast.
func (h *Hub) sendSnapshot(p Peer) {
	records := h.dir.Snapshot()

	msgs := make([][]byte, 0, len(records))
	for _, rec := range records {
		data, err := payload.EncodeRecord(rec)
		if err != nil {
			h.logger.Error().Err(err).Str("agent_id", rec.AgentID).Msg("failed to encode agent record")
			continue
		}
		msgs = append(msgs, data)
	}

	h.mu.RLock()
	_, ok := h.peers[p]
	h.mu.RUnlock()
	if !ok || len(msgs) == 0 {
		return
	}
	p.SendSnapshot(msgs)
	h.logger.Debug().Str("client_id", p.ID()).Int("records", len(msgs)).Msg("sent directory snapshot")
}

// deliver sends msg to p, dropping p when its buffer is full. Callers hold
// the write lock.
func (h *Hub) deliver(p Peer, msg []byte) bool {
	if _, ok := h.peers[p]; !ok {
		return false
	}
	if p.Send(msg) {
		return true
	}
	delete(h.peers, p)
	p.Close()
	h.metrics.RecordClientDrop()
	h.logger.Warn().
		Str("client_id", p.ID()).
		Str("transport", p.Kind()).
		Msg("client send buffer full, closing connection")
	return false
}
