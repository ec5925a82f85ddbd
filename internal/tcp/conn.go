package tcp

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

const (
	transportName  = "tcp"
	readBufferSize = 1024
)

// Conn is one TCP client. It implements hub.Peer.
type Conn struct {
	id     string
	conn   net.Conn
	server *Server
	logger zerolog.Logger

	send      chan []byte
	snapshot  chan [][]byte
	closeOnce sync.Once
}

func newConn(nc net.Conn, s *Server) *Conn {
	id := uuid.New().String()
	return &Conn{
		id:     id,
		conn:   nc,
		server: s,
		logger: s.logger.With().Str("client_id", id).Str("remote_addr", nc.RemoteAddr().String()).Logger(),
		send:     make(chan []byte, s.cfg.SendBuffer),
		snapshot: make(chan [][]byte, 1),
	}
}

func (c *Conn) ID() string   { return c.id }
func (c *Conn) Kind() string { return transportName }

func (c *Conn) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendSnapshot queues the initial records; writeLoop writes them before
// anything queued by Send.
func (c *Conn) SendSnapshot(msgs [][]byte) {
	select {
	case c.snapshot <- msgs:
	default:
		c.logger.Warn().Msg("snapshot already queued, ignoring")
	}
}

// Close ends writeLoop; called by the hub.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Conn) run() {
	c.server.track(c.conn, true)
	defer c.server.track(c.conn, false)

	c.server.metrics.RecordClientConnect(transportName)
	c.server.hub.Register(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()

	c.readLoop()
	c.server.hub.Unregister(c)
	c.conn.Close()
	<-done
	c.server.metrics.RecordClientDisconnect(transportName)
}

// readLoop publishes every chunk the client sends as a command.
func (c *Conn) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			c.server.commands.Publish(types.ClientEvent{ClientID: c.id, Payload: payload})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug().Err(err).Msg("tcp read error")
			}
			return
		}
	}
}

// writeLoop writes queued records until the hub closes the queue or a
// write fails.
func (c *Conn) writeLoop() {
	defer c.conn.Close()

	for {
		select {
		case msgs := <-c.snapshot:
			if !c.writeAll(msgs) {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			select {
			case msgs := <-c.snapshot:
				if !c.writeAll(msgs) {
					return
				}
			default:
			}
			if !c.writeAll([][]byte{msg}) {
				return
			}
		}
	}
}

func (c *Conn) writeAll(msgs [][]byte) bool {
	for _, msg := range msgs {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout)); err != nil {
			return false
		}
		if _, err := c.conn.Write(msg); err != nil {
			c.logger.Debug().Err(err).Msg("tcp write failed")
			return false
		}
	}
	return true
}
