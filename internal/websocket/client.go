package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/config"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/hub"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

const transportName = "websocket"

// Client is a middleman between the websocket connection and the hub
type Client struct {
	// Unique client ID
	id string

	// The hub this client belongs to
	hub *hub.Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of encoded agent records
	send      chan []byte
	closeOnce sync.Once

	// Directory snapshot, written before anything in send
	snapshot chan [][]byte

	// Where client commands are published
	commands *broker.Broker[types.ClientEvent]

	config  *config.Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewClient creates a new Client
func NewClient(h *hub.Hub, conn *websocket.Conn, commands *broker.Broker[types.ClientEvent], cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Client {
	clientID := uuid.New().String()
	return &Client{
		id:       clientID,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		snapshot: make(chan [][]byte, 1),
		commands: commands,
		config:   cfg,
		metrics:  m,
		logger:   logger.With().Str("client_id", clientID).Logger(),
	}
}

func (c *Client) ID() string   { return c.id }
func (c *Client) Kind() string { return transportName }

// Send queues msg without blocking
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendSnapshot queues the initial records without blocking
func (c *Client) SendSnapshot(msgs [][]byte) {
	select {
	case c.snapshot <- msgs:
	default:
		c.logger.Warn().Msg("snapshot already queued, ignoring")
	}
}

// Close tells writePump to finish; called by the hub
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump publishes client commands until the connection fails
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.metrics.RecordClientDisconnect(transportName)
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}
		c.logger.Debug().Str("message", string(message)).Msg("received command from client")
		c.commands.Publish(types.ClientEvent{ClientID: c.id, Payload: message})
	}
}

// writePump writes one binary frame per agent record
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msgs := <-c.snapshot:
			if !c.writeRecords(msgs) {
				return
			}

		case message, ok := <-c.send:
			if !ok {
				// The hub closed the channel
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			select {
			case msgs := <-c.snapshot:
				if !c.writeRecords(msgs) {
					return
				}
			default:
			}
			if !c.writeRecords([][]byte{message}) {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeRecords sends each record as its own binary message
func (c *Client) writeRecords(msgs [][]byte) bool {
	for _, msg := range msgs {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.logger.Debug().Err(err).Msg("websocket write failed")
			return false
		}
	}
	return true
}

// Start registers the client and starts its read and write pumps
func (c *Client) Start() {
	c.metrics.RecordClientConnect(transportName)
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}
