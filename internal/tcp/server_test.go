package tcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/hub"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/payload"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

type recorder struct {
	mu  sync.Mutex
	got []types.ClientEvent
}

func (r *recorder) Handle(ev types.ClientEvent) {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
}

func (r *recorder) payloads() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s string
	for _, ev := range r.got {
		s += string(ev.Payload)
	}
	return s
}

type fixture struct {
	server   *Server
	hub      *hub.Hub
	dir      *cache.Directory
	metrics  *metrics.Metrics
	commands *recorder
	cancel   context.CancelFunc
	done     chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	dir := cache.NewDirectory()
	m := metrics.New()
	h := hub.NewHub(dir, m, logger)

	commands := broker.New[types.ClientEvent]("client", logger)
	rec := &recorder{}
	commands.Subscribe(rec)
	commands.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := NewServer(Config{Addr: "127.0.0.1:0", SendBuffer: 16, WriteTimeout: time.Second}, h, commands, m, logger)
	require.NoError(t, srv.Listen())

	f := &fixture{server: srv, hub: h, dir: dir, metrics: m, commands: rec, cancel: cancel, done: make(chan error, 1)}
	go func() { f.done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		commands.Stop()
	})
	return f
}

func (f *fixture) dial(t *testing.T) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", f.server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientReceivesSnapshotThenUpdates(t *testing.T) {
	f := newFixture(t)
	f.dir.UpdateFromAgentStateEvent(&wire.AgentStateEvent{AgentID: "1001", AgentState: types.AgentAvailable})
	f.dir.UpdateFromAgentStateEvent(&wire.AgentStateEvent{AgentID: "1002", AgentState: types.AgentNotReady})

	c := f.dial(t)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	dec := payload.NewDecoder(c)

	first, err := dec.Next()
	require.NoError(t, err)
	second, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "1001", first.AgentID)
	assert.Equal(t, "1002", second.AgentID)

	f.hub.HandleBridge(types.BridgeEvent{
		Destination: types.DestinationClient,
		Payload:     types.AgentUpdate{Record: types.AgentRecord{AgentID: "1001", AgentState: types.AgentTalking}},
	})
	live, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, types.AgentTalking, live.AgentState)
}

func TestSnapshotLargerThanSendBuffer(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 40; i++ {
		f.dir.UpdateFromAgentStateEvent(&wire.AgentStateEvent{AgentID: fmt.Sprintf("1%03d", i), AgentState: types.AgentAvailable})
	}

	c := f.dial(t)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	dec := payload.NewDecoder(c)

	for i := 0; i < 40; i++ {
		rec, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("1%03d", i), rec.AgentID)
	}
	assert.Equal(t, 1, f.hub.ClientCount())
	assert.Zero(t, f.metrics.ClientDropsTotal)
}

func TestClientCommandsPublished(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	_, err := c.Write([]byte("5000-1001\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.commands.payloads() == "5000-1001\n" }, 2*time.Second, 5*time.Millisecond)
}

func TestDisconnectUnregisters(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.metrics.GetActiveClients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServeStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.cancel()

	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}
