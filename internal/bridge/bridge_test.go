package bridge

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

type collector[T any] struct {
	mu  sync.Mutex
	got []T
}

func (c *collector[T]) Handle(ev T) {
	c.mu.Lock()
	c.got = append(c.got, ev)
	c.mu.Unlock()
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.got...)
}

type fixture struct {
	bridge  *Bridge
	dir     *cache.Directory
	metrics *metrics.Metrics
	brokers Brokers
	updates *collector[types.BridgeEvent]
	journal *collector[types.StateChange]
	errs    *collector[types.ErrorEvent]
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		dir:     cache.NewDirectory(),
		metrics: metrics.New(),
		brokers: Brokers{
			Gateway: broker.New[types.GatewayEvent]("gateway", zerolog.Nop()),
			Client:  broker.New[types.ClientEvent]("client", zerolog.Nop()),
			Bridge:  broker.New[types.BridgeEvent]("bridge", zerolog.Nop()),
			Errors:  broker.New[types.ErrorEvent]("errors", zerolog.Nop()),
			Journal: broker.New[types.StateChange]("journal", zerolog.Nop()),
		},
		updates: &collector[types.BridgeEvent]{},
		journal: &collector[types.StateChange]{},
		errs:    &collector[types.ErrorEvent]{},
	}
	f.brokers.Bridge.Subscribe(f.updates)
	f.brokers.Journal.Subscribe(f.journal)
	f.brokers.Errors.Subscribe(f.errs)

	f.brokers.Gateway.Start()
	f.brokers.Client.Start()
	f.brokers.Bridge.Start()
	f.brokers.Errors.Start()
	f.brokers.Journal.Start()
	t.Cleanup(func() {
		f.brokers.Gateway.Stop()
		f.brokers.Client.Stop()
		f.brokers.Bridge.Stop()
		f.brokers.Errors.Stop()
		f.brokers.Journal.Stop()
	})

	f.bridge = New(f.dir, f.brokers, f.metrics, zerolog.Nop())
	return f
}

func (f *fixture) gateway(m wire.Message) {
	f.bridge.HandleGateway(types.GatewayEvent{Packet: wire.Encode(m)})
}

func waitFor[T any](t *testing.T, c *collector[T], n int) []T {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.all()) >= n }, time.Second, time.Millisecond)
	return c.all()
}

func TestAgentStateEventCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)

	f.gateway(&wire.AgentStateEvent{PeripheralID: 5000, AgentID: "1001", AgentState: types.AgentAvailable, ICMAgentID: 77})
	f.gateway(&wire.AgentStateEvent{PeripheralID: 5000, AgentID: "1001", AgentState: types.AgentTalking, ICMAgentID: 77})
	f.gateway(&wire.AgentStateEvent{PeripheralID: 5000, AgentID: "1001", AgentState: types.AgentTalking, ICMAgentID: 77})

	assert.Equal(t, 1, f.dir.Count())

	events := waitFor(t, f.updates, 3)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, types.DestinationClient, ev.Destination)
		upd, ok := ev.Payload.(types.AgentUpdate)
		require.True(t, ok)
		assert.Equal(t, "1001", upd.Record.AgentID)
	}
	last := events[2].Payload.(types.AgentUpdate)
	assert.Equal(t, types.AgentTalking, last.Record.AgentState)

	// Creation and the available -> talking transition are journaled; the
	// repeated talking event is not.
	waitFor(t, f.journal, 2)
	time.Sleep(20 * time.Millisecond)
	changes := f.journal.all()
	require.Len(t, changes, 2)
	assert.Equal(t, types.AgentAvailable, changes[0].AgentState)
	assert.Equal(t, types.AgentAvailable, changes[1].PreviousState)
	assert.Equal(t, types.AgentTalking, changes[1].AgentState)
	assert.Equal(t, "agent_state_event", changes[1].Source)
	assert.Equal(t, int32(77), changes[1].ICMAgentID)
}

func TestQueryConfUpdatesDirectory(t *testing.T) {
	f := newFixture(t)

	f.gateway(&wire.QueryAgentStateConf{
		InvokeID:    9,
		AgentState:  types.AgentNotReady,
		AgentID:     "2002",
		SkillGroups: []wire.SkillGroup{{Number: 1, ID: 42}},
	})

	rec, ok := f.dir.Get("2002")
	require.True(t, ok)
	assert.Equal(t, types.AgentNotReady, rec.AgentState)
	assert.Equal(t, uint32(42), rec.SkillGroupID)

	events := waitFor(t, f.updates, 1)
	assert.Equal(t, types.DestinationClient, events[0].Destination)
}

func TestTeamConfigFansOutQueries(t *testing.T) {
	f := newFixture(t)

	f.gateway(&wire.AgentTeamConfigEvent{
		PeripheralID: 5000,
		TeamID:       3,
		TeamName:     "support",
		Members: []wire.TeamMember{
			{AgentID: "1001", State: types.AgentAvailable},
			{AgentID: "1002", State: types.AgentNotReady, StateDuration: 30},
		},
	})

	assert.Equal(t, 2, f.dir.Count())

	events := waitFor(t, f.updates, 4)
	var queries []types.QueryAgentState
	updates := 0
	for _, ev := range events {
		switch p := ev.Payload.(type) {
		case types.QueryAgentState:
			assert.Equal(t, types.DestinationGateway, ev.Destination)
			queries = append(queries, p)
		case types.AgentUpdate:
			assert.Equal(t, types.DestinationClient, ev.Destination)
			updates++
		}
	}
	assert.Equal(t, 2, updates)
	assert.Equal(t, []types.QueryAgentState{
		{PeripheralID: 5000, AgentID: "1001"},
		{PeripheralID: 5000, AgentID: "1002"},
	}, queries)
}

func TestControlMessagesDoNotTouchDirectory(t *testing.T) {
	f := newFixture(t)

	f.gateway(&wire.HeartbeatConf{InvokeID: 2})
	f.gateway(&wire.OpenConf{InvokeID: 1, PeripheralOnline: true})
	f.gateway(&wire.SystemEvent{SystemEventID: 1, Text: "peripheral online"})
	f.gateway(&wire.FailureConf{InvokeID: 4, Status: 12})
	f.gateway(&wire.FailureEvent{Status: 3})
	f.gateway(&wire.CloseConf{InvokeID: 5})
	f.gateway(&wire.HeartbeatReq{InvokeID: 6})

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.dir.Count())
	assert.Empty(t, f.updates.all())
	assert.Equal(t, int64(1), f.metrics.HeartbeatsConfirmed)
	assert.Equal(t, int64(2), f.metrics.GatewayFailuresTotal)
}

func TestUndecodableMessageDropped(t *testing.T) {
	f := newFixture(t)

	pkt := wire.Encode(&wire.AgentStateEvent{AgentID: "1001"})
	f.bridge.HandleGateway(types.GatewayEvent{Packet: pkt[:20]})
	f.bridge.HandleGateway(types.GatewayEvent{Packet: []byte{0, 0, 0, 0, 0, 0, 0x03, 0xe7}})

	assert.Equal(t, int64(2), f.metrics.CodecErrorsTotal)
	assert.Zero(t, f.dir.Count())
}

func TestAgentMessagesWithoutAgentIDDropped(t *testing.T) {
	f := newFixture(t)

	f.gateway(&wire.AgentStateEvent{PeripheralID: 5000, AgentState: types.AgentAvailable})
	f.gateway(&wire.QueryAgentStateConf{InvokeID: 3, AgentState: types.AgentWorkReady})
	f.gateway(&wire.AgentTeamConfigEvent{
		PeripheralID: 5000,
		TeamID:       3,
		Members: []wire.TeamMember{
			{State: types.AgentAvailable},
			{AgentID: "1001", State: types.AgentNotReady},
		},
	})

	assert.Equal(t, 1, f.dir.Count())
	_, ok := f.dir.Get("")
	assert.False(t, ok)
	assert.Equal(t, int64(3), f.metrics.CodecErrorsTotal)

	// Only the named team member is published and queried.
	events := waitFor(t, f.updates, 2)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, f.updates.all(), 2)
	for _, ev := range events {
		switch p := ev.Payload.(type) {
		case types.AgentUpdate:
			assert.Equal(t, "1001", p.Record.AgentID)
		case types.QueryAgentState:
			assert.Equal(t, "1001", p.AgentID)
		}
	}
}

func TestUndecodableMessageLogsHeaderType(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.bridge = New(f.dir, f.brokers, f.metrics, zerolog.New(&buf))

	pkt := wire.Encode(&wire.AgentStateEvent{AgentID: "1001"})
	f.bridge.HandleGateway(types.GatewayEvent{Packet: pkt[:20]})

	assert.Contains(t, buf.String(), `"message_type":"AGENT_STATE_EVENT"`)
	assert.Contains(t, buf.String(), "dropping undecodable gateway message")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []types.QueryAgentState
		wantErr bool
	}{
		{"single", "5000-1001", []types.QueryAgentState{{PeripheralID: 5000, AgentID: "1001"}}, false},
		{"trailing newline and nul", "5000-1001\r\n\x00", []types.QueryAgentState{{PeripheralID: 5000, AgentID: "1001"}}, false},
		{"multi", "5000-1001, 5001-1002", []types.QueryAgentState{
			{PeripheralID: 5000, AgentID: "1001"},
			{PeripheralID: 5001, AgentID: "1002"},
		}, false},
		{"coalesced lines", "5000-1001\n5000-1002", []types.QueryAgentState{
			{PeripheralID: 5000, AgentID: "1001"},
			{PeripheralID: 5000, AgentID: "1002"},
		}, false},
		{"coalesced crlf lines", "5000-1001\r\n5001-1002\r\n", []types.QueryAgentState{
			{PeripheralID: 5000, AgentID: "1001"},
			{PeripheralID: 5001, AgentID: "1002"},
		}, false},
		{"lines and commas", "5000-1001,5000-1002\n5000-1003", []types.QueryAgentState{
			{PeripheralID: 5000, AgentID: "1001"},
			{PeripheralID: 5000, AgentID: "1002"},
			{PeripheralID: 5000, AgentID: "1003"},
		}, false},
		{"empty", "  \x00", nil, false},
		{"letters", "abc", nil, true},
		{"missing agent", "5000-", nil, true},
		{"partial", "5000-1001,x-1", []types.QueryAgentState{{PeripheralID: 5000, AgentID: "1001"}}, true},
		{"peripheral overflow", "99999999999-1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBadCommand))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientCommandsThroughBrokers(t *testing.T) {
	f := newFixture(t)
	f.bridge.Start()
	defer f.bridge.Stop()

	f.brokers.Client.Publish(types.ClientEvent{ClientID: "c1", Payload: []byte("5000-1001,5000-1002\n")})
	f.brokers.Client.Publish(types.ClientEvent{ClientID: "c1", Payload: []byte("hello")})

	events := waitFor(t, f.updates, 2)
	for _, ev := range events {
		assert.Equal(t, types.DestinationGateway, ev.Destination)
		_, ok := ev.Payload.(types.QueryAgentState)
		assert.True(t, ok)
	}

	errs := waitFor(t, f.errs, 1)
	assert.Equal(t, types.ClientError, errs[0].Kind)
	assert.ErrorIs(t, errs[0], ErrBadCommand)
	assert.Equal(t, int64(1), f.metrics.ClientCommandErrors)
}

func TestGatewayEventsThroughBrokers(t *testing.T) {
	f := newFixture(t)
	f.bridge.Start()

	f.brokers.Gateway.Publish(types.GatewayEvent{Packet: wire.Encode(&wire.AgentStateEvent{AgentID: "1001", AgentState: types.AgentHold})})
	require.Eventually(t, func() bool { return f.dir.Count() == 1 }, time.Second, time.Millisecond)

	f.bridge.Stop()
	f.brokers.Gateway.Publish(types.GatewayEvent{Packet: wire.Encode(&wire.AgentStateEvent{AgentID: "1002"})})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.dir.Count())
}
