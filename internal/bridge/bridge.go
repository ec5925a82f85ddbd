// Package bridge translates between the gateway and the clients. Gateway
// messages update the agent directory and become client updates; client
// commands become agent queries for the gateway.
package bridge

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/broker"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/cache"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/metrics"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

// commandPattern matches one "<peripheral_id>-<agent_id>" query command.
var commandPattern = regexp.MustCompile(`^([0-9]+)-([0-9]+)$`)

// ErrBadCommand is wrapped by errors for client input that is not a query.
var ErrBadCommand = errors.New("malformed client command")

// Brokers are the channels the bridge reads from and publishes to. Journal
// may be nil when state changes are not persisted.
type Brokers struct {
	Gateway *broker.Broker[types.GatewayEvent]
	Client  *broker.Broker[types.ClientEvent]
	Bridge  *broker.Broker[types.BridgeEvent]
	Errors  *broker.Broker[types.ErrorEvent]
	Journal *broker.Broker[types.StateChange]
}

type Bridge struct {
	dir     *cache.Directory
	brokers Brokers
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	gatewaySub *broker.Func[types.GatewayEvent]
	clientSub  *broker.Func[types.ClientEvent]
}

func New(dir *cache.Directory, brokers Brokers, m *metrics.Metrics, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		dir:     dir,
		brokers: brokers,
		metrics: m,
		logger:  logger.With().Str("component", "bridge").Logger(),
		now:     time.Now,
	}
	b.gatewaySub = broker.NewFunc(b.HandleGateway)
	b.clientSub = broker.NewFunc(b.HandleClient)
	return b
}

// Start subscribes to gateway and client events.
func (b *Bridge) Start() {
	b.brokers.Gateway.Subscribe(b.gatewaySub)
	b.brokers.Client.Subscribe(b.clientSub)
}

// Stop unsubscribes from both inputs.
func (b *Bridge) Stop() {
	b.brokers.Gateway.Unsubscribe(b.gatewaySub)
	b.brokers.Client.Unsubscribe(b.clientSub)
}

// HandleGateway decodes one framed gateway message and acts on it.
func (b *Bridge) HandleGateway(ev types.GatewayEvent) {
	msg, err := wire.Decode(ev.Packet)
	if err != nil {
		b.metrics.RecordCodecError()
		event := b.logger.Warn().Err(err).Int("bytes", len(ev.Packet))
		if t, herr := ev.Type(); herr == nil {
			event = event.Str("message_type", t.String())
		}
		event.Msg("dropping undecodable gateway message")
		return
	}
	b.metrics.RecordGatewayMessage(msg.Type().String())

	switch m := msg.(type) {
	case *wire.AgentStateEvent:
		if b.missingAgentID(msg, m.AgentID) {
			return
		}
		b.publishChange(b.dir.UpdateFromAgentStateEvent(m), "agent_state_event")

	case *wire.QueryAgentStateConf:
		if b.missingAgentID(msg, m.AgentID) {
			return
		}
		b.publishChange(b.dir.UpdateFromQueryConf(m), "query_agent_state_conf")

	case *wire.AgentTeamConfigEvent:
		b.logger.Debug().
			Uint32("peripheral_id", m.PeripheralID).
			Uint32("team_id", m.TeamID).
			Str("team_name", m.TeamName).
			Int("members", len(m.Members)).
			Msg("team config received")
		for _, member := range m.Members {
			if b.missingAgentID(msg, member.AgentID) {
				continue
			}
			b.publishChange(b.dir.UpdateFromTeamMember(member), "agent_team_config_event")
			b.brokers.Bridge.Publish(types.BridgeEvent{
				Destination: types.DestinationGateway,
				Payload:     types.QueryAgentState{PeripheralID: m.PeripheralID, AgentID: member.AgentID},
			})
		}

	case *wire.OpenConf:
		b.metrics.SetPeripheralOnline(m.PeripheralOnline)
		b.logger.Info().
			Uint32("invoke_id", m.InvokeID).
			Uint32("services_granted", m.ServicesGranted).
			Uint32("monitor_id", m.MonitorID).
			Uint32("pg_status", m.PGStatus).
			Bool("peripheral_online", m.PeripheralOnline).
			Msg("gateway session opened")

	case *wire.HeartbeatConf:
		b.metrics.RecordHeartbeatConfirmed()

	case *wire.SystemEvent:
		b.logger.Info().
			Uint32("system_event_id", m.SystemEventID).
			Uint32("pg_status", m.PGStatus).
			Str("device_id", m.EventDeviceID).
			Str("text", m.Text).
			Msg("gateway system event")

	case *wire.FailureConf:
		b.metrics.RecordGatewayFailure()
		b.logger.Warn().Uint32("invoke_id", m.InvokeID).Uint32("status", m.Status).Msg("gateway rejected request")

	case *wire.FailureEvent:
		b.metrics.RecordGatewayFailure()
		b.logger.Warn().Uint32("status", m.Status).Msg("gateway failure event")

	case *wire.CloseConf:
		b.logger.Info().Uint32("invoke_id", m.InvokeID).Msg("gateway confirmed close")

	case *wire.OpenReq, *wire.HeartbeatReq, *wire.CloseReq, *wire.QueryAgentStateReq:
		b.logger.Debug().Str("type", msg.Type().String()).Msg("ignoring request sent by gateway")

	default:
		b.logger.Warn().Str("type", msg.Type().String()).Msg("unhandled gateway message")
	}
}

// missingAgentID reports an agent message without an AGENT_ID tag. Such a
// message cannot be keyed in the directory and counts as a codec error.
func (b *Bridge) missingAgentID(msg wire.Message, agentID string) bool {
	if agentID != "" {
		return false
	}
	b.metrics.RecordCodecError()
	b.logger.Warn().Str("type", msg.Type().String()).Msg("dropping agent message without agent id")
	return true
}

// publishChange sends the updated record to clients and journals state
// transitions.
func (b *Bridge) publishChange(c cache.Change, source string) {
	b.brokers.Bridge.Publish(types.BridgeEvent{
		Destination: types.DestinationClient,
		Payload:     types.AgentUpdate{Record: c.Record},
	})

	if !c.StateChanged() || b.brokers.Journal == nil {
		return
	}
	b.brokers.Journal.Publish(types.StateChange{
		AgentID:        c.Record.AgentID,
		RecordedAt:     b.now().UnixMilli(),
		ICMAgentID:     c.Record.ICMAgentID,
		PreviousState:  c.PreviousState,
		AgentState:     c.Record.AgentState,
		ReasonCode:     c.Record.ReasonCode,
		StateStartedAt: c.Record.StateStartedAt,
		Source:         source,
	})
}

// HandleClient turns a client command into agent queries. A command holds
// one or more "<peripheral_id>-<agent_id>" pairs separated by commas or
// newlines.
func (b *Bridge) HandleClient(ev types.ClientEvent) {
	queries, err := ParseCommand(ev.Payload)
	for _, q := range queries {
		b.brokers.Bridge.Publish(types.BridgeEvent{Destination: types.DestinationGateway, Payload: q})
	}
	if len(queries) > 0 {
		b.metrics.RecordClientCommand(true)
		b.logger.Debug().Str("client_id", ev.ClientID).Int("queries", len(queries)).Msg("client requested agent state")
	}
	if err == nil {
		return
	}

	b.metrics.RecordClientCommand(false)
	b.logger.Warn().Err(err).Str("client_id", ev.ClientID).Msg("invalid client command")
	if b.brokers.Errors != nil {
		b.brokers.Errors.Publish(types.ErrorEvent{Kind: types.ClientError, Err: fmt.Errorf("client %s: %w", ev.ClientID, err)})
	}
}

// ParseCommand parses a client command. Valid parts are returned even when
// other parts are malformed; the error then names the rejected parts.
func ParseCommand(payload []byte) ([]types.QueryAgentState, error) {
	text := strings.Trim(string(payload), " \t\r\n\x00")
	if text == "" {
		return nil, nil
	}

	var (
		queries []types.QueryAgentState
		bad     []string
	)
	// A single read may carry several commands, one per line.
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' })
	for _, part := range parts {
		part = strings.Trim(part, " \t\r\n\x00")
		if part == "" {
			continue
		}
		m := commandPattern.FindStringSubmatch(part)
		if m == nil {
			bad = append(bad, part)
			continue
		}
		peripheral, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			bad = append(bad, part)
			continue
		}
		queries = append(queries, types.QueryAgentState{PeripheralID: uint32(peripheral), AgentID: m[2]})
	}

	if len(bad) > 0 {
		return queries, fmt.Errorf("%w: %q", ErrBadCommand, bad)
	}
	return queries, nil
}
