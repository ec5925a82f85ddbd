package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Metrics holds all bridge counters and gauges
type Metrics struct {
	mu sync.RWMutex

	// Gateway metrics
	gatewayMessages       map[string]int64 // message type -> count
	CodecErrorsTotal      int64
	GatewayConnectsTotal  int64
	GatewayConnectFails   int64
	GatewayLostTotal      int64
	FailoversTotal        int64
	HeartbeatsSentTotal   int64
	HeartbeatsConfirmed   int64
	GatewayFailuresTotal  int64
	QueriesSentTotal      int64
	QueriesDroppedTotal   int64
	peripheralOnline      bool
	lastHeartbeatConfirm  time.Time
	gatewayConnected      bool

	// Bridge and client metrics
	BroadcastsTotal        int64
	ClientCommandsTotal    int64
	ClientCommandErrors    int64
	clientConnectionsTotal map[string]int64 // transport -> total
	activeClients          map[string]int64 // transport -> open
	ClientDropsTotal       int64
	JournalErrorsTotal     int64

	// Agent and queue gauges, refreshed by the sampler
	agentsByState map[string]int
	totalAgents   int
	queueDepths   map[string]int

	startTime time.Time
}

// New creates an empty metrics set
func New() *Metrics {
	return &Metrics{
		gatewayMessages:        make(map[string]int64),
		clientConnectionsTotal: make(map[string]int64),
		activeClients:          make(map[string]int64),
		agentsByState:          make(map[string]int),
		queueDepths:            make(map[string]int),
		startTime:              time.Now(),
	}
}

// RecordGatewayMessage counts one decoded gateway message by type name
func (m *Metrics) RecordGatewayMessage(messageType string) {
	m.mu.Lock()
	m.gatewayMessages[messageType]++
	m.mu.Unlock()
}

// RecordCodecError counts a gateway message that failed to decode
func (m *Metrics) RecordCodecError() {
	m.mu.Lock()
	m.CodecErrorsTotal++
	m.mu.Unlock()
}

// RecordGatewayConnect records a successful dial
func (m *Metrics) RecordGatewayConnect() {
	m.mu.Lock()
	m.GatewayConnectsTotal++
	m.gatewayConnected = true
	m.mu.Unlock()
}

// RecordGatewayConnectFailure records a failed dial
func (m *Metrics) RecordGatewayConnectFailure() {
	m.mu.Lock()
	m.GatewayConnectFails++
	m.mu.Unlock()
}

// RecordGatewayLost records an established session dropping
func (m *Metrics) RecordGatewayLost() {
	m.mu.Lock()
	m.GatewayLostTotal++
	m.gatewayConnected = false
	m.peripheralOnline = false
	m.mu.Unlock()
}

// RecordGatewayClosed marks the gateway as disconnected without counting a loss
func (m *Metrics) RecordGatewayClosed() {
	m.mu.Lock()
	m.gatewayConnected = false
	m.mu.Unlock()
}

// RecordFailover counts a side switch
func (m *Metrics) RecordFailover() {
	m.mu.Lock()
	m.FailoversTotal++
	m.mu.Unlock()
}

// RecordHeartbeatSent counts an outbound heartbeat
func (m *Metrics) RecordHeartbeatSent() {
	m.mu.Lock()
	m.HeartbeatsSentTotal++
	m.mu.Unlock()
}

// RecordHeartbeatConfirmed counts a heartbeat confirmation
func (m *Metrics) RecordHeartbeatConfirmed() {
	m.mu.Lock()
	m.HeartbeatsConfirmed++
	m.lastHeartbeatConfirm = time.Now()
	m.mu.Unlock()
}

// RecordGatewayFailure counts a FAILURE_CONF or FAILURE_EVENT
func (m *Metrics) RecordGatewayFailure() {
	m.mu.Lock()
	m.GatewayFailuresTotal++
	m.mu.Unlock()
}

// SetPeripheralOnline records the peripheral status from OPEN_CONF
func (m *Metrics) SetPeripheralOnline(online bool) {
	m.mu.Lock()
	m.peripheralOnline = online
	m.mu.Unlock()
}

// RecordQuerySent counts an agent state query written to the gateway
func (m *Metrics) RecordQuerySent() {
	m.mu.Lock()
	m.QueriesSentTotal++
	m.mu.Unlock()
}

// RecordQueryDropped counts a query discarded because the send queue was full
func (m *Metrics) RecordQueryDropped() {
	m.mu.Lock()
	m.QueriesDroppedTotal++
	m.mu.Unlock()
}

// RecordBroadcast counts an agent update fanned out to clients
func (m *Metrics) RecordBroadcast() {
	m.mu.Lock()
	m.BroadcastsTotal++
	m.mu.Unlock()
}

// RecordClientCommand counts a parsed client command, or a rejected one
func (m *Metrics) RecordClientCommand(ok bool) {
	m.mu.Lock()
	if ok {
		m.ClientCommandsTotal++
	} else {
		m.ClientCommandErrors++
	}
	m.mu.Unlock()
}

// RecordClientConnect counts a client connection on the given transport
func (m *Metrics) RecordClientConnect(transport string) {
	m.mu.Lock()
	m.clientConnectionsTotal[transport]++
	m.activeClients[transport]++
	m.mu.Unlock()
}

// RecordClientDisconnect records a client leaving the given transport
func (m *Metrics) RecordClientDisconnect(transport string) {
	m.mu.Lock()
	m.activeClients[transport]--
	m.mu.Unlock()
}

// RecordClientDrop counts a client removed for falling behind
func (m *Metrics) RecordClientDrop() {
	m.mu.Lock()
	m.ClientDropsTotal++
	m.mu.Unlock()
}

// RecordJournalError counts a failed journal write
func (m *Metrics) RecordJournalError() {
	m.mu.Lock()
	m.JournalErrorsTotal++
	m.mu.Unlock()
}

// UpdateAgentStats replaces the agent distribution gauges
func (m *Metrics) UpdateAgentStats(byState map[uint16]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agentsByState = make(map[string]int, len(byState))
	m.totalAgents = 0
	for state, count := range byState {
		m.agentsByState[types.AgentStateName(state)] += count
		m.totalAgents += count
	}
}

// SetQueueDepth records the number of undelivered events in a broker
func (m *Metrics) SetQueueDepth(broker string, depth int) {
	m.mu.Lock()
	m.queueDepths[broker] = depth
	m.mu.Unlock()
}

// GetActiveClients returns open client connections across all transports
func (m *Metrics) GetActiveClients() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, n := range m.activeClients {
		total += n
	}
	return total
}

// GatewayConnected reports whether a gateway session is currently up
func (m *Metrics) GatewayConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gatewayConnected
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		var sb strings.Builder
		write := func(name string, value interface{}, labels ...string) {
			sb.WriteString(name)
			if len(labels) > 0 {
				sb.WriteByte('{')
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						sb.WriteByte(',')
					}
					sb.WriteString(labels[i] + "=\"" + labels[i+1] + "\"")
				}
				sb.WriteByte('}')
			}
			sb.WriteByte(' ')

			switch v := value.(type) {
			case int:
				sb.WriteString(strconv.Itoa(v))
			case int64:
				sb.WriteString(strconv.FormatInt(v, 10))
			case float64:
				sb.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
			}
			sb.WriteByte('\n')
		}

		write("ctm_uptime_seconds", time.Since(m.startTime).Seconds())

		// Gateway
		write("ctm_gateway_connected", boolGauge(m.gatewayConnected))
		write("ctm_gateway_peripheral_online", boolGauge(m.peripheralOnline))
		write("ctm_gateway_connects_total", m.GatewayConnectsTotal)
		write("ctm_gateway_connect_failures_total", m.GatewayConnectFails)
		write("ctm_gateway_lost_total", m.GatewayLostTotal)
		write("ctm_gateway_failovers_total", m.FailoversTotal)
		write("ctm_gateway_heartbeats_sent_total", m.HeartbeatsSentTotal)
		write("ctm_gateway_heartbeats_confirmed_total", m.HeartbeatsConfirmed)
		if !m.lastHeartbeatConfirm.IsZero() {
			write("ctm_gateway_last_heartbeat_seconds", time.Since(m.lastHeartbeatConfirm).Seconds())
		}
		write("ctm_gateway_failures_total", m.GatewayFailuresTotal)
		write("ctm_gateway_codec_errors_total", m.CodecErrorsTotal)
		write("ctm_gateway_queries_sent_total", m.QueriesSentTotal)
		write("ctm_gateway_queries_dropped_total", m.QueriesDroppedTotal)
		for _, t := range sortedKeys(m.gatewayMessages) {
			write("ctm_gateway_messages_total", m.gatewayMessages[t], "type", t)
		}

		// Clients
		write("ctm_broadcasts_total", m.BroadcastsTotal)
		write("ctm_client_commands_total", m.ClientCommandsTotal)
		write("ctm_client_command_errors_total", m.ClientCommandErrors)
		write("ctm_client_drops_total", m.ClientDropsTotal)
		for _, t := range sortedKeys(m.clientConnectionsTotal) {
			write("ctm_client_connections_total", m.clientConnectionsTotal[t], "transport", t)
			write("ctm_client_active_connections", m.activeClients[t], "transport", t)
		}
		write("ctm_journal_errors_total", m.JournalErrorsTotal)

		// Agents
		write("ctm_agents_total", m.totalAgents)
		for _, s := range sortedKeys(m.agentsByState) {
			write("ctm_agents_by_state", m.agentsByState[s], "state", s)
		}

		for _, b := range sortedKeys(m.queueDepths) {
			write("ctm_broker_queue_depth", m.queueDepths[b], "broker", b)
		}

		w.Write([]byte(sb.String()))
	}
}
