package types

import (
	"fmt"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

// GatewayEvent carries exactly one raw message received from the gateway
type GatewayEvent struct {
	Packet []byte
}

// Type returns the message type from the packet header
func (e GatewayEvent) Type() (wire.MessageType, error) {
	h, err := wire.ParseHeader(e.Packet)
	if err != nil {
		return 0, err
	}
	return h.Type, nil
}

// ClientEvent carries bytes received from one client connection
type ClientEvent struct {
	ClientID string
	Payload  []byte
}

// Destination tells which side of the bridge a BridgeEvent is meant for
type Destination uint8

const (
	DestinationGateway Destination = iota + 1
	DestinationClient
)

func (d Destination) String() string {
	switch d {
	case DestinationGateway:
		return "gateway"
	case DestinationClient:
		return "client"
	default:
		return fmt.Sprintf("destination(%d)", d)
	}
}

// BridgePayload is implemented by the payload variants of a BridgeEvent
type BridgePayload interface {
	bridgePayload()
}

// QueryAgentState asks the gateway session to query one agent
type QueryAgentState struct {
	PeripheralID uint32
	AgentID      string
}

// AgentUpdate tells clients about a changed agent record
type AgentUpdate struct {
	Record AgentRecord
}

func (QueryAgentState) bridgePayload() {}
func (AgentUpdate) bridgePayload()     {}

// BridgeEvent is a translated message addressed to the gateway or to clients
type BridgeEvent struct {
	Destination Destination
	Payload     BridgePayload
}

// ErrorKind classifies an ErrorEvent
type ErrorKind uint8

const (
	GatewayConnectionFailed ErrorKind = iota + 1
	GatewayConnectionLost
	InternalError
	ClientError
)

func (k ErrorKind) String() string {
	switch k {
	case GatewayConnectionFailed:
		return "gateway_connection_failed"
	case GatewayConnectionLost:
		return "gateway_connection_lost"
	case InternalError:
		return "internal_error"
	case ClientError:
		return "client_error"
	default:
		return fmt.Sprintf("error_kind(%d)", k)
	}
}

// IsGateway reports whether the error concerns the gateway connection
func (k ErrorKind) IsGateway() bool {
	return k == GatewayConnectionFailed || k == GatewayConnectionLost
}

// ErrorEvent reports a failure to whoever handles that kind of error.
// SessionID is set for gateway errors so stale reports can be told apart.
type ErrorEvent struct {
	Kind      ErrorKind
	SessionID uint64
	Host      string
	Err       error
}

func (e ErrorEvent) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Host, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e ErrorEvent) Unwrap() error { return e.Err }
