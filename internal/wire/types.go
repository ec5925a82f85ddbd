package wire

import "strconv"

// MessageType is the gateway-defined message type carried in the header.
type MessageType int32

const (
	TypeFailureConf          MessageType = 1
	TypeFailureEvent         MessageType = 2
	TypeOpenReq              MessageType = 3
	TypeOpenConf             MessageType = 4
	TypeHeartbeatReq         MessageType = 5
	TypeHeartbeatConf        MessageType = 6
	TypeCloseReq             MessageType = 7
	TypeCloseConf            MessageType = 8
	TypeAgentStateEvent      MessageType = 30
	TypeSystemEvent          MessageType = 31
	TypeQueryAgentStateReq   MessageType = 36
	TypeQueryAgentStateConf  MessageType = 37
	TypeAgentTeamConfigEvent MessageType = 160
)

var typeNames = map[MessageType]string{
	TypeFailureConf:          "FAILURE_CONF",
	TypeFailureEvent:         "FAILURE_EVENT",
	TypeOpenReq:              "OPEN_REQ",
	TypeOpenConf:             "OPEN_CONF",
	TypeHeartbeatReq:         "HEARTBEAT_REQ",
	TypeHeartbeatConf:        "HEARTBEAT_CONF",
	TypeCloseReq:             "CLOSE_REQ",
	TypeCloseConf:            "CLOSE_CONF",
	TypeAgentStateEvent:      "AGENT_STATE_EVENT",
	TypeSystemEvent:          "SYSTEM_EVENT",
	TypeQueryAgentStateReq:   "QUERY_AGENT_STATE_REQ",
	TypeQueryAgentStateConf:  "QUERY_AGENT_STATE_CONF",
	TypeAgentTeamConfigEvent: "AGENT_TEAM_CONFIG_EVENT",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is a message type this package can decode.
func (t MessageType) Known() bool {
	_, ok := typeNames[t]
	return ok
}
