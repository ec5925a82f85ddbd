package types

import "strconv"

// AgentState is the CTI agent state code as reported by the gateway
type AgentState = uint16

const (
	AgentLogin        AgentState = 0
	AgentLogout       AgentState = 1
	AgentNotReady     AgentState = 2
	AgentAvailable    AgentState = 3
	AgentTalking      AgentState = 4
	AgentWorkNotReady AgentState = 5
	AgentWorkReady    AgentState = 6
	AgentBusyOther    AgentState = 7
	AgentReserved     AgentState = 8
	AgentUnknown      AgentState = 9
	AgentHold         AgentState = 10
	AgentActive       AgentState = 11
	AgentPaused       AgentState = 12
	AgentInterrupted  AgentState = 13
	AgentNotActive    AgentState = 14
)

var agentStateNames = []string{
	"login",
	"logout",
	"not_ready",
	"available",
	"talking",
	"work_not_ready",
	"work_ready",
	"busy_other",
	"reserved",
	"unknown",
	"hold",
	"active",
	"paused",
	"interrupted",
	"not_active",
}

// AgentStateName returns a readable name for a CTI agent state code
func AgentStateName(s AgentState) string {
	if int(s) < len(agentStateNames) {
		return agentStateNames[s]
	}
	return "state_" + strconv.Itoa(int(s))
}

// AgentRecord is the last known state of one agent. It is the payload
// broadcast to clients and is encoded as a CBOR array in field order.
type AgentRecord struct {
	_ struct{} `cbor:",toarray"`

	ICMAgentID     int32  `json:"icmAgentId"`
	AgentID        string `json:"agentId"`
	AgentState     uint16 `json:"agentState"`
	StateStartedAt int64  `json:"stateStartedAt"` // unix seconds
	ReasonCode     uint16 `json:"reasonCode"`
	SkillGroupID   uint32 `json:"skillGroupId"`
	Direction      uint32 `json:"direction"`
	Extension      string `json:"extension"`
}

// StateChange records one agent state transition for the journal
type StateChange struct {
	AgentID        string `json:"agentId" dynamodbav:"AgentID"`
	RecordedAt     int64  `json:"recordedAt" dynamodbav:"RecordedAt"` // unix milliseconds
	ICMAgentID     int32  `json:"icmAgentId" dynamodbav:"ICMAgentID"`
	PreviousState  uint16 `json:"previousState" dynamodbav:"PreviousState"`
	AgentState     uint16 `json:"agentState" dynamodbav:"AgentState"`
	ReasonCode     uint16 `json:"reasonCode" dynamodbav:"ReasonCode"`
	StateStartedAt int64  `json:"stateStartedAt" dynamodbav:"StateStartedAt"`
	Source         string `json:"source" dynamodbav:"Source"`
}
