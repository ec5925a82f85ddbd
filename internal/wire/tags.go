package wire

// Tag identifies a floating field. Each message type recognizes a subset;
// anything else is skipped on decode.
type Tag uint16

const (
	TagClientID              Tag = 1
	TagClientPassword        Tag = 2
	TagClientSignature       Tag = 3
	TagAgentExtension        Tag = 4
	TagAgentID               Tag = 5
	TagAgentInstrument       Tag = 6
	TagText                  Tag = 7
	TagCTIClientSignature    Tag = 23
	TagSkillGroupNumber      Tag = 47
	TagSkillGroupID          Tag = 48
	TagSkillGroupPriority    Tag = 49
	TagSkillGroupState       Tag = 50
	TagNumPeripherals        Tag = 58
	TagEventDeviceID         Tag = 62
	TagDuration              Tag = 116
	TagAgentTeamName         Tag = 120
	TagATCAgentID            Tag = 121
	TagAgentFlags            Tag = 122
	TagATCAgentState         Tag = 123
	TagATCAgentStateDuration Tag = 124
	TagMultiLineAgentControl Tag = 127
	TagActiveTerminal        Tag = 150
	TagNextAgentState        Tag = 151
	TagInternalAgentState    Tag = 152
	TagMaxBeyondTaskLimit    Tag = 153
	TagApplicationPathID     Tag = 154
	TagUniqueInstanceID      Tag = 155
	TagDirection             Tag = 156
)
