package wire

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessages() map[string]Message {
	return map[string]Message{
		"open req minimal": &OpenReq{InvokeID: 1, ClientID: "ctmonitor"},
		"open req full": &OpenReq{
			InvokeID: 7, VersionNumber: 24, IdleTimeout: 300, PeripheralID: AnyPeripheral,
			ServicesRequested: 0x94, CallMessageMask: 0xffffffff, AgentStateMask: 0x3fff,
			Reserved1: 1, Reserved2: 2, Reserved3: 3,
			ClientID: "ctmonitor", ClientPassword: "secret", ClientSignature: "sig",
			AgentExtension: "4711", AgentID: "1001", AgentInstrument: "4711",
			ApplicationPathID: 99, UniqueInstanceID: "node-1",
		},
		"open conf bare": &OpenConf{InvokeID: 1, PeripheralOnline: true, DepartmentID: -1},
		"open conf full": &OpenConf{
			InvokeID: 1, ServicesGranted: 0x94, MonitorID: 3, PGStatus: 0, ICMCentralControllerTime: 1700000000,
			PeripheralOnline: true, PeripheralType: 17, AgentState: 3, DepartmentID: 12, SessionType: 2,
			AgentExtension: "200", AgentID: "9", AgentInstrument: "200", NumPeripherals: 1, MultiLineAgentControl: 1,
		},
		"heartbeat req":  &HeartbeatReq{InvokeID: 42},
		"heartbeat conf": &HeartbeatConf{InvokeID: 0xffffffff},
		"close req":      &CloseReq{InvokeID: 9, Status: 1},
		"close conf":     &CloseConf{InvokeID: 9},
		"failure conf":   &FailureConf{InvokeID: 5, Status: 12},
		"failure event":  &FailureEvent{Status: 3},
		"agent state bare": &AgentStateEvent{
			PeripheralID: 5000, AgentState: 3, ICMAgentID: 5001, MRDID: -1, DepartmentID: -1,
		},
		"agent state one float": &AgentStateEvent{PeripheralID: 5000, AgentID: "1001"},
		"agent state many": &AgentStateEvent{
			MonitorID: 1, PeripheralID: 5000, SessionID: 77, PeripheralType: 17, SkillGroupState: 4,
			StateDuration: 65, SkillGroupNumber: 10, SkillGroupID: 5010, SkillGroupPriority: 1,
			AgentState: 4, EventReasonCode: 32767, MRDID: 1, NumTasks: 1, AgentMode: 1, MaxTaskLimit: 1,
			ICMAgentID: 5001, AgentAvailabilityStatus: 1, NumFltSkillGroups: 2, DepartmentID: 3,
			CTIClientSignature: "ctmonitor", AgentID: "1001", AgentExtension: "4711",
			ActiveTerminal: "SEP0001", AgentInstrument: "4711", Duration: 65, NextAgentState: 2,
			Direction: 1, MaxBeyondTaskLimit: 2,
			SkillGroups: []SkillGroup{
				{Number: 10, ID: 5010, Priority: 1, State: 4},
				{Number: -1, ID: 5011, Priority: 0, State: 2},
			},
		},
		"query req": &QueryAgentStateReq{InvokeID: 3, PeripheralID: 5000, MRDID: -1, ICMAgentID: -1, AgentID: "1001"},
		"query conf": &QueryAgentStateConf{
			InvokeID: 3, AgentState: 2, NumSkillGroups: 1, MRDID: 1, AgentAvailabilityStatus: 1,
			NumTasks: 0, AgentMode: 1, MaxTaskLimit: 1, ICMAgentID: 5001, DepartmentID: -1,
			AgentID: "1001", AgentExtension: "4711", AgentInstrument: "4711",
			InternalAgentState: 2, MaxBeyondTaskLimit: 1,
			SkillGroups: []SkillGroup{{Number: 10, ID: 5010, Priority: 1, State: 2}},
		},
		"team config empty": &AgentTeamConfigEvent{PeripheralID: 5000, TeamID: 1, DepartmentID: -1},
		"team config": &AgentTeamConfigEvent{
			PeripheralID: 5000, TeamID: 8, NumberOfAgents: 3, ConfigOperation: 1, DepartmentID: 2,
			TeamName: "Support",
			Members: []TeamMember{
				{AgentID: "1001", Flags: 1, State: 3, StateDuration: 12},
				{AgentID: "1002", Flags: 0, State: 2, StateDuration: 0},
				{AgentID: "1003", Flags: 2, State: 4, StateDuration: 65535},
			},
		},
		"system event": &SystemEvent{
			PGStatus: 1, ICMCentralControllerTime: 1700000000, SystemEventID: 2, Arg1: 1, Arg2: 2, Arg3: 3,
			EventDeviceType: 4, Text: "peripheral online", EventDeviceID: "PG1",
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for name, msg := range sampleMessages() {
		t.Run(name, func(t *testing.T) {
			b := Encode(msg)

			h, err := ParseHeader(b)
			require.NoError(t, err)
			assert.Equal(t, msg.Type(), h.Type)
			assert.Equal(t, len(b)-HeaderSize, int(h.BodyLength))

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestOpenReqLayout(t *testing.T) {
	b := Encode(&OpenReq{InvokeID: 1, ClientID: "ctmonitor", ClientPassword: ""})

	require.Len(t, b, 8+44+(4+10)+(4+1))
	assert.Equal(t, uint32(len(b)-8), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, uint32(TypeOpenReq), binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[8:12]))

	// CLIENT_ID field directly after the fixed region.
	assert.Equal(t, uint16(TagClientID), binary.BigEndian.Uint16(b[52:54]))
	assert.Equal(t, uint16(10), binary.BigEndian.Uint16(b[54:56]))
	assert.Equal(t, "ctmonitor\x00", string(b[56:66]))
	assert.Equal(t, uint16(TagClientPassword), binary.BigEndian.Uint16(b[66:68]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(b[68:70]))
	assert.Equal(t, byte(0), b[70])
}

func TestFixedRegionSizes(t *testing.T) {
	tests := []struct {
		msg  Message
		size int
	}{
		{&OpenReq{}, 44},
		{&OpenConf{}, 32},
		{&HeartbeatReq{}, 4},
		{&HeartbeatConf{}, 4},
		{&CloseReq{}, 8},
		{&CloseConf{}, 4},
		{&FailureConf{}, 8},
		{&FailureEvent{}, 4},
		{&AgentStateEvent{}, 62},
		{&QueryAgentStateReq{}, 16},
		{&QueryAgentStateConf{}, 34},
		{&AgentTeamConfigEvent{}, 16},
		{&SystemEvent{}, 26},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Type().String(), func(t *testing.T) {
			b := Encode(tt.msg)
			// OpenReq always carries CLIENT_ID and CLIENT_PASSWORD.
			if tt.msg.Type() == TypeOpenReq {
				assert.Len(t, b, HeaderSize+tt.size+5+5)
				return
			}
			assert.Len(t, b, HeaderSize+tt.size)
		})
	}
}

// appendField adds a raw floating field and fixes up the body length.
func appendField(b []byte, tag uint16, data []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, tag)
	b = binary.BigEndian.AppendUint16(b, uint16(len(data)))
	b = append(b, data...)
	binary.BigEndian.PutUint32(b[0:4], uint32(len(b)-HeaderSize))
	return b
}

func TestUnknownTagSkipped(t *testing.T) {
	msg := &AgentStateEvent{PeripheralID: 5000, AgentState: 3, ICMAgentID: 5001, AgentID: "1001"}
	b := Encode(msg)
	b = appendField(b, 9999, []byte{1, 2, 3, 4, 5})
	b = appendField(b, uint16(TagAgentExtension), []byte("4711\x00"))

	got, err := Decode(b)
	require.NoError(t, err)

	ev := got.(*AgentStateEvent)
	assert.Equal(t, uint32(5000), ev.PeripheralID)
	assert.Equal(t, uint16(3), ev.AgentState)
	assert.Equal(t, int32(5001), ev.ICMAgentID)
	assert.Equal(t, "1001", ev.AgentID)
	assert.Equal(t, "4711", ev.AgentExtension)
}

func TestTruncatedPrefixes(t *testing.T) {
	for name, msg := range sampleMessages() {
		b := Encode(msg)
		for n := 0; n < len(b); n++ {
			_, err := Decode(b[:n])
			require.Error(t, err, "%s: prefix %d", name, n)
			assert.ErrorIs(t, err, ErrTruncated, "%s: prefix %d", name, n)

			var ce *CodecError
			assert.True(t, errors.As(err, &ce))
		}
	}
}

func TestDeclaredBodyShorterThanFixedRegion(t *testing.T) {
	b := Encode(&AgentStateEvent{AgentID: "1001"})
	binary.BigEndian.PutUint32(b[0:4], 20)

	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestFieldOverrunsBody(t *testing.T) {
	b := Encode(&SystemEvent{Text: "hello"})
	// Claim a longer TEXT field than the body holds.
	binary.BigEndian.PutUint16(b[HeaderSize+26+2:], 200)

	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestNumericFieldTooShort(t *testing.T) {
	b := Encode(&AgentStateEvent{})
	b = appendField(b, uint16(TagDuration), []byte{0, 1})

	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestOrphanTeamMemberField(t *testing.T) {
	tags := []Tag{TagAgentFlags, TagATCAgentState, TagATCAgentStateDuration}
	for _, tag := range tags {
		b := Encode(&AgentTeamConfigEvent{PeripheralID: 5000, TeamName: "Support"})
		b = appendField(b, uint16(tag), []byte{0, 1})

		_, err := Decode(b)
		assert.ErrorIs(t, err, ErrOrphanField, "tag %d", tag)
	}
}

func TestOrphanSkillGroupField(t *testing.T) {
	b := Encode(&QueryAgentStateConf{AgentID: "1001"})
	b = appendField(b, uint16(TagSkillGroupPriority), []byte{0, 1})

	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrOrphanField)
}

func TestBoolEitherByte(t *testing.T) {
	const onlineOffset = HeaderSize + 20

	for _, raw := range [][2]byte{{0, 1}, {1, 0}, {0xff, 0xff}} {
		b := Encode(&OpenConf{})
		b[onlineOffset], b[onlineOffset+1] = raw[0], raw[1]

		got, err := Decode(b)
		require.NoError(t, err)
		assert.True(t, got.(*OpenConf).PeripheralOnline, "bytes %v", raw)
	}

	got, err := Decode(Encode(&OpenConf{}))
	require.NoError(t, err)
	assert.False(t, got.(*OpenConf).PeripheralOnline)
}

func TestUnknownMessageType(t *testing.T) {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], 4)
	binary.BigEndian.PutUint32(b[4:8], 999)

	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, MessageType(999).Known())
	assert.Equal(t, "UNKNOWN(999)", MessageType(999).String())
}

func TestTrailingBytesIgnored(t *testing.T) {
	b := Encode(&HeartbeatConf{InvokeID: 5})
	b = append(b, 0xde, 0xad)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, &HeartbeatConf{InvokeID: 5}, got)
}
