package payload

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

func sampleRecord() types.AgentRecord {
	return types.AgentRecord{
		ICMAgentID:     5123,
		AgentID:        "1001",
		AgentState:     types.AgentTalking,
		StateStartedAt: 1700000000,
		ReasonCode:     12,
		SkillGroupID:   42,
		Direction:      1,
		Extension:      "4711",
	}
}

func TestEncodeRecordIsArray(t *testing.T) {
	data, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)

	// 0x88: CBOR major type 4 (array) with 8 elements.
	require.NotEmpty(t, data)
	assert.Equal(t, byte(0x88), data[0])
}

func TestEncodeRecordDeterministic(t *testing.T) {
	first, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)
	second, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeRecord(t *testing.T) {
	data, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)

	got, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), got)
}

func TestDecoderStream(t *testing.T) {
	var stream bytes.Buffer
	for _, id := range []string{"1001", "1002", "1003"} {
		rec := sampleRecord()
		rec.AgentID = id
		data, err := EncodeRecord(rec)
		require.NoError(t, err)
		stream.Write(data)
	}

	dec := NewDecoder(&stream)
	var ids []string
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, rec.AgentID)
	}
	assert.Equal(t, []string{"1001", "1002", "1003"}, ids)
}
