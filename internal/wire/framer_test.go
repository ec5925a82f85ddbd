package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerHeartbeatThenAgentState(t *testing.T) {
	hb := Encode(&HeartbeatConf{InvokeID: 2})
	ase := Encode(&AgentStateEvent{PeripheralID: 5000, AgentID: "1001", AgentState: 3})
	require.Len(t, hb, 12)

	var f Framer
	msgs, err := f.Feed(append(append([]byte{}, hb...), ase...))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, hb, msgs[0])
	assert.Equal(t, ase, msgs[1])
	assert.Zero(t, f.Buffered())
}

func TestFramerArbitrarySplits(t *testing.T) {
	var stream []byte
	var want [][]byte
	for _, m := range sampleMessages() {
		b := Encode(m)
		want = append(want, b)
		stream = append(stream, b...)
	}

	for chunk := 1; chunk <= len(stream); chunk += 7 {
		var f Framer
		var got [][]byte
		for off := 0; off < len(stream); off += chunk {
			end := off + chunk
			if end > len(stream) {
				end = len(stream)
			}
			msgs, err := f.Feed(stream[off:end])
			require.NoError(t, err)
			got = append(got, msgs...)
		}

		require.Len(t, got, len(want), "chunk %d", chunk)
		total := 0
		for i := range got {
			assert.Equal(t, want[i], got[i], "chunk %d message %d", chunk, i)
			total += len(got[i])
		}
		assert.Equal(t, len(stream), total)
		assert.Zero(t, f.Buffered())
	}
}

func TestFramerKeepsPartialTail(t *testing.T) {
	b := Encode(&SystemEvent{Text: "tail"})

	var f Framer
	msgs, err := f.Feed(b[:5])
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 5, f.Buffered())

	msgs, err = f.Feed(b[5:])
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, b, msgs[0])
}

func TestFramerCopiesOutput(t *testing.T) {
	in := Encode(&HeartbeatConf{InvokeID: 1})
	buf := bytes.Clone(in)

	var f Framer
	msgs, err := f.Feed(buf)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = 0
	}
	assert.Equal(t, in, msgs[0])
}

func TestFramerRejectsOversized(t *testing.T) {
	hdr := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], MaxBodyLength+1)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(TypeAgentStateEvent))

	var f Framer
	_, err := f.Feed(hdr)
	assert.ErrorIs(t, err, ErrOversized)
	assert.Zero(t, f.Buffered())
}
