// Package payload encodes agent records for TCP and WebSocket clients.
// Each record is one CBOR array in AgentRecord field order, encoded with
// Core Deterministic Encoding so equal records produce equal bytes.
package payload

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("payload: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{MaxArrayElements: 64}.DecMode()
	if err != nil {
		panic("payload: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeRecord returns the client encoding of rec.
func EncodeRecord(rec types.AgentRecord) ([]byte, error) {
	return encMode.Marshal(rec)
}

// DecodeRecord parses one encoded record.
func DecodeRecord(data []byte) (types.AgentRecord, error) {
	var rec types.AgentRecord
	err := decMode.Unmarshal(data, &rec)
	return rec, err
}

// Decoder reads a stream of concatenated records.
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

// Next decodes the next record. It returns io.EOF at the end of the stream.
func (d *Decoder) Next() (types.AgentRecord, error) {
	var rec types.AgentRecord
	err := d.dec.Decode(&rec)
	return rec, err
}
