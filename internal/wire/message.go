// Package wire implements the CTI gateway binary protocol: an 8-byte
// header, a fixed-layout region per message type and a trailing region of
// tag/length/value floating fields. Everything is big-endian.
package wire

import "encoding/binary"

// HeaderSize is the length of the message header.
const HeaderSize = 8

// Header is the MHDR that precedes every message.
type Header struct {
	BodyLength uint32
	Type       MessageType
}

// Len returns the size of the whole message, header included.
func (h Header) Len() int { return HeaderSize + int(h.BodyLength) }

// ParseHeader reads the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	return Header{
		BodyLength: binary.BigEndian.Uint32(b[0:4]),
		Type:       MessageType(int32(binary.BigEndian.Uint32(b[4:8]))),
	}, nil
}

// Message is implemented by every message type in this package.
type Message interface {
	Type() MessageType
	encode(w *writer)
	decode(r *reader) error
}

// Encode serializes m, header included.
func Encode(m Message) []byte {
	w := newWriter(m.Type())
	m.encode(w)
	return w.finish()
}

// Decode parses exactly one message from the front of b. Bytes after the
// declared body are ignored.
func Decode(b []byte) (Message, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, &CodecError{Offset: len(b), Err: err}
	}
	if len(b) < h.Len() {
		return nil, &CodecError{Type: h.Type, Offset: len(b), Err: ErrTruncated}
	}

	m := newMessage(h.Type)
	if m == nil {
		return nil, &CodecError{Type: h.Type, Offset: 4, Err: ErrUnknownType}
	}

	r := &reader{buf: b[HeaderSize:h.Len()]}
	if err := m.decode(r); err != nil {
		return nil, &CodecError{Type: h.Type, Offset: HeaderSize + r.off, Err: err}
	}
	return m, nil
}

func newMessage(t MessageType) Message {
	switch t {
	case TypeFailureConf:
		return &FailureConf{}
	case TypeFailureEvent:
		return &FailureEvent{}
	case TypeOpenReq:
		return &OpenReq{}
	case TypeOpenConf:
		return &OpenConf{}
	case TypeHeartbeatReq:
		return &HeartbeatReq{}
	case TypeHeartbeatConf:
		return &HeartbeatConf{}
	case TypeCloseReq:
		return &CloseReq{}
	case TypeCloseConf:
		return &CloseConf{}
	case TypeAgentStateEvent:
		return &AgentStateEvent{}
	case TypeSystemEvent:
		return &SystemEvent{}
	case TypeQueryAgentStateReq:
		return &QueryAgentStateReq{}
	case TypeQueryAgentStateConf:
		return &QueryAgentStateConf{}
	case TypeAgentTeamConfigEvent:
		return &AgentTeamConfigEvent{}
	}
	return nil
}
