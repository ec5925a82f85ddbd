package wire

// MaxBodyLength bounds the body size the Framer accepts from a peer.
const MaxBodyLength = 64 * 1024

// Framer splits a byte stream into whole messages using the header's body
// length. Bytes of an incomplete message are kept until the next Feed.
type Framer struct {
	pending []byte
}

// Feed appends p to the pending stream and returns every message that is
// now complete, in order. Returned slices are copies and stay valid after
// the caller reuses p.
func (f *Framer) Feed(p []byte) ([][]byte, error) {
	f.pending = append(f.pending, p...)

	var out [][]byte
	off := 0
	for len(f.pending)-off >= HeaderSize {
		h, _ := ParseHeader(f.pending[off:])
		if h.BodyLength > MaxBodyLength {
			f.pending = f.pending[:0]
			return out, &CodecError{Type: h.Type, Offset: off, Err: ErrOversized}
		}
		n := h.Len()
		if len(f.pending)-off < n {
			break
		}
		msg := make([]byte, n)
		copy(msg, f.pending[off:off+n])
		out = append(out, msg)
		off += n
	}

	// Shift the partial tail to the front so the buffer does not grow
	// without bound on a long-lived connection.
	rest := copy(f.pending, f.pending[off:])
	f.pending = f.pending[:rest]
	return out, nil
}

// Buffered returns the number of bytes held for an incomplete message.
func (f *Framer) Buffered() int { return len(f.pending) }
