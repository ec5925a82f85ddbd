package wire

import "encoding/binary"

// maxFieldData is the largest payload a floating field length can describe.
const maxFieldData = 0xFFFF

type writer struct {
	buf []byte
}

func newWriter(t MessageType) *writer {
	w := &writer{buf: make([]byte, HeaderSize, 128)}
	binary.BigEndian.PutUint32(w.buf[4:], uint32(t))
	return w
}

func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }

func (w *writer) bool16(v bool) {
	if v {
		w.u16(1)
		return
	}
	w.u16(0)
}

func (w *writer) field(tag Tag, data []byte) {
	if len(data) > maxFieldData {
		data = data[:maxFieldData]
	}
	w.u16(uint16(tag))
	w.u16(uint16(len(data)))
	w.buf = append(w.buf, data...)
}

// str writes s as a NUL-terminated floating field, even when empty.
func (w *writer) str(tag Tag, s string) {
	if len(s) >= maxFieldData {
		s = s[:maxFieldData-1]
	}
	data := make([]byte, len(s)+1)
	copy(data, s)
	w.field(tag, data)
}

func (w *writer) fltU16(tag Tag, v uint16) {
	w.field(tag, binary.BigEndian.AppendUint16(nil, v))
}

func (w *writer) fltU32(tag Tag, v uint32) {
	w.field(tag, binary.BigEndian.AppendUint32(nil, v))
}

func (w *writer) fltI32(tag Tag, v int32) { w.fltU32(tag, uint32(v)) }

// The opt* variants leave the field out entirely for a zero value.

func (w *writer) optStr(tag Tag, s string) {
	if s != "" {
		w.str(tag, s)
	}
}

func (w *writer) optU16(tag Tag, v uint16) {
	if v != 0 {
		w.fltU16(tag, v)
	}
}

func (w *writer) optU32(tag Tag, v uint32) {
	if v != 0 {
		w.fltU32(tag, v)
	}
}

// finish stamps the body length into the header and returns the message.
func (w *writer) finish() []byte {
	binary.BigEndian.PutUint32(w.buf[0:], uint32(len(w.buf)-HeaderSize))
	return w.buf
}
