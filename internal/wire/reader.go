package wire

import (
	"bytes"
	"encoding/binary"
)

// reader is a bounds-checked cursor over one message body or one floating
// field. The first failed read sets err; later reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) bool16() bool {
	b := r.take(2)
	return b != nil && (b[0] != 0 || b[1] != 0)
}

// str consumes the rest of the buffer as a NUL-terminated string.
func (r *reader) str() string {
	b := r.take(len(r.buf) - r.off)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// floats walks the floating region from the current offset to the end of
// the body. fn sees each field through its own reader; tags fn does not
// recognize must simply be ignored.
func (r *reader) floats(fn func(tag Tag, f *reader) error) error {
	for r.err == nil && r.off < len(r.buf) {
		tag := Tag(r.u16())
		n := int(r.u16())
		data := r.take(n)
		if r.err != nil {
			break
		}
		f := &reader{buf: data}
		if err := fn(tag, f); err != nil {
			return err
		}
		if f.err != nil {
			return f.err
		}
	}
	return r.err
}
