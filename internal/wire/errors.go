package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a read would run past the end of the
	// message or of a floating field.
	ErrTruncated = errors.New("truncated message")
	// ErrUnknownType is returned by Decode for a message type it has no layout for.
	ErrUnknownType = errors.New("unknown message type")
	// ErrOrphanField is returned when a tag that belongs to a list element
	// arrives before the tag that starts the element.
	ErrOrphanField = errors.New("list field before list element")
	// ErrOversized is returned by the Framer for a header announcing more
	// than MaxBodyLength bytes.
	ErrOversized = errors.New("message body exceeds limit")
)

// CodecError carries the message type and offset where decoding stopped.
type CodecError struct {
	Type   MessageType
	Offset int
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("wire: decode %s at offset %d: %v", e.Type, e.Offset, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
