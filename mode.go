package framing

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Mode is the wire contract shared by a writer and the reader on the other
// end. Both endpoints must agree on it out of band; a mismatch is not detected
// and shows up as decode errors.
type Mode int

const (
	// ModeAsync prefixes every message with its length as a 4-byte big-endian
	// integer.
	ModeAsync Mode = iota
	// ModeSync writes messages back to back without a prefix. The payload
	// format must be self-delimiting.
	ModeSync
	// ModeAsyncFramed uses the same 4-byte prefix, with the header length in
	// the high 8 bits and the body length in the low 24 bits.
	ModeAsyncFramed
)

const (
	// lenSize is the size of the length prefix.
	lenSize = 4

	// MaxHeaderLen is the largest header a framed message can carry.
	MaxHeaderLen = 1<<8 - 1
	// MaxBodyLen is the largest body a framed message can carry.
	MaxBodyLen = 1<<24 - 1
)

var byteOrder = binary.BigEndian

func (m Mode) String() string {
	switch m {
	case ModeAsync:
		return "async"
	case ModeSync:
		return "sync"
	case ModeAsyncFramed:
		return "async-framed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "async":
		return ModeAsync, nil
	case "sync":
		return ModeSync, nil
	case "async-framed", "framed":
		return ModeAsyncFramed, nil
	default:
		return 0, errors.Errorf("framing: unknown mode %q", s)
	}
}

func (m Mode) valid() bool {
	return m == ModeAsync || m == ModeSync || m == ModeAsyncFramed
}

// LengthWord packs a framed message's header and body lengths into the
// 4-byte prefix used by ModeAsyncFramed.
func LengthWord(headerLen, bodyLen int) (uint32, error) {
	if headerLen < 0 || headerLen > MaxHeaderLen {
		return 0, ErrHeaderTooLarge
	}
	if bodyLen < 0 || bodyLen > MaxBodyLen {
		return 0, ErrBodyTooLarge
	}
	return uint32(headerLen)<<24 | uint32(bodyLen), nil
}

// SplitLengthWord is the inverse of LengthWord.
func SplitLengthWord(word uint32) (headerLen, bodyLen int) {
	return int(word >> 24), int(word & MaxBodyLen)
}
