package framing

import "github.com/pkg/errors"

// ErrIncomplete is returned by a PrefixDecoder when data holds only the
// beginning of a value and more bytes are needed.
var ErrIncomplete = errors.New("framing: incomplete value")

// Codec is the serialization capability for one message type.
// Applications implement it (or use one of the codec subpackages) to plug a
// schema-driven format such as Protocol Buffers or MessagePack into the
// transport.
//
// Implementations must not retain data passed to Decode: the slice points into
// the reader's buffer and is overwritten by later reads.
type Codec[T any] interface {
	// Append serializes v and appends the bytes to dst.
	Append(dst []byte, v T) ([]byte, error)
	// Decode deserializes exactly one value from data.
	Decode(data []byte) (T, error)
	// Size estimates the encoded length of v. The transport only uses it to
	// reserve buffer capacity, so codecs that cannot tell cheaply return 0.
	Size(v T) int
}

// FrameCodec is a Codec whose values are split into a header and a body.
// It is required by ModeAsyncFramed.
type FrameCodec[T any] interface {
	Codec[T]
	// AppendFrame appends header bytes followed by body bytes to dst and
	// reports how many of the appended bytes belong to the header.
	AppendFrame(dst []byte, v T) ([]byte, int, error)
	// DecodeFrame decodes a value whose first headerLen bytes are the header.
	DecodeFrame(data []byte, headerLen int) (T, error)
}

// PrefixDecoder is implemented by codecs whose encoding is self-delimiting.
// It is required to read in ModeSync.
type PrefixDecoder[T any] interface {
	// DecodePrefix decodes one value from the front of data and returns the
	// number of bytes it used. It returns ErrIncomplete when data ends before
	// the value does.
	DecodePrefix(data []byte) (T, int, error)
}
