package framing

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Errors returned by readers, writers and streams.
var (
	// ErrInvalidCodec is returned when no codec is provided.
	ErrInvalidCodec = errors.New("framing: invalid codec")
	// ErrInvalidMode is returned for an unknown Mode, or when the codec lacks
	// the capability the mode needs.
	ErrInvalidMode = errors.New("framing: codec does not support mode")
	// ErrMessageTooLarge is returned when a length prefix exceeds the maximum
	// message size.
	ErrMessageTooLarge = errors.New("framing: message too large")
	// ErrHeaderTooLarge is returned when a frame header does not fit in 8 bits
	// of length.
	ErrHeaderTooLarge = errors.New("framing: frame header too large")
	// ErrBodyTooLarge is returned when a frame body does not fit in 24 bits of
	// length.
	ErrBodyTooLarge = errors.New("framing: frame body too large")
	// ErrNotSplittable is returned by Stream.Split when the connection cannot
	// be decomposed into halves.
	ErrNotSplittable = errors.New("framing: connection cannot be split")
	// ErrStreamSplit is returned by a Stream that has already been split.
	ErrStreamSplit = errors.New("framing: stream has been split")
	// ErrModeLocked is returned by Stream.SetMode once data was exchanged.
	ErrModeLocked = errors.New("framing: mode cannot change after data was exchanged")
)

// ErrTruncated marks end of input in the middle of a message. It matches
// io.ErrUnexpectedEOF with errors.Is.
var ErrTruncated = truncatedError{}

type truncatedError struct{}

func (truncatedError) Error() string { return "framing: connection closed mid-message" }

func (truncatedError) Is(target error) bool { return target == io.ErrUnexpectedEOF }

// DecodeError reports bytes that the codec could not turn into a value.
// Only the current message is lost; the connection stays usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "framing: decode: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a value that the codec could not serialize. Nothing is
// added to the write buffer.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "framing: encode: " + e.Err.Error() }

func (e *EncodeError) Unwrap() error { return e.Err }

// TransportError reports a failure of the underlying connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("framing: %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline. Buffered state is kept,
// so the operation can be retried.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// IsTruncated reports whether err marks a connection closed mid-message.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncated)
}

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}
