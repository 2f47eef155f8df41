package framing

import (
	"bytes"

	"github.com/pkg/errors"
)

// BodyDecider is implemented by frame headers that decide whether the body
// of their frame is decoded or kept as raw bytes.
type BodyDecider interface {
	DecodeBody() bool
}

// Body is the payload of a Frame: either a decoded value or the raw bytes of
// one, left for the application to interpret later (for example to route a
// message without paying for its decoding).
type Body[T any] struct {
	raw   []byte
	value T
	typed bool
}

// ValueBody returns a Body holding a decoded value.
func ValueBody[T any](v T) Body[T] {
	return Body[T]{value: v, typed: true}
}

// RawBody returns a Body holding encoded bytes.
func RawBody[T any](b []byte) Body[T] {
	return Body[T]{raw: b}
}

// Value returns the decoded value, if the body holds one.
func (b Body[T]) Value() (T, bool) {
	return b.value, b.typed
}

// Raw returns the encoded bytes, if the body holds them.
func (b Body[T]) Raw() ([]byte, bool) {
	return b.raw, !b.typed
}

// IsRaw reports whether the body was left undecoded.
func (b Body[T]) IsRaw() bool {
	return !b.typed
}

// Frame is a message made of an optional header and a body.
type Frame[H, B any] struct {
	Header *H
	Body   Body[B]
}

// Envelope encodes and decodes frames. It implements FrameCodec, so it can be
// used with ModeAsyncFramed, and the plain Codec view (no header boundary on
// the wire) for the other modes.
type Envelope[H, B any] struct {
	header Codec[H]
	body   Codec[B]
	decide func(H) bool
}

// NewEnvelope creates an Envelope from a header codec and a body codec.
// decide tells whether a frame's body is decoded. When decide is nil, headers
// implementing BodyDecider are consulted and all other bodies are decoded.
func NewEnvelope[H, B any](hc Codec[H], bc Codec[B], decide func(H) bool) *Envelope[H, B] {
	return &Envelope[H, B]{
		header: hc,
		body:   bc,
		decide: decide,
	}
}

func (e *Envelope[H, B]) decodeBody(h H) bool {
	if e.decide != nil {
		return e.decide(h)
	}
	if d, ok := any(h).(BodyDecider); ok {
		return d.DecodeBody()
	}
	return true
}

// DecodeFrame decodes a frame whose first headerLen bytes are the header.
// With headerLen 0 the frame has no header and the body is always decoded.
// Raw bodies are copied out of data.
func (e *Envelope[H, B]) DecodeFrame(data []byte, headerLen int) (Frame[H, B], error) {
	var f Frame[H, B]
	if headerLen < 0 || headerLen > len(data) {
		return f, errors.Errorf("header length %d out of range for %d byte frame", headerLen, len(data))
	}

	decode := true
	if headerLen > 0 {
		h, err := e.header.Decode(data[:headerLen])
		if err != nil {
			return f, errors.Wrap(err, "frame header")
		}
		f.Header = &h
		decode = e.decodeBody(h)
	}

	rest := data[headerLen:]
	if !decode {
		f.Body = RawBody[B](bytes.Clone(rest))
		return f, nil
	}

	v, err := e.body.Decode(rest)
	if err != nil {
		return f, errors.Wrap(err, "frame body")
	}
	f.Body = ValueBody(v)
	return f, nil
}

// AppendFrame appends the header bytes, if any, followed by the body bytes.
// It returns the header length; the body has no delimiter of its own.
func (e *Envelope[H, B]) AppendFrame(dst []byte, f Frame[H, B]) ([]byte, int, error) {
	start := len(dst)

	var err error
	if f.Header != nil {
		dst, err = e.header.Append(dst, *f.Header)
		if err != nil {
			return nil, 0, errors.Wrap(err, "frame header")
		}
	}
	headerLen := len(dst) - start

	if v, ok := f.Body.Value(); ok {
		dst, err = e.body.Append(dst, v)
		if err != nil {
			return nil, 0, errors.Wrap(err, "frame body")
		}
	} else {
		dst = append(dst, f.Body.raw...)
	}

	return dst, headerLen, nil
}

// EncodedLen returns the length word a frame gets in ModeAsyncFramed. It
// encodes the frame to find out.
func (e *Envelope[H, B]) EncodedLen(f Frame[H, B]) (uint32, error) {
	b, headerLen, err := e.AppendFrame(nil, f)
	if err != nil {
		return 0, err
	}
	return LengthWord(headerLen, len(b)-headerLen)
}

func (e *Envelope[H, B]) bodySize(b Body[B]) int {
	if v, ok := b.Value(); ok {
		return e.body.Size(v)
	}
	return len(b.raw)
}

// Append appends the frame without recording where the header ends.
func (e *Envelope[H, B]) Append(dst []byte, f Frame[H, B]) ([]byte, error) {
	dst, _, err := e.AppendFrame(dst, f)
	return dst, err
}

// Decode decodes data as a frame without a header.
func (e *Envelope[H, B]) Decode(data []byte) (Frame[H, B], error) {
	return e.DecodeFrame(data, 0)
}

// Size estimates the encoded length of the frame's header and body from the
// header and body codecs.
func (e *Envelope[H, B]) Size(f Frame[H, B]) int {
	n := e.bodySize(f.Body)
	if f.Header != nil {
		n += e.header.Size(*f.Header)
	}
	return n
}
