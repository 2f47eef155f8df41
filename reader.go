// Package framing provides length-delimited message framing over byte
// streams such as TCP connections.
//
// A Writer serializes values into a buffer and drains it to the connection
// on Flush; a Reader accumulates bytes across partial reads until a whole
// message is buffered and decodes it. A Stream composes both over one
// duplex connection and can be split into independent halves without losing
// buffered data. Serialization itself is pluggable through Codec; see the
// codec subpackages for Protocol Buffers, MessagePack and JSON.
package framing

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/pkg/errors"
)

// maxConsecutiveEmptyReads bounds reads that return neither data nor an error.
const maxConsecutiveEmptyReads = 100

// Reader decodes a sequence of messages from an io.Reader.
//
// A Reader is driven by one goroutine at a time. Read errors leave buffered
// bytes in place, so a Next interrupted by a deadline resumes where it stopped.
type Reader[T any] struct {
	src    io.Reader
	codec  Codec[T]
	frames FrameCodec[T]
	prefix PrefixDecoder[T]
	mode   Mode

	// buf[r:w] holds bytes read but not yet decoded; buf[w:] is spare
	// capacity that reads fill in place.
	buf  []byte
	r, w int
	seen bool

	setDeadline func(time.Time) error
	maxSize     int
	logger      Logger
	metrics     *metrics
}

// NewReader creates a Reader that decodes values of type T from src.
// In ModeAsyncFramed the codec must implement FrameCodec, in ModeSync it must
// implement PrefixDecoder.
func NewReader[T any](src io.Reader, codec Codec[T], opt ...Option) (*Reader[T], error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}
	return newReader(src, codec, opts)
}

func newReader[T any](src io.Reader, codec Codec[T], opts options) (*Reader[T], error) {
	if codec == nil {
		return nil, ErrInvalidCodec
	}

	r := &Reader[T]{
		src:         src,
		codec:       codec,
		mode:        opts.mode,
		buf:         make([]byte, opts.readBufferSize),
		setDeadline: readDeadlineFunc(src),
		maxSize:     opts.maxMessageSize,
		logger:      opts.logger,
		metrics:     opts.metrics,
	}

	switch opts.mode {
	case ModeAsyncFramed:
		fc, ok := codec.(FrameCodec[T])
		if !ok {
			return nil, ErrInvalidMode
		}
		r.frames = fc
	case ModeSync:
		pd, ok := codec.(PrefixDecoder[T])
		if !ok {
			return nil, ErrInvalidMode
		}
		r.prefix = pd
	}

	return r, nil
}

// Next reads and decodes the next message.
//
// It returns io.EOF when the input ends exactly at a message boundary. Input
// that ends inside a message yields a *TransportError matching ErrTruncated.
// Malformed bytes yield a *DecodeError; the message is dropped and Next may be
// called again.
func (r *Reader[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, transportErr("read", err)
	}

	release := bindDeadline(ctx, r.setDeadline)
	defer release()

	if r.mode == ModeSync {
		return r.nextSync(ctx)
	}
	return r.nextPrefixed(ctx)
}

// All returns the remaining messages as a sequence. Iteration ends after a
// clean end of input or a transport error; decode errors are yielded and
// iteration continues with the next message.
func (r *Reader[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := r.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(v, err) {
				return
			}
			if err != nil && !isDecodeError(err) {
				return
			}
		}
	}
}

func (r *Reader[T]) nextPrefixed(ctx context.Context) (T, error) {
	var zero T

	eof, err := r.fill(ctx, lenSize)
	if err != nil {
		return zero, err
	}
	if eof {
		return zero, io.EOF
	}

	word := byteOrder.Uint32(r.buf[r.r:])
	size, headerLen := uint64(word), 0
	if r.mode == ModeAsyncFramed {
		h, b := SplitLengthWord(word)
		size, headerLen = uint64(h+b), h
	}
	if size > uint64(r.maxSize) {
		return zero, transportErr("read", ErrMessageTooLarge)
	}

	// At least lenSize bytes are pending, so end of input from here on is
	// always a truncated message.
	n := int(size)
	if _, err := r.fill(ctx, lenSize+n); err != nil {
		return zero, err
	}

	payload := r.buf[r.r+lenSize : r.r+lenSize+n]

	var v T
	if r.frames != nil {
		v, err = r.frames.DecodeFrame(payload, headerLen)
	} else {
		v, err = r.codec.Decode(payload)
	}
	r.consume(lenSize + n)

	if err != nil {
		return zero, r.decodeFailed(err)
	}

	r.metrics.decoded()
	return v, nil
}

func (r *Reader[T]) nextSync(ctx context.Context) (T, error) {
	var zero T

	for {
		if pending := r.w - r.r; pending > 0 {
			v, n, err := r.prefix.DecodePrefix(r.buf[r.r:r.w])
			switch {
			case err == nil && n > 0 && n <= pending:
				r.consume(n)
				r.metrics.decoded()
				return v, nil
			case err == nil:
				err = errors.Errorf("codec reported %d bytes used of %d", n, pending)
				fallthrough
			case !errors.Is(err, ErrIncomplete):
				// Without a length prefix the end of a malformed message is
				// unknown, so everything pending is dropped.
				r.consume(pending)
				return zero, r.decodeFailed(err)
			case pending >= r.maxSize:
				return zero, transportErr("read", ErrMessageTooLarge)
			}
		}

		eof, err := r.fill(ctx, r.w-r.r+1)
		if err != nil {
			return zero, err
		}
		if eof {
			return zero, io.EOF
		}
	}
}

// fill reads until at least target bytes are pending. It reports eof only when
// the input ended with nothing pending.
func (r *Reader[T]) fill(ctx context.Context, target int) (eof bool, err error) {
	if r.w-r.r >= target {
		return false, nil
	}

	r.reserve(target)

	empty := 0
	for r.w-r.r < target {
		if err := ctx.Err(); err != nil {
			return false, transportErr("read", err)
		}

		n, err := r.src.Read(r.buf[r.w:])
		if n > 0 {
			r.w += n
			r.seen = true
			r.metrics.read(n)
			empty = 0
		}

		if err != nil {
			if r.w-r.r >= target {
				return false, nil
			}
			if err == io.EOF {
				if r.w == r.r {
					return true, nil
				}
				return false, transportErr("read", ErrTruncated)
			}
			return false, transportErr("read", ctxErr(ctx, err))
		}

		if n == 0 {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return false, transportErr("read", io.ErrNoProgress)
			}
		}
	}

	return false, nil
}

// reserve makes room for target pending bytes. Pending bytes move to the
// front of the buffer; the buffer is reallocated only to grow.
func (r *Reader[T]) reserve(target int) {
	if r.r+target <= len(r.buf) {
		return
	}

	if r.r > 0 {
		copy(r.buf, r.buf[r.r:r.w])
		r.w -= r.r
		r.r = 0
	}

	if target <= len(r.buf) {
		return
	}

	size := 2 * len(r.buf)
	if size < target {
		size = target
	}
	buf := make([]byte, size)
	copy(buf, r.buf[:r.w])
	r.buf = buf
}

// consume drops n decoded bytes from the front of the pending data.
func (r *Reader[T]) consume(n int) {
	r.r += n
	if r.r == r.w {
		r.r, r.w = 0, 0
	}
}

func (r *Reader[T]) decodeFailed(err error) error {
	r.metrics.decodeFailed()
	r.logger.Debug("decode failed", "mode", r.mode, "error", err)
	return &DecodeError{Err: err}
}

// moveTo returns a Reader over src that owns r's buffered bytes. r must not
// be used afterwards.
func (r *Reader[T]) moveTo(src io.Reader) *Reader[T] {
	nr := *r
	nr.src = src
	nr.setDeadline = readDeadlineFunc(src)
	*r = Reader[T]{}
	return &nr
}

// Buffered returns the number of bytes read but not yet decoded.
func (r *Reader[T]) Buffered() int {
	return r.w - r.r
}

// Mode returns the wire mode the reader expects.
func (r *Reader[T]) Mode() Mode {
	return r.mode
}

// Source returns the underlying reader. Reading from it directly loses
// framing.
func (r *Reader[T]) Source() io.Reader {
	return r.src
}

func isDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
