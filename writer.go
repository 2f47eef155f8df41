package framing

import (
	"context"
	"io"
	"math"
	"slices"
	"time"
)

type flusher interface {
	Flush() error
}

type closeWriter interface {
	CloseWrite() error
}

// Writer serializes values into a buffer and drains it to an io.Writer.
//
// Send never touches the connection, so several values sent before one Flush
// go out in as few writes as the connection allows. Unflushed values are lost
// if the Writer is dropped.
type Writer[T any] struct {
	dst    io.Writer
	codec  Codec[T]
	frames FrameCodec[T]
	mode   Mode

	// buf holds serialized messages; buf[:written] already reached dst.
	buf      []byte
	written  int
	accepted bool

	setDeadline func(time.Time) error
	logger      Logger
	metrics     *metrics
}

// NewWriter creates a Writer that serializes values of type T to dst.
// In ModeAsyncFramed the codec must implement FrameCodec.
func NewWriter[T any](dst io.Writer, codec Codec[T], opt ...Option) (*Writer[T], error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}
	return newWriter(dst, codec, opts)
}

func newWriter[T any](dst io.Writer, codec Codec[T], opts options) (*Writer[T], error) {
	if codec == nil {
		return nil, ErrInvalidCodec
	}

	w := &Writer[T]{
		dst:         dst,
		codec:       codec,
		mode:        opts.mode,
		setDeadline: writeDeadlineFunc(dst),
		logger:      opts.logger,
		metrics:     opts.metrics,
	}

	if opts.mode == ModeAsyncFramed {
		fc, ok := codec.(FrameCodec[T])
		if !ok {
			return nil, ErrInvalidMode
		}
		w.frames = fc
	}

	return w, nil
}

// Send serializes v into the write buffer. It does not write to the
// connection; call Flush for that. If encoding fails the buffer is left as it
// was and an *EncodeError is returned.
func (w *Writer[T]) Send(v T) error {
	start := len(w.buf)

	b, err := w.appendMessage(w.buf, v)
	if err != nil {
		w.buf = w.buf[:start]
		return &EncodeError{Err: err}
	}

	w.buf = b
	w.accepted = true
	w.metrics.accepted()
	return nil
}

func (w *Writer[T]) appendMessage(b []byte, v T) ([]byte, error) {
	start := len(b)

	switch w.mode {
	case ModeSync:
		return w.codec.Append(slices.Grow(b, w.codec.Size(v)), v)

	case ModeAsyncFramed:
		b, headerLen, err := w.frames.AppendFrame(append(b, 0, 0, 0, 0), v)
		if err != nil {
			return nil, err
		}
		word, err := LengthWord(headerLen, len(b)-start-lenSize-headerLen)
		if err != nil {
			return nil, err
		}
		byteOrder.PutUint32(b[start:], word)
		return b, nil

	default:
		b = slices.Grow(b, lenSize+w.codec.Size(v))
		b, err := w.codec.Append(append(b, 0, 0, 0, 0), v)
		if err != nil {
			return nil, err
		}
		n := len(b) - start - lenSize
		if uint64(n) > math.MaxUint32 {
			return nil, ErrMessageTooLarge
		}
		byteOrder.PutUint32(b[start:], uint32(n))
		return b, nil
	}
}

// Flush writes all buffered messages to the connection, then flushes the
// connection itself if it implements Flush() error.
//
// A failed write returns a *TransportError immediately. Bytes the connection
// accepted before the failure are accounted for, so a later Flush continues
// with the rest.
func (w *Writer[T]) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return transportErr("write", err)
	}

	release := bindDeadline(ctx, w.setDeadline)
	defer release()

	for w.written < len(w.buf) {
		if err := ctx.Err(); err != nil {
			return transportErr("write", err)
		}

		n, err := w.dst.Write(w.buf[w.written:])
		if n > 0 {
			w.written += n
			w.metrics.written(n)
		}
		if err != nil {
			return transportErr("write", ctxErr(ctx, err))
		}
		if n == 0 {
			return transportErr("write", io.ErrShortWrite)
		}
	}

	w.buf = w.buf[:0]
	w.written = 0

	if f, ok := w.dst.(flusher); ok {
		if err := f.Flush(); err != nil {
			return transportErr("flush", err)
		}
	}

	w.metrics.flushed()
	return nil
}

// Close flushes the buffer and shuts down the writing side of the connection:
// CloseWrite if the connection has it, Close otherwise.
func (w *Writer[T]) Close(ctx context.Context) error {
	if err := w.Flush(ctx); err != nil {
		return err
	}

	switch c := w.dst.(type) {
	case closeWriter:
		if err := c.CloseWrite(); err != nil {
			return transportErr("shutdown", err)
		}
	case io.Closer:
		if err := c.Close(); err != nil {
			return transportErr("shutdown", err)
		}
	}

	w.logger.Debug("writer closed", "mode", w.mode)
	return nil
}

// moveTo returns a Writer over dst that owns w's unflushed bytes and cursor.
// w must not be used afterwards.
func (w *Writer[T]) moveTo(dst io.Writer) *Writer[T] {
	nw := *w
	nw.dst = dst
	nw.setDeadline = writeDeadlineFunc(dst)
	*w = Writer[T]{}
	return &nw
}

// Buffered returns the number of bytes accepted but not yet written.
func (w *Writer[T]) Buffered() int {
	return len(w.buf) - w.written
}

// Mode returns the wire mode the writer produces.
func (w *Writer[T]) Mode() Mode {
	return w.mode
}

// Sink returns the underlying writer. Writing to it directly corrupts
// framing.
func (w *Writer[T]) Sink() io.Writer {
	return w.dst
}
