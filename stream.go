package framing

import (
	"context"
	"io"
	"iter"
)

// Stream reads values of type R from and writes values of type W to one
// duplex connection.
//
// Like Reader and Writer, a Stream is driven by one goroutine at a time. Use
// Split to obtain halves that two goroutines can drive concurrently.
type Stream[R, W any] struct {
	conn   io.ReadWriter
	rcodec Codec[R]
	wcodec Codec[W]
	opts   options

	reader *Reader[R]
	writer *Writer[W]
	split  bool
}

// NewStream creates a Stream over conn. rc decodes incoming messages and wc
// encodes outgoing ones; both use the mode set by ModeOption.
func NewStream[R, W any](conn io.ReadWriter, rc Codec[R], wc Codec[W], opt ...Option) (*Stream[R, W], error) {
	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}

	s := &Stream[R, W]{
		conn:   conn,
		rcodec: rc,
		wcodec: wc,
	}
	if err := s.build(opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream[R, W]) build(opts options) error {
	reader, err := newReader(s.conn, s.rcodec, opts)
	if err != nil {
		return err
	}
	writer, err := newWriter(s.conn, s.wcodec, opts)
	if err != nil {
		return err
	}

	s.opts = opts
	s.reader = reader
	s.writer = writer
	return nil
}

// Next reads the next incoming message. See Reader.Next.
func (s *Stream[R, W]) Next(ctx context.Context) (R, error) {
	if s.split {
		var zero R
		return zero, ErrStreamSplit
	}
	return s.reader.Next(ctx)
}

// All returns the remaining incoming messages. See Reader.All.
func (s *Stream[R, W]) All(ctx context.Context) iter.Seq2[R, error] {
	if s.split {
		return func(yield func(R, error) bool) {
			var zero R
			yield(zero, ErrStreamSplit)
		}
	}
	return s.reader.All(ctx)
}

// Send buffers an outgoing message. See Writer.Send.
func (s *Stream[R, W]) Send(v W) error {
	if s.split {
		return ErrStreamSplit
	}
	return s.writer.Send(v)
}

// Flush writes buffered outgoing messages. See Writer.Flush.
func (s *Stream[R, W]) Flush(ctx context.Context) error {
	if s.split {
		return ErrStreamSplit
	}
	return s.writer.Flush(ctx)
}

// Close flushes and shuts down the writing side. Incoming messages can still
// be read until the peer closes.
func (s *Stream[R, W]) Close(ctx context.Context) error {
	if s.split {
		return ErrStreamSplit
	}
	return s.writer.Close(ctx)
}

// Split decomposes the stream into a Reader and a Writer that share no state.
// Bytes read but not decoded move to the Reader; bytes accepted but not
// written move to the Writer together with its cursor, so nothing is lost or
// repeated. The Stream cannot be used afterwards.
//
// The connection must implement Splitter or be a net.Conn.
func (s *Stream[R, W]) Split() (*Reader[R], *Writer[W], error) {
	if s.split {
		return nil, nil, ErrStreamSplit
	}

	rh, wh, err := splitConn(s.conn)
	if err != nil {
		return nil, nil, err
	}

	reader := s.reader.moveTo(rh)
	writer := s.writer.moveTo(wh)
	s.reader, s.writer = nil, nil
	s.split = true

	s.opts.metrics.split()
	s.opts.logger.Debug("stream split",
		"pending_read", reader.Buffered(),
		"pending_write", writer.Buffered())

	return reader, writer, nil
}

// SetMode rebuilds the stream under another wire mode. It must be called
// before anything was read or sent; afterwards it returns ErrModeLocked.
func (s *Stream[R, W]) SetMode(mode Mode) error {
	if s.split {
		return ErrStreamSplit
	}
	if !mode.valid() {
		return ErrInvalidMode
	}
	if s.reader.seen || s.writer.accepted {
		return ErrModeLocked
	}

	opts := s.opts
	opts.mode = mode
	if err := s.build(opts); err != nil {
		return err
	}

	s.opts.logger.Debug("stream mode changed", "mode", mode)
	return nil
}

// Mode returns the stream's wire mode.
func (s *Stream[R, W]) Mode() Mode {
	return s.opts.mode
}

// Conn returns the underlying connection. Reading from or writing to it
// directly corrupts framing.
func (s *Stream[R, W]) Conn() io.ReadWriter {
	return s.conn
}

// Forward sends every message read from r to w until r ends, then closes w.
// Messages are flushed whenever r has no further complete message buffered,
// so replies are never held back waiting for input.
func Forward[T any](ctx context.Context, r *Reader[T], w *Writer[T]) error {
	for {
		v, err := r.Next(ctx)
		if err == io.EOF {
			return w.Close(ctx)
		}
		if err != nil {
			return err
		}

		if err := w.Send(v); err != nil {
			return err
		}

		if !r.ready() {
			if err := w.Flush(ctx); err != nil {
				return err
			}
		}
	}
}

// ready reports whether a whole message is buffered, so that the next Next
// will not read from the connection. It is conservative in ModeSync.
func (r *Reader[T]) ready() bool {
	pending := r.w - r.r
	if r.mode == ModeSync || pending < lenSize {
		return false
	}

	word := byteOrder.Uint32(r.buf[r.r:])
	size := uint64(word)
	if r.mode == ModeAsyncFramed {
		h, b := SplitLengthWord(word)
		size = uint64(h + b)
	}
	return uint64(pending) >= lenSize+size
}
