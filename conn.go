package framing

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("framing: invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("framing: connection closed")
)

// ErrBufferFull is returned when the send queue is full and cannot accept more messages.
// This error indicates backpressure - the peer is not consuming messages fast enough.
// Recommended handling strategies:
//   - Drop the message (for non-critical data like metrics)
//   - Use WriteBlocking or WriteTimeout to wait for queue space
//   - Implement application-level flow control
var ErrBufferFull = errors.New("framing: send buffer full")

// errPeerClosed ends Run when the peer closes at a message boundary.
var errPeerClosed = errors.New("framing: peer closed")

// Conn drives a Stream over a network connection with two goroutines: one
// splits off the reading half and hands every message to a callback, the
// other drains a send queue into the writing half. Messages queued while a
// flush is in progress are coalesced into the next flush.
type Conn[R, W any] struct {
	rawConn   net.Conn
	stream    *Stream[R, W]
	onMessage func(R) error
	logger    Logger

	opts options

	sendMsg chan W
	closed  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConn creates a connection wrapper around conn. rc decodes incoming
// messages, which are passed to onMessage; wc encodes messages given to Write.
// Returns an error if a codec or onMessage is missing.
func NewConn[R, W any](conn net.Conn, rc Codec[R], wc Codec[W], onMessage func(R) error, opt ...Option) (*Conn[R, W], error) {
	if onMessage == nil {
		return nil, ErrInvalidOnMessage
	}

	opts, err := newOptions(opt...)
	if err != nil {
		return nil, err
	}

	stream := &Stream[R, W]{conn: conn, rcodec: rc, wcodec: wc}
	if err := stream.build(opts); err != nil {
		return nil, err
	}

	return &Conn[R, W]{
		rawConn:   conn,
		stream:    stream,
		onMessage: onMessage,
		logger:    opts.logger,
		opts:      opts,
		sendMsg:   make(chan W, opts.bufferSize),
	}, nil
}

// Run splits the stream and starts the read and write loops.
// It blocks until the peer closes, an error occurs or the context is
// canceled. A peer closing at a message boundary makes Run return nil.
// The connection is closed when Run returns.
func (c *Conn[R, W]) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"mode", c.opts.mode,
		"buffer_size", c.opts.bufferSize,
		"max_message_size", c.opts.maxMessageSize,
		"idle_timeout", c.opts.idleTimeout)

	reader, writer, err := c.stream.Split()
	if err != nil {
		c.closeConn()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child, reader)
	})

	group.Go(func() error {
		return c.writeLoop(child, writer)
	})

	err = group.Wait()
	c.closeConn()

	if errors.Is(err, errPeerClosed) {
		err = nil
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It cancels Run and closes the underlying connection.
// Safe to call multiple times.
func (c *Conn[R, W]) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn[R, W]) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a message without blocking (fire-and-forget).
//
// Returns:
//   - nil: message was queued (not yet sent)
//   - ErrBufferFull: send queue is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//
// Encoding happens in the write loop; an encode error is passed to the
// OnErrorOption callback.
func (c *Conn[R, W]) Write(message W) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- message:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a message, blocking until there is room in the send
// queue or the context is canceled.
//
// Returns:
//   - nil: message was queued
//   - context.Canceled or context.DeadlineExceeded: context was canceled
//   - ErrConnectionClosed: connection is closed
func (c *Conn[R, W]) WriteBlocking(ctx context.Context, message W) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a message, waiting at most timeout for room in the send
// queue. It returns ErrBufferFull when the timeout expires.
func (c *Conn[R, W]) WriteTimeout(message W, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- message:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// Addr returns the remote address of the connection.
func (c *Conn[R, W]) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop decodes messages and passes them to the message handler.
// Each message must arrive within the idle timeout. Decode errors and
// timeouts go through onError; every other error ends the loop.
func (c *Conn[R, W]) readLoop(ctx context.Context, reader *Reader[R]) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, c.opts.idleTimeout)
		message, err := reader.Next(readCtx)
		cancel()

		if err == io.EOF {
			return errPeerClosed
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			if recoverable(err) && c.opts.onError(err) == Continue {
				continue
			}
			return err
		}

		if err = c.onMessage(message); err != nil {
			return err
		}
	}
}

// writeLoop drains the send queue into the writer. Everything queued by the
// time a message is picked up goes out in the same flush.
func (c *Conn[R, W]) writeLoop(ctx context.Context, writer *Writer[W]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-c.sendMsg:
			if err := c.send(writer, message); err != nil {
				return err
			}

			if err := c.drain(writer); err != nil {
				return err
			}

			if err := c.flush(ctx, writer); err != nil {
				return err
			}
		}
	}
}

// drain sends every message already waiting in the queue.
func (c *Conn[R, W]) drain(writer *Writer[W]) error {
	for {
		select {
		case message := <-c.sendMsg:
			if err := c.send(writer, message); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// send buffers one message. If encoding fails and onError returns Continue,
// the message is dropped and writing continues.
func (c *Conn[R, W]) send(writer *Writer[W], message W) error {
	err := writer.Send(message)
	if err != nil {
		c.logger.Debug("encode error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}
	return nil
}

func (c *Conn[R, W]) flush(ctx context.Context, writer *Writer[W]) error {
	flushCtx, cancel := context.WithTimeout(ctx, c.opts.idleTimeout)
	defer cancel()

	if err := writer.Flush(flushCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		return err
	}
	return nil
}

// closeConn marks the connection as closed and closes the underlying connection.
func (c *Conn[R, W]) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}

// recoverable reports whether reading can go on after err: the message was
// malformed, or the read timed out with its bytes still buffered.
func recoverable(err error) bool {
	if isDecodeError(err) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te) && (te.Timeout() || errors.Is(te.Err, context.DeadlineExceeded))
}
