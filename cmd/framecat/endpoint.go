package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Zereker/framing"
	"github.com/Zereker/framing/codec/json"
	"github.com/Zereker/framing/codec/protobuf"
)

// flushEvery bounds how many lines send buffers before writing them out.
const flushEvery = 64

// endpoint runs the echo server and client for one message type.
type endpoint interface {
	serve(ctx context.Context, server *framing.Server, idle time.Duration, opts []framing.Option, logger framing.Logger) error
	send(ctx context.Context, conn net.Conn, opts []framing.Option, lines []string, out io.Writer) error
}

// payload maps the lines framecat sends to messages of type T and back.
type payload[T any] struct {
	codec  framing.Codec[T]
	wrap   func(seq uint32, line string) T
	unwrap func(T) string
}

type seqFrame = framing.Frame[*wrapperspb.UInt32Value, *wrapperspb.StringValue]

func newEndpoint(cfg config) endpoint {
	switch {
	case cfg.Mode == framing.ModeAsyncFramed:
		return payload[seqFrame]{
			codec: framing.NewEnvelope[*wrapperspb.UInt32Value, *wrapperspb.StringValue](
				protobuf.New[*wrapperspb.UInt32Value](),
				protobuf.New[*wrapperspb.StringValue](),
				nil,
			),
			wrap: func(seq uint32, line string) seqFrame {
				header := wrapperspb.UInt32(seq)
				return seqFrame{
					Header: &header,
					Body:   framing.ValueBody(wrapperspb.String(line)),
				}
			},
			unwrap: func(f seqFrame) string {
				v, _ := f.Body.Value()
				if f.Header == nil {
					return v.GetValue()
				}
				return fmt.Sprintf("%d\t%s", (*f.Header).GetValue(), v.GetValue())
			},
		}

	case cfg.Codec == codecJSON:
		return payload[string]{
			codec:  json.New[string](),
			wrap:   func(_ uint32, line string) string { return line },
			unwrap: func(s string) string { return s },
		}

	default:
		return payload[*wrapperspb.StringValue]{
			codec:  protobuf.New[*wrapperspb.StringValue](),
			wrap:   func(_ uint32, line string) *wrapperspb.StringValue { return wrapperspb.String(line) },
			unwrap: func(v *wrapperspb.StringValue) string { return v.GetValue() },
		}
	}
}

// serve echoes every message back on the connection it came from.
// Connections that deliver nothing for idle are closed; zero disables this.
func (p payload[T]) serve(ctx context.Context, server *framing.Server, idle time.Duration, opts []framing.Option, logger framing.Logger) error {
	handler := framing.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		defer conn.Close()

		var rw io.ReadWriter = conn
		if idle > 0 {
			ic := newIdleConn(conn, idle)
			defer ic.stop()
			rw = ic
		}

		if err := p.echo(ctx, rw, opts); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("echo ended", "remote_addr", conn.RemoteAddr().String(), "error", err)
			return
		}
		logger.Debug("echo done", "remote_addr", conn.RemoteAddr().String())
	})

	err := server.Serve(ctx, handler)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p payload[T]) echo(ctx context.Context, conn io.ReadWriter, opts []framing.Option) error {
	stream, err := framing.NewStream[T, T](conn, p.codec, p.codec, opts...)
	if err != nil {
		return err
	}

	r, w, err := stream.Split()
	if err != nil {
		return err
	}

	return framing.Forward(ctx, r, w)
}

// send writes the lines from one goroutine and prints replies from another
// until the server closes. The writing side is shut down after the last line.
func (p payload[T]) send(ctx context.Context, conn net.Conn, opts []framing.Option, lines []string, out io.Writer) error {
	stream, err := framing.NewStream[T, T](conn, p.codec, p.codec, opts...)
	if err != nil {
		return err
	}

	r, w, err := stream.Split()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		for i, line := range lines {
			if err := w.Send(p.wrap(uint32(i), line)); err != nil {
				return errors.Wrapf(err, "line %d", i+1)
			}
			if (i+1)%flushEvery == 0 {
				if err := w.Flush(ctx); err != nil {
					return err
				}
			}
		}
		return w.Close(ctx)
	})

	group.Go(func() error {
		for v, err := range r.All(ctx) {
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(out, p.unwrap(v)); err != nil {
				return err
			}
		}
		return nil
	})

	return group.Wait()
}

// idleConn closes its connection when no Read completes within timeout. It
// splits into itself for reading and the bare connection for writing, so the
// write half keeps CloseWrite.
type idleConn struct {
	net.Conn
	timeout time.Duration
	timer   *time.Timer
}

func newIdleConn(conn net.Conn, timeout time.Duration) *idleConn {
	return &idleConn{
		Conn:    conn,
		timeout: timeout,
		timer:   time.AfterFunc(timeout, func() { conn.Close() }),
	}
}

func (c *idleConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.timer.Reset(c.timeout)
	}
	return n, err
}

func (c *idleConn) Split() (io.Reader, io.Writer) {
	return c, c.Conn
}

func (c *idleConn) stop() {
	c.timer.Stop()
}
