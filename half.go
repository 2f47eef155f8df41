package framing

import (
	"io"
	"net"
	"time"
)

// Splitter is implemented by connections that can be decomposed into
// independent read and write halves. The halves must be usable from two
// goroutines at once.
type Splitter interface {
	Split() (io.Reader, io.Writer)
}

// ReadHalf is the reading side of a split net.Conn.
type ReadHalf struct {
	conn net.Conn
}

// WriteHalf is the writing side of a split net.Conn.
type WriteHalf struct {
	conn net.Conn
}

// SplitConn splits c into a read half and a write half. A net.Conn already
// allows one concurrent reader and writer; the halves only restrict each side
// to its own operations and deadlines.
func SplitConn(c net.Conn) (*ReadHalf, *WriteHalf) {
	return &ReadHalf{conn: c}, &WriteHalf{conn: c}
}

func (h *ReadHalf) Read(p []byte) (int, error) { return h.conn.Read(p) }

// SetReadDeadline sets the read deadline of the underlying connection.
func (h *ReadHalf) SetReadDeadline(t time.Time) error { return h.conn.SetReadDeadline(t) }

// RemoteAddr returns the remote network address.
func (h *ReadHalf) RemoteAddr() net.Addr { return h.conn.RemoteAddr() }

func (h *WriteHalf) Write(p []byte) (int, error) { return h.conn.Write(p) }

// SetWriteDeadline sets the write deadline of the underlying connection.
func (h *WriteHalf) SetWriteDeadline(t time.Time) error { return h.conn.SetWriteDeadline(t) }

// RemoteAddr returns the remote network address.
func (h *WriteHalf) RemoteAddr() net.Addr { return h.conn.RemoteAddr() }

// CloseWrite shuts down the writing side. Connections without half-close
// support are closed entirely.
func (h *WriteHalf) CloseWrite() error {
	if cw, ok := h.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return h.conn.Close()
}

// splitConn decomposes conn, preferring its own Split method.
func splitConn(conn io.ReadWriter) (io.Reader, io.Writer, error) {
	switch c := conn.(type) {
	case Splitter:
		r, w := c.Split()
		return r, w, nil
	case net.Conn:
		r, w := SplitConn(c)
		return r, w, nil
	default:
		return nil, nil, ErrNotSplittable
	}
}
