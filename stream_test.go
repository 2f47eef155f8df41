package framing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// memConn is an in-memory duplex connection that can be split.
type memConn struct {
	in  *bytes.Reader
	out flakyWriter
}

func newMemConn(input []byte) *memConn {
	return &memConn{in: bytes.NewReader(input), out: flakyWriter{failed: true}}
}

func (c *memConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *memConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *memConn) Split() (io.Reader, io.Writer) {
	return c.in, &c.out
}

// plainConn cannot be split.
type plainConn struct {
	io.Reader
	io.Writer
}

func TestStream_SplitMovesBufferedBytes(t *testing.T) {
	conn := newMemConn(encode(t, "one", "two", "three"))

	s, err := NewStream[[]byte, []byte](conn, rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}

	ctx := context.Background()
	if v, err := s.Next(ctx); err != nil || string(v) != "one" {
		t.Fatalf("Next = (%q, %v)", v, err)
	}
	for _, v := range []string{"a", "b"} {
		if err := s.Send([]byte(v)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	pendingRead := s.reader.Buffered()
	if pendingRead == 0 {
		t.Fatal("expected undecoded bytes before split")
	}

	r, w, err := s.Split()
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if r.Buffered() != pendingRead {
		t.Errorf("reader half has %d buffered bytes, want %d", r.Buffered(), pendingRead)
	}
	if w.Buffered() != 2*lenSize+2 {
		t.Errorf("writer half has %d buffered bytes, want %d", w.Buffered(), 2*lenSize+2)
	}

	got := readAll(t, r)
	if len(got) != 2 || got[0] != "two" || got[1] != "three" {
		t.Errorf("reader half yielded %q", got)
	}

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if !bytes.Equal(conn.out.out.Bytes(), encode(t, "a", "b")) {
		t.Errorf("writer half wrote %x", conn.out.out.Bytes())
	}
}

func TestStream_SplitKeepsWriteCursor(t *testing.T) {
	conn := newMemConn(nil)
	conn.out = flakyWriter{failAfter: 5}

	s, err := NewStream[[]byte, []byte](conn, rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if err := s.Send([]byte("partial")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := s.Flush(context.Background()); !errors.Is(err, errFlaky) {
		t.Fatalf("expected flaky write error, got %v", err)
	}

	_, w, err := s.Split()
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if !bytes.Equal(conn.out.out.Bytes(), encode(t, "partial")) {
		t.Errorf("wire bytes = %x, want each byte exactly once", conn.out.out.Bytes())
	}
}

func TestStream_UnusableAfterSplit(t *testing.T) {
	s, err := NewStream[[]byte, []byte](newMemConn(nil), rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if _, _, err := s.Split(); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	ctx := context.Background()
	if _, err := s.Next(ctx); err != ErrStreamSplit {
		t.Errorf("Next: expected ErrStreamSplit, got %v", err)
	}
	if err := s.Send([]byte("x")); err != ErrStreamSplit {
		t.Errorf("Send: expected ErrStreamSplit, got %v", err)
	}
	if err := s.Flush(ctx); err != ErrStreamSplit {
		t.Errorf("Flush: expected ErrStreamSplit, got %v", err)
	}
	if err := s.Close(ctx); err != ErrStreamSplit {
		t.Errorf("Close: expected ErrStreamSplit, got %v", err)
	}
	if err := s.SetMode(ModeSync); err != ErrStreamSplit {
		t.Errorf("SetMode: expected ErrStreamSplit, got %v", err)
	}
	if _, _, err := s.Split(); err != ErrStreamSplit {
		t.Errorf("Split: expected ErrStreamSplit, got %v", err)
	}
	for _, err := range s.All(ctx) {
		if err != ErrStreamSplit {
			t.Errorf("All: expected ErrStreamSplit, got %v", err)
		}
	}
}

func TestStream_SplitNotSplittable(t *testing.T) {
	conn := plainConn{Reader: bytes.NewReader(nil), Writer: io.Discard}

	s, err := NewStream[[]byte, []byte](conn, rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if _, _, err := s.Split(); err != ErrNotSplittable {
		t.Errorf("expected ErrNotSplittable, got %v", err)
	}

	// A failed split leaves the stream usable.
	if err := s.Send([]byte("still")); err != nil {
		t.Errorf("Send after failed split: %v", err)
	}
}

func TestStream_SetMode(t *testing.T) {
	var out bytes.Buffer
	conn := plainConn{Reader: bytes.NewReader([]byte("line\n")), Writer: &out}

	s, err := NewStream[string, string](conn, lineCodec{}, lineCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if s.Mode() != ModeAsync {
		t.Errorf("default Mode() = %v, want async", s.Mode())
	}

	if err := s.SetMode(Mode(42)); err != ErrInvalidMode {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	if err := s.SetMode(ModeSync); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if s.Mode() != ModeSync {
		t.Errorf("Mode() = %v, want sync", s.Mode())
	}

	v, err := s.Next(context.Background())
	if err != nil || v != "line" {
		t.Fatalf("Next = (%q, %v)", v, err)
	}

	if err := s.SetMode(ModeAsync); err != ErrModeLocked {
		t.Errorf("expected ErrModeLocked after reading, got %v", err)
	}
}

func TestStream_SetModeLockedAfterSend(t *testing.T) {
	s, err := NewStream[[]byte, []byte](newMemConn(nil), rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if err := s.Send([]byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := s.SetMode(ModeSync); err != ErrModeLocked {
		t.Errorf("expected ErrModeLocked, got %v", err)
	}
}

func TestStream_SetModeChecksCodec(t *testing.T) {
	s, err := NewStream[[]byte, []byte](newMemConn(nil), rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if err := s.SetMode(ModeSync); err != ErrInvalidMode {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	if s.Mode() != ModeAsync {
		t.Errorf("failed SetMode changed the mode to %v", s.Mode())
	}
}

func TestStream_TCPSplitHalves(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	server, err := NewStream[[]byte, []byte](serverConn, rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	r, w, err := server.Split()
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if _, ok := r.Source().(*ReadHalf); !ok {
		t.Errorf("reader source is %T, want *ReadHalf", r.Source())
	}
	if _, ok := w.Sink().(*WriteHalf); !ok {
		t.Errorf("writer sink is %T, want *WriteHalf", w.Sink())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Forward(ctx, r, w)
	}()

	client, err := NewStream[[]byte, []byte](clientConn, rawCodec{}, rawCodec{})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	sent := []string{"ping", "", "pong"}
	for _, v := range sent {
		if err := client.Send([]byte(v)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := client.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var got []string
	for v, err := range client.All(ctx) {
		if err != nil {
			t.Fatalf("client read failed: %v", err)
		}
		got = append(got, string(v))
	}
	if len(got) != len(sent) {
		t.Fatalf("echoed %q, want %q", got, sent)
	}
	for i := range sent {
		if got[i] != sent[i] {
			t.Errorf("echo %d = %q, want %q", i, got[i], sent[i])
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Forward failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Forward")
	}
}

func TestReader_Ready(t *testing.T) {
	data := encode(t, "abc", "de")

	r, err := NewReader[[]byte](bytes.NewReader(data), rawCodec{})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.ready() {
		t.Error("ready() before any read")
	}

	if _, err := r.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !r.ready() {
		t.Error("second message is buffered but ready() is false")
	}

	if _, err := r.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if r.ready() {
		t.Error("ready() with nothing buffered")
	}
}
