package msgp_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/tinylib/msgp/msgp"

	"github.com/Zereker/framing"
	framemsgp "github.com/Zereker/framing/codec/msgp"
)

// point is encoded as a two element MessagePack array.
type point struct {
	X, Y int64
}

func (p *point) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendInt64(b, p.X)
	b = msgp.AppendInt64(b, p.Y)
	return b, nil
}

func (p *point) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if n != 2 {
		return b, msgp.ArrayError{Wanted: 2, Got: n}
	}
	if p.X, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return b, err
	}
	if p.Y, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return b, err
	}
	return b, nil
}

func (p *point) Msgsize() int {
	return msgp.ArrayHeaderSize + 2*msgp.Int64Size
}

func TestCodec_AppendDecode(t *testing.T) {
	c := framemsgp.New[point]()

	b, err := c.Append(nil, point{X: 1, Y: -300})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(b) > c.Size(point{X: 1, Y: -300}) {
		t.Errorf("encoded %d bytes, more than Size %d", len(b), c.Size(point{}))
	}

	p, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p != (point{X: 1, Y: -300}) {
		t.Errorf("Decode = %+v", p)
	}
}

func TestCodec_DecodeTrailingBytes(t *testing.T) {
	c := framemsgp.New[point]()

	b, err := c.Append(nil, point{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := c.Decode(append(b, 0xc0)); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestCodec_DecodePrefix(t *testing.T) {
	c := framemsgp.New[point]()

	b, _ := c.Append(nil, point{X: 7, Y: 8})
	full := len(b)
	b, _ = c.Append(b, point{X: 9, Y: 10})

	p, n, err := c.DecodePrefix(b)
	if err != nil {
		t.Fatalf("DecodePrefix failed: %v", err)
	}
	if n != full || p != (point{X: 7, Y: 8}) {
		t.Errorf("DecodePrefix = (%+v, %d), want ({7 8}, %d)", p, n, full)
	}

	for cut := 0; cut < full; cut++ {
		if _, _, err := c.DecodePrefix(b[:cut]); !errors.Is(err, framing.ErrIncomplete) {
			t.Errorf("cut at %d: expected ErrIncomplete, got %v", cut, err)
		}
	}

	if _, _, err := c.DecodePrefix([]byte{0x92, 0xc3, 0x01}); err == nil || errors.Is(err, framing.ErrIncomplete) {
		t.Errorf("expected type error, got %v", err)
	}
}

func TestCodec_SyncMode(t *testing.T) {
	c := framemsgp.New[point]()

	var buf bytes.Buffer
	w, err := framing.NewWriter[point](&buf, c, framing.ModeOption(framing.ModeSync))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	sent := []point{{1, 2}, {3, 4}, {1 << 40, -1 << 40}}
	for _, p := range sent {
		if err := w.Send(p); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	r, err := framing.NewReader[point](iotest.OneByteReader(&buf), c, framing.ModeOption(framing.ModeSync))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	for i, want := range sent {
		got, err := r.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if got != want {
			t.Errorf("Next %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := r.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
