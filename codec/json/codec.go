// Package json implements a framing codec on top of encoding/json.
//
// Every value is written as one line, terminated by '\n' like json.Encoder
// output, so the codec also works in framing.ModeSync.
package json

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/Zereker/framing"
	"github.com/pkg/errors"
)

type Codec[Item any] struct {
	buf *bytes.Buffer
}

func New[Item any]() *Codec[Item] {
	return &Codec[Item]{
		buf: new(bytes.Buffer),
	}
}

// Append encodes item followed by a newline.
func (c *Codec[Item]) Append(dst []byte, item Item) ([]byte, error) {
	c.buf.Reset()
	enc := json.NewEncoder(c.buf)

	if err := enc.Encode(item); err != nil {
		return nil, errors.Wrap(err, "json: encode")
	}

	return append(dst, c.buf.Bytes()...), nil
}

func (c *Codec[Item]) Decode(data []byte) (Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return item, errors.Wrap(err, "json: decode")
	}
	return item, nil
}

// DecodePrefix decodes the first value in data together with the whitespace
// that follows it. A value running to the end of data is only complete once
// its terminating newline has arrived; a number such as 12 may otherwise be
// the front of 123.
func (c *Codec[Item]) DecodePrefix(data []byte) (Item, int, error) {
	var item Item
	dec := json.NewDecoder(bytes.NewReader(data))

	err := dec.Decode(&item)
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		return item, 0, framing.ErrIncomplete
	}
	if err != nil {
		return item, 0, errors.Wrap(err, "json: decode")
	}

	n := int(dec.InputOffset())
	terminated := false
	for n < len(data) && isSpace(data[n]) {
		if data[n] == '\n' {
			terminated = true
		}
		n++
	}

	// Another value follows directly, so this one has ended.
	if n < len(data) {
		return item, n, nil
	}
	if !terminated {
		return item, 0, framing.ErrIncomplete
	}
	return item, n, nil
}

// Size returns 0: the length is only known after encoding, and the transport
// treats Size as a capacity hint.
func (c *Codec[Item]) Size(Item) int {
	return 0
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
