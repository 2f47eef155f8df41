// Package protobuf implements a framing codec for Protocol Buffers messages.
package protobuf

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// Codec encodes and decodes generated protobuf messages of type Msg, which is
// normally a pointer such as *pb.Event.
type Codec[Msg proto.Message] struct {
	marshal   proto.MarshalOptions
	unmarshal proto.UnmarshalOptions
}

// New returns a Codec for Msg.
func New[Msg proto.Message]() *Codec[Msg] {
	return &Codec[Msg]{
		marshal: proto.MarshalOptions{Deterministic: true},
	}
}

// Append marshals msg and appends it to dst.
func (c *Codec[Msg]) Append(dst []byte, msg Msg) ([]byte, error) {
	b, err := c.marshal.MarshalAppend(dst, msg)
	if err != nil {
		return nil, errors.Wrap(err, "protobuf: marshal")
	}
	return b, nil
}

// Decode unmarshals data into a new Msg. The message does not alias data.
func (c *Codec[Msg]) Decode(data []byte) (Msg, error) {
	var zero Msg
	msg, ok := zero.ProtoReflect().Type().New().Interface().(Msg)
	if !ok {
		return zero, errors.Errorf("protobuf: cannot allocate %T", zero)
	}
	if err := c.unmarshal.Unmarshal(data, msg); err != nil {
		return zero, errors.Wrap(err, "protobuf: unmarshal")
	}
	return msg, nil
}

// Size returns the exact encoded length of msg.
func (c *Codec[Msg]) Size(msg Msg) int {
	return c.marshal.Size(msg)
}
