// Package msgp implements a framing codec for MessagePack types generated by
// github.com/tinylib/msgp.
//
// MessagePack values are self-delimiting, so this codec also works in
// framing.ModeSync.
package msgp

import (
	"github.com/Zereker/framing"
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

type Codec[Item any, ItemPtr msgpable[Item]] struct{}

func New[Item any, ItemPtr msgpable[Item]]() *Codec[Item, ItemPtr] {
	return &Codec[Item, ItemPtr]{}
}

func (c *Codec[Item, ItemPtr]) Append(dst []byte, item Item) ([]byte, error) {
	b, err := ItemPtr(&item).MarshalMsg(dst)
	if err != nil {
		return nil, errors.Wrap(err, "msgp: marshal")
	}
	return b, nil
}

func (c *Codec[Item, ItemPtr]) Decode(data []byte) (Item, error) {
	item, n, err := c.decode(data)
	if err != nil {
		return item, err
	}
	if n != len(data) {
		return item, errors.Errorf("msgp: %d trailing bytes", len(data)-n)
	}
	return item, nil
}

// DecodePrefix decodes the first value in data.
func (c *Codec[Item, ItemPtr]) DecodePrefix(data []byte) (Item, int, error) {
	item, n, err := c.decode(data)
	if isShort(err) {
		return item, 0, framing.ErrIncomplete
	}
	return item, n, err
}

func (c *Codec[Item, ItemPtr]) decode(data []byte) (Item, int, error) {
	var item Item
	rest, err := ItemPtr(&item).UnmarshalMsg(data)
	if err != nil {
		if isShort(err) {
			return item, 0, err
		}
		return item, 0, errors.Wrap(err, "msgp: unmarshal")
	}
	return item, len(data) - len(rest), nil
}

// Size returns msgp's upper bound for the encoded length of item.
func (c *Codec[Item, ItemPtr]) Size(item Item) int {
	return ItemPtr(&item).Msgsize()
}

func isShort(err error) bool {
	return err != nil && (errors.Is(err, msgp.ErrShortBytes) || msgp.Cause(err) == msgp.ErrShortBytes)
}

type msgpable[Item any] interface {
	*Item
	msgp.Marshaler
	msgp.Unmarshaler
	msgp.Sizer
}
