package codec

import (
	"fmt"

	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/serializer"
)

// BinaryCodec writes commands with the type-id serializer. The leading type
// id tells Decode whether the body is a Message or an Ack.
type BinaryCodec struct {
	s *serializer.Serializer
}

func NewBinaryCodec(s *serializer.Serializer) *BinaryCodec {
	return &BinaryCodec{s: s}
}

func (c *BinaryCodec) Encode(cmd any) ([]byte, error) {
	switch cmd.(type) {
	case *message.Message, *message.Ack:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCommand, cmd)
	}
	return c.s.Marshal(cmd)
}

func (c *BinaryCodec) Decode(data []byte) (any, error) {
	v, err := c.s.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case *message.Message, *message.Ack:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedCommand, v)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
