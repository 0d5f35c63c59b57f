// Package codec turns Message and Ack commands into log-entry bodies and back.
package codec

import (
	"errors"
	"fmt"

	"github.com/zheilbron/atomix/serializer"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

var (
	ErrUnsupportedCommand = errors.New("codec: unsupported command")
	ErrUnknownCodec       = errors.New("codec: unknown codec type")
)

// Codec encodes the commands carried by the replicated log. Decode returns
// a *message.Message or a *message.Ack.
type Codec interface {
	Encode(cmd any) ([]byte, error)
	Decode(data []byte) (any, error)
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the codec for codecType. s must have the message
// writers registered; payloads are encoded with it under both codecs.
func GetCodec(codecType CodecType, s *serializer.Serializer) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{s: s}, nil
	case CodecTypeBinary:
		return &BinaryCodec{s: s}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, codecType)
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return fmt.Sprintf("CodecType(%d)", byte(t))
}

// ParseCodecType maps a configuration name to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "json":
		return CodecTypeJSON, nil
	case "binary", "":
		return CodecTypeBinary, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}
