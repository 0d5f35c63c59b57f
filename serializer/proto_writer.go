package serializer

import (
	"reflect"

	"google.golang.org/protobuf/proto"

	"github.com/zheilbron/atomix/buffer"
)

// ProtoWriter encodes one concrete protobuf message type as a
// length-prefixed protobuf payload.
type ProtoWriter struct {
	New func() proto.Message
}

func (w ProtoWriter) Write(v any, buf *buffer.Buffer, _ *Serializer) error {
	m, ok := v.(proto.Message)
	if !ok {
		return mismatch("ProtoWriter", v)
	}
	data, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	return WriteBlob(buf, data)
}

func (w ProtoWriter) Read(buf *buffer.Buffer, _ *Serializer) (any, error) {
	data, err := ReadBlob(buf)
	if err != nil {
		return nil, err
	}
	m := w.New()
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterProto registers the concrete type of template under id.
// Decoded values are fresh messages of the same type.
func RegisterProto(s *Serializer, id TypeID, template proto.Message) error {
	return s.Register(id, reflect.TypeOf(template), ProtoWriter{
		New: func() proto.Message {
			return template.ProtoReflect().New().Interface()
		},
	})
}
