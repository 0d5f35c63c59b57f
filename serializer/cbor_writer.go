package serializer

import (
	cbor "github.com/fxamacker/cbor/v2"

	"github.com/zheilbron/atomix/buffer"
)

// CBORWriter encodes an application type T as a length-prefixed CBOR
// document. It suits plain Go structs that do not warrant a hand-written
// writer. T must still be registered explicitly under its own id.
type CBORWriter[T any] struct{}

func (CBORWriter[T]) Write(v any, buf *buffer.Buffer, _ *Serializer) error {
	t, ok := v.(T)
	if !ok {
		return mismatch("CBORWriter", v)
	}
	data, err := cbor.Marshal(t)
	if err != nil {
		return err
	}
	return WriteBlob(buf, data)
}

func (CBORWriter[T]) Read(buf *buffer.Buffer, _ *Serializer) (any, error) {
	data, err := ReadBlob(buf)
	if err != nil {
		return nil, err
	}
	var t T
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// RegisterCBOR registers T under id with a CBORWriter.
func RegisterCBOR[T any](s *Serializer, id TypeID) error {
	return RegisterType[T](s, id, CBORWriter[T]{})
}
