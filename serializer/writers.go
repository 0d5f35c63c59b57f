package serializer

import (
	"fmt"
	"math"
	"reflect"

	"github.com/zheilbron/atomix/buffer"
)

// Built-in type ids. The numbering is part of the wire format.
const (
	nullID    TypeID = 0
	BoolID    TypeID = 1
	Int8ID    TypeID = 2
	Int16ID   TypeID = 3
	Int32ID   TypeID = 4
	Int64ID   TypeID = 5
	IntID     TypeID = 6
	Uint8ID   TypeID = 7
	Uint16ID  TypeID = 8
	Uint32ID  TypeID = 9
	Uint64ID  TypeID = 10
	UintID    TypeID = 11
	Float32ID TypeID = 12
	Float64ID TypeID = 13
	StringID  TypeID = 14
	BytesID   TypeID = 15
	ListID    TypeID = 16
	MapID     TypeID = 17
)

// primitiveWriter adapts a pair of leaf functions to ObjectWriter.
// Primitives never recurse, so the serializer argument is ignored.
type primitiveWriter struct {
	write func(v any, buf *buffer.Buffer) error
	read  func(buf *buffer.Buffer) (any, error)
}

func (w *primitiveWriter) Write(v any, buf *buffer.Buffer, _ *Serializer) error {
	return w.write(v, buf)
}

func (w *primitiveWriter) Read(buf *buffer.Buffer, _ *Serializer) (any, error) {
	return w.read(buf)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func registerBuiltins(s *Serializer) {
	s.MustRegister(BoolID, typeOf[bool](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error {
			if v.(bool) {
				buf.WriteUint8(1)
			} else {
				buf.WriteUint8(0)
			}
			return nil
		},
		read: func(buf *buffer.Buffer) (any, error) {
			b, err := buf.ReadUint8()
			if err != nil {
				return nil, err
			}
			switch b {
			case 0:
				return false, nil
			case 1:
				return true, nil
			}
			return nil, fmt.Errorf("%w: bool byte %d", ErrMalformed, b)
		},
	})

	s.MustRegister(Int8ID, typeOf[int8](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint8(uint8(v.(int8))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint8()
			return int8(u), err
		},
	})
	s.MustRegister(Int16ID, typeOf[int16](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint16(uint16(v.(int16))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint16()
			return int16(u), err
		},
	})
	s.MustRegister(Int32ID, typeOf[int32](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint32(uint32(v.(int32))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint32()
			return int32(u), err
		},
	})
	s.MustRegister(Int64ID, typeOf[int64](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint64(uint64(v.(int64))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint64()
			return int64(u), err
		},
	})
	// int and uint always travel as 64 bits so both ends agree regardless of platform.
	s.MustRegister(IntID, typeOf[int](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint64(uint64(v.(int))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint64()
			return int(u), err
		},
	})

	s.MustRegister(Uint8ID, typeOf[uint8](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint8(v.(uint8)); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			return buf.ReadUint8()
		},
	})
	s.MustRegister(Uint16ID, typeOf[uint16](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint16(v.(uint16)); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			return buf.ReadUint16()
		},
	})
	s.MustRegister(Uint32ID, typeOf[uint32](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint32(v.(uint32)); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			return buf.ReadUint32()
		},
	})
	s.MustRegister(Uint64ID, typeOf[uint64](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint64(v.(uint64)); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			return buf.ReadUint64()
		},
	})
	s.MustRegister(UintID, typeOf[uint](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint64(uint64(v.(uint))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint64()
			return uint(u), err
		},
	})

	s.MustRegister(Float32ID, typeOf[float32](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint32(math.Float32bits(v.(float32))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint32()
			return math.Float32frombits(u), err
		},
	})
	s.MustRegister(Float64ID, typeOf[float64](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error { buf.WriteUint64(math.Float64bits(v.(float64))); return nil },
		read: func(buf *buffer.Buffer) (any, error) {
			u, err := buf.ReadUint64()
			return math.Float64frombits(u), err
		},
	})

	s.MustRegister(StringID, typeOf[string](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error {
			return WriteString(buf, v.(string))
		},
		read: func(buf *buffer.Buffer) (any, error) {
			return ReadString(buf)
		},
	})
	s.MustRegister(BytesID, typeOf[[]byte](), &primitiveWriter{
		write: func(v any, buf *buffer.Buffer) error {
			return WriteBlob(buf, v.([]byte))
		},
		read: func(buf *buffer.Buffer) (any, error) {
			return ReadBlob(buf)
		},
	})

	s.MustRegister(ListID, typeOf[[]any](), ListWriter{})
	s.MustRegister(MapID, typeOf[map[string]any](), MapWriter{})
}

// WriteBlob writes p prefixed with its uint32 length.
func WriteBlob(buf *buffer.Buffer, p []byte) error {
	if uint64(len(p)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrCountOverflow, len(p))
	}
	buf.WriteUint32(uint32(len(p)))
	buf.WriteBytes(p)
	return nil
}

// ReadBlob reads a uint32 length-prefixed byte slice.
func ReadBlob(buf *buffer.Buffer) ([]byte, error) {
	n, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	return buf.ReadBytes(int(n))
}

// WriteString writes v prefixed with its uint32 length.
func WriteString(buf *buffer.Buffer, v string) error {
	return WriteBlob(buf, []byte(v))
}

// ReadString reads a uint32 length-prefixed string.
func ReadString(buf *buffer.Buffer) (string, error) {
	p, err := ReadBlob(buf)
	if err != nil {
		return "", err
	}
	return string(p), nil
}
