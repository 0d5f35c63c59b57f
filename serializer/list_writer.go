package serializer

import (
	"fmt"
	"math"
	"sort"

	"github.com/zheilbron/atomix/buffer"
)

// MaxCount is the largest element count a collection writer can encode.
const MaxCount = math.MaxUint16

// ListWriter encodes an ordered sequence ([]any) as a uint16 element count
// followed by every element, in order, through the serializer. Elements may
// have different types.
type ListWriter struct{}

func (ListWriter) Write(v any, buf *buffer.Buffer, s *Serializer) error {
	list, ok := v.([]any)
	if !ok {
		return mismatch("ListWriter", v)
	}
	if len(list) > MaxCount {
		return fmt.Errorf("%w: list of %d elements (max %d)", ErrCountOverflow, len(list), MaxCount)
	}

	buf.WriteUint16(uint16(len(list)))
	for _, elem := range list {
		if err := s.WriteObject(elem, buf); err != nil {
			return err
		}
	}
	return nil
}

func (ListWriter) Read(buf *buffer.Buffer, s *Serializer) (any, error) {
	size, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}

	list := make([]any, 0, size)
	for i := 0; i < int(size); i++ {
		elem, err := s.ReadObject(buf)
		if err != nil {
			return nil, err
		}
		list = append(list, elem)
	}
	return list, nil
}

// MapWriter encodes a map[string]any as a uint16 entry count followed by
// key/value pairs. Keys are written in sorted order so equal maps encode to
// equal bytes, which matters for entries replicated through the log.
type MapWriter struct{}

func (MapWriter) Write(v any, buf *buffer.Buffer, s *Serializer) error {
	m, ok := v.(map[string]any)
	if !ok {
		return mismatch("MapWriter", v)
	}
	if len(m) > MaxCount {
		return fmt.Errorf("%w: map of %d entries (max %d)", ErrCountOverflow, len(m), MaxCount)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteUint16(uint16(len(keys)))
	for _, k := range keys {
		if err := WriteString(buf, k); err != nil {
			return err
		}
		if err := s.WriteObject(m[k], buf); err != nil {
			return err
		}
	}
	return nil
}

func (MapWriter) Read(buf *buffer.Buffer, s *Serializer) (any, error) {
	size, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}

	m := make(map[string]any, size)
	for i := 0; i < int(size); i++ {
		k, err := ReadString(buf)
		if err != nil {
			return nil, err
		}
		if _, dup := m[k]; dup {
			return nil, fmt.Errorf("%w: duplicate map key %q", ErrMalformed, k)
		}
		if m[k], err = s.ReadObject(buf); err != nil {
			return nil, err
		}
	}
	return m, nil
}
