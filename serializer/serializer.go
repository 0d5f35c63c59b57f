// Package serializer implements the recursive, type-id-keyed binary
// serialization framework used for message payloads and log commands.
//
// Every value on the wire is a 2-byte type id followed by the encoding
// produced by the ObjectWriter registered for that id:
//
//	┌──────────┬──────────────────────────────┐
//	│ type id  │ writer-specific body ...     │
//	│ uint16   │ (nested values recurse here) │
//	└──────────┴──────────────────────────────┘
//
// Writers never hand-roll encodings for types they do not own: a list
// writer encodes its length and then hands every element back to
// Serializer.WriteObject. New payload types are supported by registering
// a writer under a new id; the dispatcher itself never changes.
package serializer

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/zheilbron/atomix/buffer"
)

// TypeID identifies a registered type on the wire.
type TypeID uint16

// Ids below FirstUserTypeID are reserved for built-in writers and the
// commands of this module. Applications register their own types at or
// above it.
const FirstUserTypeID TypeID = 128

// ObjectWriter encodes and decodes values of one registered type.
// Nested values must be written and read through s.
type ObjectWriter interface {
	Write(v any, buf *buffer.Buffer, s *Serializer) error
	Read(buf *buffer.Buffer, s *Serializer) (any, error)
}

// Serializer maps type ids to writers. It is safe for concurrent use;
// registration may race with encoding and decoding.
type Serializer struct {
	mu      sync.RWMutex
	writers map[TypeID]ObjectWriter
	ids     map[reflect.Type]TypeID
}

// New returns a serializer with the built-in writers registered.
func New() *Serializer {
	s := &Serializer{
		writers: make(map[TypeID]ObjectWriter),
		ids:     make(map[reflect.Type]TypeID),
	}
	registerBuiltins(s)
	return s
}

// Register binds id to typ and w. A type id maps to at most one writer and a
// Go type to at most one id.
func (s *Serializer) Register(id TypeID, typ reflect.Type, w ObjectWriter) error {
	if typ == nil || w == nil {
		return fmt.Errorf("serializer: register id %d: nil type or writer", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.writers[id]; ok {
		return fmt.Errorf("%w: type id %d", ErrDuplicateRegistration, id)
	}
	if prev, ok := s.ids[typ]; ok {
		return fmt.Errorf("%w: type %s already has id %d", ErrDuplicateRegistration, typ, prev)
	}
	s.writers[id] = w
	s.ids[typ] = id
	return nil
}

// MustRegister is like Register but panics on a conflicting registration.
func (s *Serializer) MustRegister(id TypeID, typ reflect.Type, w ObjectWriter) {
	if err := s.Register(id, typ, w); err != nil {
		panic(err)
	}
}

// RegisterType registers w for the static type T.
func RegisterType[T any](s *Serializer, id TypeID, w ObjectWriter) error {
	return s.Register(id, reflect.TypeOf((*T)(nil)).Elem(), w)
}

// Registered reports whether values of typ can be written.
func (s *Serializer) Registered(typ reflect.Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[typ]
	return ok
}

func (s *Serializer) lookupType(typ reflect.Type) (TypeID, ObjectWriter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[typ]
	if !ok {
		return 0, nil, false
	}
	return id, s.writers[id], true
}

func (s *Serializer) lookupID(id TypeID) (ObjectWriter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.writers[id]
	return w, ok
}

// WriteObject writes the type id of v followed by its encoding.
func (s *Serializer) WriteObject(v any, buf *buffer.Buffer) error {
	if v == nil {
		buf.WriteUint16(uint16(nullID))
		return nil
	}

	typ := reflect.TypeOf(v)
	id, w, ok := s.lookupType(typ)
	if !ok {
		return &UnregisteredTypeError{Type: typ}
	}
	buf.WriteUint16(uint16(id))
	return w.Write(v, buf, s)
}

// ReadObject reads a type id and decodes the value that follows it.
func (s *Serializer) ReadObject(buf *buffer.Buffer) (any, error) {
	raw, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}
	id := TypeID(raw)
	if id == nullID {
		return nil, nil
	}

	w, ok := s.lookupID(id)
	if !ok {
		return nil, &UnregisteredTypeError{ID: id}
	}
	return w.Read(buf, s)
}

// Marshal encodes v into a new byte slice.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	buf := buffer.New(64)
	if err := s.WriteObject(v, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes exactly one value from data.
func (s *Serializer) Unmarshal(data []byte) (any, error) {
	buf := buffer.Wrap(data)
	v, err := s.ReadObject(buf)
	if err != nil {
		return nil, err
	}
	if buf.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, buf.Len())
	}
	return v, nil
}
