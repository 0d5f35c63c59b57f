package serializer

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrUnregisteredType      = errors.New("unregistered type")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrCountOverflow         = errors.New("element count overflows length field")
	ErrTypeMismatch          = errors.New("writer received unexpected type")
	ErrMalformed             = errors.New("malformed encoding")
)

// UnregisteredTypeError reports a value whose type has no writer (Type set)
// or an id read from the wire with no writer (ID set).
type UnregisteredTypeError struct {
	Type reflect.Type
	ID   TypeID
}

func (e *UnregisteredTypeError) Error() string {
	if e.Type != nil {
		return fmt.Sprintf("serializer: no writer registered for type %s", e.Type)
	}
	return fmt.Sprintf("serializer: unknown type id %d", e.ID)
}

func (e *UnregisteredTypeError) Unwrap() error {
	return ErrUnregisteredType
}

func mismatch(writer string, v any) error {
	return fmt.Errorf("%w: %s cannot write %T", ErrTypeMismatch, writer, v)
}
