package message

import (
	"fmt"
	"math"

	"github.com/zheilbron/atomix/buffer"
	"github.com/zheilbron/atomix/serializer"
)

// Wire ids of the commands, inside the serializer's reserved range.
const (
	MessageTypeID serializer.TypeID = 64
	AckTypeID     serializer.TypeID = 65
)

// Register adds the Message and Ack writers to s.
func Register(s *serializer.Serializer) error {
	if err := serializer.RegisterType[*Message](s, MessageTypeID, messageWriter{}); err != nil {
		return err
	}
	return serializer.RegisterType[*Ack](s, AckTypeID, ackWriter{})
}

// NewSerializer returns a serializer with the built-ins and both commands registered.
func NewSerializer() *serializer.Serializer {
	s := serializer.New()
	if err := Register(s); err != nil {
		panic(err)
	}
	return s
}

func writeProducerID(buf *buffer.Buffer, id int) error {
	if id < 0 || uint64(id) > math.MaxUint32 {
		return fmt.Errorf("message: producer id %d out of range", id)
	}
	buf.WriteUint32(uint32(id))
	return nil
}

type messageWriter struct{}

func (messageWriter) Write(v any, buf *buffer.Buffer, s *serializer.Serializer) error {
	m, ok := v.(*Message)
	if !ok || m == nil {
		return fmt.Errorf("%w: messageWriter cannot write %T", serializer.ErrTypeMismatch, v)
	}
	for _, str := range []string{m.Member, m.Source, m.Producer} {
		if err := serializer.WriteString(buf, str); err != nil {
			return err
		}
	}
	if err := writeProducerID(buf, m.ProducerID); err != nil {
		return err
	}
	buf.WriteUint64(m.Generation)
	buf.WriteUint64(m.ID)
	buf.WriteUint8(uint8(m.Dispatch))
	buf.WriteUint8(uint8(m.Delivery))
	return s.WriteObject(m.Payload, buf)
}

func (messageWriter) Read(buf *buffer.Buffer, s *serializer.Serializer) (any, error) {
	var (
		m   Message
		err error
	)
	if m.Member, err = serializer.ReadString(buf); err != nil {
		return nil, err
	}
	if m.Source, err = serializer.ReadString(buf); err != nil {
		return nil, err
	}
	if m.Producer, err = serializer.ReadString(buf); err != nil {
		return nil, err
	}
	pid, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	m.ProducerID = int(pid)
	if m.Generation, err = buf.ReadUint64(); err != nil {
		return nil, err
	}
	if m.ID, err = buf.ReadUint64(); err != nil {
		return nil, err
	}
	dispatch, err := buf.ReadUint8()
	if err != nil {
		return nil, err
	}
	delivery, err := buf.ReadUint8()
	if err != nil {
		return nil, err
	}
	m.Dispatch, m.Delivery = DispatchPolicy(dispatch), DeliveryPolicy(delivery)
	if !m.Dispatch.Valid() || !m.Delivery.Valid() {
		return nil, fmt.Errorf("%w: %w: dispatch %d delivery %d", serializer.ErrMalformed, ErrInvalidPolicy, dispatch, delivery)
	}
	if m.Payload, err = s.ReadObject(buf); err != nil {
		return nil, err
	}
	return &m, nil
}

type ackWriter struct{}

func (ackWriter) Write(v any, buf *buffer.Buffer, s *serializer.Serializer) error {
	a, ok := v.(*Ack)
	if !ok || a == nil {
		return fmt.Errorf("%w: ackWriter cannot write %T", serializer.ErrTypeMismatch, v)
	}
	if err := serializer.WriteString(buf, a.Member); err != nil {
		return err
	}
	if err := writeProducerID(buf, a.ProducerID); err != nil {
		return err
	}
	buf.WriteUint64(a.Generation)
	buf.WriteUint64(a.MessageID)
	return s.WriteObject(a.Result, buf)
}

func (ackWriter) Read(buf *buffer.Buffer, s *serializer.Serializer) (any, error) {
	var (
		a   Ack
		err error
	)
	if a.Member, err = serializer.ReadString(buf); err != nil {
		return nil, err
	}
	pid, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	a.ProducerID = int(pid)
	if a.Generation, err = buf.ReadUint64(); err != nil {
		return nil, err
	}
	if a.MessageID, err = buf.ReadUint64(); err != nil {
		return nil, err
	}
	if a.Result, err = s.ReadObject(buf); err != nil {
		return nil, err
	}
	return &a, nil
}
