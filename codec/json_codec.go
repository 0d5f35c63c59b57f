package codec

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/serializer"
)

// JSONCodec writes commands as a JSON envelope using sonic.
// Pros: human-readable headers, easy to inspect in etcd or redis-cli.
// Cons: larger entries. Payloads and results are still serializer bytes
// (base64 in the JSON) so no type information is lost.
type JSONCodec struct {
	s *serializer.Serializer
}

func NewJSONCodec(s *serializer.Serializer) *JSONCodec {
	return &JSONCodec{s: s}
}

var jsonAPI = sonic.ConfigStd

const (
	kindMessage = "message"
	kindAck     = "ack"
)

type envelope struct {
	Kind    string       `json:"kind"`
	Message *jsonMessage `json:"message,omitempty"`
	Ack     *jsonAck     `json:"ack,omitempty"`
}

type jsonMessage struct {
	Member     string `json:"member"`
	Source     string `json:"source"`
	ProducerID int    `json:"producerId"`
	Generation uint64 `json:"generation"`
	Producer   string `json:"producer"`
	ID         uint64 `json:"id"`
	Dispatch   string `json:"dispatch"`
	Delivery   string `json:"delivery"`
	Payload    []byte `json:"payload"`
}

type jsonAck struct {
	Member     string `json:"member"`
	ProducerID int    `json:"producerId"`
	Generation uint64 `json:"generation"`
	MessageID  uint64 `json:"messageId"`
	Result     []byte `json:"result"`
}

func (c *JSONCodec) Encode(cmd any) ([]byte, error) {
	var env envelope
	switch v := cmd.(type) {
	case *message.Message:
		payload, err := c.s.Marshal(v.Payload)
		if err != nil {
			return nil, err
		}
		env.Kind = kindMessage
		env.Message = &jsonMessage{
			Member:     v.Member,
			Source:     v.Source,
			ProducerID: v.ProducerID,
			Generation: v.Generation,
			Producer:   v.Producer,
			ID:         v.ID,
			Dispatch:   v.Dispatch.String(),
			Delivery:   v.Delivery.String(),
			Payload:    payload,
		}
	case *message.Ack:
		result, err := c.s.Marshal(v.Result)
		if err != nil {
			return nil, err
		}
		env.Kind = kindAck
		env.Ack = &jsonAck{
			Member:     v.Member,
			ProducerID: v.ProducerID,
			Generation: v.Generation,
			MessageID:  v.MessageID,
			Result:     result,
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCommand, cmd)
	}
	return jsonAPI.Marshal(&env)
}

func (c *JSONCodec) Decode(data []byte) (any, error) {
	var env envelope
	if err := jsonAPI.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("codec: decode json envelope: %w", err)
	}

	switch {
	case env.Kind == kindMessage && env.Message != nil:
		m := env.Message
		dispatch, err := message.ParseDispatchPolicy(m.Dispatch)
		if err != nil {
			return nil, err
		}
		delivery, err := message.ParseDeliveryPolicy(m.Delivery)
		if err != nil {
			return nil, err
		}
		payload, err := c.s.Unmarshal(m.Payload)
		if err != nil {
			return nil, err
		}
		return &message.Message{
			Member:     m.Member,
			Source:     m.Source,
			ProducerID: m.ProducerID,
			Generation: m.Generation,
			Producer:   m.Producer,
			ID:         m.ID,
			Payload:    payload,
			Dispatch:   dispatch,
			Delivery:   delivery,
		}, nil
	case env.Kind == kindAck && env.Ack != nil:
		a := env.Ack
		result, err := c.s.Unmarshal(a.Result)
		if err != nil {
			return nil, err
		}
		return &message.Ack{
			Member:     a.Member,
			ProducerID: a.ProducerID,
			Generation: a.Generation,
			MessageID:  a.MessageID,
			Result:     result,
		}, nil
	}
	return nil, fmt.Errorf("%w: envelope kind %q", ErrUnsupportedCommand, env.Kind)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
