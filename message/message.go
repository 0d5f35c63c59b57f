// Package message defines the commands the messaging layer submits to the
// replicated log.
//
// A Message carries an application payload from a producer to a member;
// an Ack carries the outcome back to the producer that sent it:
//
//	producer ──Message{ProducerID, ID}──▶ log ──▶ target member handler
//	producer ◀──────── OnAck ◀── log ◀──Ack{ProducerID, MessageID}
//
// Both are immutable once built and are submitted exactly once.
package message

import "fmt"

// DeliveryPolicy controls how a producer learns the outcome of a message.
type DeliveryPolicy uint8

const (
	// Async: fire-and-forget. Only the submission outcome is reported; no Ack is produced.
	Async DeliveryPolicy = iota
	// Sync: the receiver answers with a boolean Ack.
	Sync
	// RequestReply: the receiver answers with an arbitrary reply payload.
	RequestReply
)

func (p DeliveryPolicy) String() string {
	switch p {
	case Async:
		return "async"
	case Sync:
		return "sync"
	case RequestReply:
		return "request_reply"
	}
	return fmt.Sprintf("DeliveryPolicy(%d)", uint8(p))
}

// Valid reports whether p is a known policy.
func (p DeliveryPolicy) Valid() bool {
	return p <= RequestReply
}

// ParseDeliveryPolicy is the inverse of DeliveryPolicy.String.
func ParseDeliveryPolicy(s string) (DeliveryPolicy, error) {
	for p := Async; p <= RequestReply; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: delivery %q", ErrInvalidPolicy, s)
}

// DispatchPolicy selects the receiving member(s) of a message that has no
// explicit target member.
type DispatchPolicy uint8

const (
	RoundRobin DispatchPolicy = iota
	Random
	Hash
	Broadcast
)

func (p DispatchPolicy) String() string {
	switch p {
	case RoundRobin:
		return "round_robin"
	case Random:
		return "random"
	case Hash:
		return "hash"
	case Broadcast:
		return "broadcast"
	}
	return fmt.Sprintf("DispatchPolicy(%d)", uint8(p))
}

func (p DispatchPolicy) Valid() bool {
	return p <= Broadcast
}

// ParseDispatchPolicy is the inverse of DispatchPolicy.String.
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	for p := RoundRobin; p <= Broadcast; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: dispatch %q", ErrInvalidPolicy, s)
}

// Message is the command carrying an application payload.
type Message struct {
	Member     string // Target member; empty means "pick by Dispatch"
	Source     string // Member that submitted the message; Acks are routed back to it
	ProducerID int    // Registry id of the sending producer on Source
	Generation uint64 // Registry generation of that producer; echoed on the Ack
	Producer   string // Producer name; receivers look up their handler by it
	ID         uint64 // Unique among the producer's in-flight messages
	Payload    any
	Dispatch   DispatchPolicy
	Delivery   DeliveryPolicy
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{%s/%d#%d %s->%q %s}", m.Producer, m.ProducerID, m.ID, m.Source, m.Member, m.Delivery)
}

// ExpectsAck reports whether the receiver must answer with an Ack.
func (m *Message) ExpectsAck() bool {
	return m.Delivery == Sync || m.Delivery == RequestReply
}

// Ack is the command answering a Message.
//
//   - Sync:         Result is a bool.
//   - RequestReply: Result is the opaque reply payload.
type Ack struct {
	Member     string // Originating member the Ack is addressed to
	ProducerID int
	Generation uint64
	MessageID  uint64
	Result     any
}

// AckFor builds the Ack answering m.
func AckFor(m *Message, result any) *Ack {
	return &Ack{
		Member:     m.Source,
		ProducerID: m.ProducerID,
		Generation: m.Generation,
		MessageID:  m.ID,
		Result:     result,
	}
}

func (a *Ack) String() string {
	return fmt.Sprintf("Ack{%d#%d ->%q}", a.ProducerID, a.MessageID, a.Member)
}
