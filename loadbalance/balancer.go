// Package loadbalance picks the member that receives a message sent without
// an explicit target.
//
// Every replica applies the same log entry and must pick the same member,
// so a Pick depends only on replicated inputs: the member list, the entry
// index and the message identity. Three strategies are implemented:
//   - RoundRobin:      members take turns, in log order
//   - WeightedRandom:  members with a higher weight receive more messages
//   - ConsistentHash:  messages with the same key stick to one member
package loadbalance

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/zheilbron/atomix/message"
)

var (
	ErrNoMembers  = errors.New("loadbalance: no members available")
	ErrNoBalancer = errors.New("loadbalance: no balancer for dispatch policy")
)

// Member is a message receiver. A Weight <= 0 counts as 1.
type Member struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

func (m Member) weight() int {
	if m.Weight <= 0 {
		return 1
	}
	return m.Weight
}

// Key identifies the dispatch being made.
type Key struct {
	Index     uint64 // log index of the Message entry
	Producer  string
	MessageID uint64
}

func (k Key) String() string {
	return k.Producer + "/" + strconv.FormatUint(k.MessageID, 10)
}

// Balancer is the interface for dispatch strategies.
// The apply loop calls Pick() once per Message entry that has no target.
type Balancer interface {
	// Pick selects one member from the list. Must be goroutine-safe.
	Pick(members []Member, key Key) (*Member, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ForPolicy returns a new balancer for policy. Broadcast has none: it
// targets every member.
func ForPolicy(policy message.DispatchPolicy) (Balancer, error) {
	switch policy {
	case message.RoundRobin:
		return &RoundRobinBalancer{}, nil
	case message.Random:
		return &WeightedRandomBalancer{}, nil
	case message.Hash:
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoBalancer, policy)
}
