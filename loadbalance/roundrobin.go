package loadbalance

import (
	"hash/crc32"
)

// RoundRobinBalancer cycles each producer's messages through the members in
// order. The position comes from the message id, which every replica reads
// from the same entry, so a replica that skipped entries it could not
// decode still picks what the others pick. Producers start at a position
// derived from their name so they do not all begin with the first member.
type RoundRobinBalancer struct{}

func (b *RoundRobinBalancer) Pick(members []Member, key Key) (*Member, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	start := uint64(crc32.ChecksumIEEE([]byte(key.Producer)))
	index := (start + key.MessageID - 1) % uint64(len(members))
	return &members[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
