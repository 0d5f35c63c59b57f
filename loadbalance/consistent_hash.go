package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
)

// ConsistentHashBalancer maps keys to members using a hash ring.
// The same key always maps to the same member (until the ring changes).
//
// Virtual nodes: each member is mapped to N virtual nodes on the ring so
// a handful of members still spread evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu        sync.Mutex
	signature string            // member names the ring was built from
	ring      []uint32          // Sorted hash values on the ring
	nodes     map[uint32]Member // Hash value → member
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per member.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]Member),
	}
}

// Add places a member onto the hash ring with N virtual nodes.
// Each virtual node is hashed from "{name}#{i}".
func (b *ConsistentHashBalancer) Add(m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(m)
	b.signature = ""
}

func (b *ConsistentHashBalancer) add(m Member) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", m.Name, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = m
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick rebuilds the ring if members differ from the last call (a nil list
// keeps the ring built with Add), then finds the first node >= hash(key),
// wrapping around past the largest node.
func (b *ConsistentHashBalancer) Pick(members []Member, key Key) (*Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if members != nil {
		if len(members) == 0 {
			return nil, ErrNoMembers
		}
		if sig := signature(members); sig != b.signature {
			b.ring = b.ring[:0]
			b.nodes = make(map[uint32]Member, len(members)*b.replicas)
			for _, m := range members {
				b.add(m)
			}
			b.signature = sig
		}
	}
	if len(b.ring) == 0 {
		return nil, ErrNoMembers
	}

	hash := crc32.ChecksumIEEE([]byte(key.String()))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	m := b.nodes[b.ring[idx]]
	return &m, nil
}

func signature(members []Member) string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return strings.Join(names, "\x00")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
