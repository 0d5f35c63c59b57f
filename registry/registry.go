// Package registry assigns process-local ids to live producers and routes
// inbound Acks back to them.
//
// The id travels inside every Message a producer sends and comes back on
// the Ack, so it is the only handle the apply loop has on the producer:
//
//	Register(p) → 0, Register(q) → 1, Close(0), Register(r) → 0
//
// Ids are the smallest non-negative integers not currently in use, so a
// closed producer's id is soon handed to a new one. Each registration also
// gets a generation that is never reused; Acks carry it back, and an Ack
// whose generation does not match the live registration is not routed.
package registry

import (
	"container/heap"
	"sync"
	"time"

	"github.com/zheilbron/atomix/message"
)

// AckHandler receives the Acks addressed to a registered producer.
type AckHandler interface {
	OnAck(ack *message.Ack)
}

// Registry is safe for concurrent use. Register, Close and AckRoute are
// linearizable with respect to each other.
type Registry struct {
	mu       sync.RWMutex
	handlers map[int]entry
	free     idHeap // released ids below next
	next     int    // every id >= next is unused
	gen      uint64 // last generation handed out
}

type entry struct {
	h   AckHandler
	gen uint64
}

// Registration identifies one registered producer.
type Registration struct {
	ID         int
	Generation uint64
}

// New returns an empty registry. Generations start from the wall clock so
// a restarted process does not repeat the generations of an earlier one
// whose Acks are still in the log.
func New() *Registry {
	return &Registry{
		handlers: make(map[int]entry),
		gen:      uint64(time.Now().UnixNano()),
	}
}

// Register records h under the smallest unused id.
func (r *Registry) Register(h AckHandler) Registration {
	return r.RegisterFunc(func(Registration) AckHandler { return h })
}

// RegisterFunc allocates a registration and records the handler returned by
// build under it. build runs under the registry lock, before the handler is
// routable, so it may initialize the handler from the registration.
func (r *Registry) RegisterFunc(build func(Registration) AckHandler) Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id int
	if r.free.Len() > 0 {
		id = heap.Pop(&r.free).(int)
	} else {
		id = r.next
		r.next++
	}
	r.gen++
	reg := Registration{ID: id, Generation: r.gen}
	r.handlers[id] = entry{h: build(reg), gen: reg.Generation}
	return reg
}

// Close releases id. It reports whether id was registered.
func (r *Registry) Close(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[id]; !ok {
		return false
	}
	delete(r.handlers, id)
	heap.Push(&r.free, id)
	return true
}

// AckRoute returns the live handler registered under id with generation
// gen. An unknown or closed id is not an error: producers may close while
// Acks are in flight, and their id may already belong to someone else.
func (r *Registry) AckRoute(id int, gen uint64) (AckHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[id]
	if !ok || e.gen != gen {
		return nil, false
	}
	return e.h, true
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// idHeap is a min-heap of released ids.
type idHeap []int

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
