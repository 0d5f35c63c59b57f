// Package replog defines the replicated command log the messaging layer is
// built on, and adapters onto systems that provide one.
//
// A Log orders submitted entries and hands every subscriber each committed
// entry exactly once, in index order. Consensus is the backend's job:
// etcd's Raft for EtcdLog, the Redis primary for RedisLog, a mutex for
// MemoryLog.
package replog

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("replog: log closed")
	// ErrUnavailable means the entry was definitely not appended and the
	// submission may be retried.
	ErrUnavailable = errors.New("replog: log unavailable")
)

// Entry is one committed command. Indexes strictly increase in commit
// order; they need not be contiguous.
type Entry struct {
	Index uint64
	Data  []byte
}

type Log interface {
	// Submit appends data and returns its committed index.
	Submit(ctx context.Context, data []byte) (uint64, error)
	// Subscribe streams committed entries with Index >= from. The entry
	// channel is closed when ctx is done, the log is closed, or the
	// subscription fails; a failure is reported on the error channel first.
	Subscribe(ctx context.Context, from uint64) (<-chan Entry, <-chan error)
	Close() error
}
