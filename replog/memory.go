package replog

import (
	"context"
	"sync"
)

// MemoryLog is an in-process Log. Indexes start at 1 and are contiguous.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
	// notify is closed and replaced on every append and on Close.
	notify chan struct{}
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{notify: make(chan struct{})}
}

func (l *MemoryLog) Submit(ctx context.Context, data []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	index := uint64(len(l.entries)) + 1
	l.entries = append(l.entries, Entry{Index: index, Data: append([]byte(nil), data...)})
	close(l.notify)
	l.notify = make(chan struct{})
	return index, nil
}

func (l *MemoryLog) Subscribe(ctx context.Context, from uint64) (<-chan Entry, <-chan error) {
	out := make(chan Entry)
	errc := make(chan error, 1)
	if from == 0 {
		from = 1
	}

	go func() {
		defer close(out)
		next := from
		for {
			l.mu.Lock()
			var batch []Entry
			if next <= uint64(len(l.entries)) {
				batch = l.entries[next-1:]
			}
			notify, closed := l.notify, l.closed
			l.mu.Unlock()

			for _, e := range batch {
				select {
				case out <- e:
					next = e.Index + 1
				case <-ctx.Done():
					return
				}
			}
			if len(batch) > 0 {
				continue
			}
			if closed {
				errc <- ErrClosed
				return
			}
			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

// Len returns the number of committed entries.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.notify)
	return nil
}
