package replog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EtcdLog stores entries as keys under a prefix in etcd:
//
//	Key:   {Prefix}{uuid}
//	Value: the entry bytes
//
// The entry index is the revision etcd's Raft log committed the Put at, so
// every client sees the same order. Keys are unique, so each Put creates a
// fresh key and no entry is ever overwritten.
type EtcdLog struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	prefix string
	logger *zap.Logger
	owned  bool
	closed atomic.Bool
}

type EtcdConfig struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
	Logger      *zap.Logger
}

const DefaultEtcdPrefix = "/atomix/log/"

// NewEtcdLog connects to the given etcd endpoints. The client is closed by Close.
func NewEtcdLog(cfg EtcdConfig) (*EtcdLog, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      cfg.Logger.Named("etcd-client"),
	})
	if err != nil {
		return nil, err
	}
	l := NewEtcdLogFromClient(c, cfg.Prefix, cfg.Logger)
	l.owned = true
	return l, nil
}

// NewEtcdLogFromClient uses an existing client; Close leaves it open.
func NewEtcdLogFromClient(c *clientv3.Client, prefix string, logger *zap.Logger) *EtcdLog {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdLog{client: c, prefix: prefix, logger: logger}
}

func (l *EtcdLog) Submit(ctx context.Context, data []byte) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	resp, err := l.client.Put(ctx, l.prefix+uuid.NewString(), string(data))
	if err != nil {
		return 0, classifyEtcdError(err)
	}
	return uint64(resp.Header.Revision), nil
}

// Subscribe reads the committed entries at or after from, then watches for
// new ones starting right after the revision that read observed.
func (l *EtcdLog) Subscribe(ctx context.Context, from uint64) (<-chan Entry, <-chan error) {
	out := make(chan Entry)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		fail := func(err error) {
			if ctx.Err() == nil {
				errc <- err
			}
		}

		opts := []clientv3.OpOption{
			clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByModRevision, clientv3.SortAscend),
		}
		if from > 0 {
			opts = append(opts, clientv3.WithMinModRev(int64(from)))
		}
		resp, err := l.client.Get(ctx, l.prefix, opts...)
		if err != nil {
			fail(classifyEtcdError(err))
			return
		}
		for _, kv := range resp.Kvs {
			select {
			case out <- Entry{Index: uint64(kv.ModRevision), Data: kv.Value}:
			case <-ctx.Done():
				return
			}
		}

		wctx := clientv3.WithRequireLeader(ctx)
		watchChan := l.client.Watch(wctx, l.prefix, clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
		for wresp := range watchChan {
			if err := wresp.Err(); err != nil {
				fail(fmt.Errorf("replog: etcd watch: %w", err))
				return
			}
			for _, ev := range wresp.Events {
				if ev.Type != clientv3.EventTypePut || ev.Kv.CreateRevision != ev.Kv.ModRevision {
					continue
				}
				select {
				case out <- Entry{Index: uint64(ev.Kv.ModRevision), Data: ev.Kv.Value}:
				case <-ctx.Done():
					return
				}
			}
		}
		if ctx.Err() == nil {
			if l.closed.Load() {
				fail(ErrClosed)
			} else {
				fail(fmt.Errorf("%w: etcd watch channel closed", ErrUnavailable))
			}
		}
	}()
	return out, errc
}

func (l *EtcdLog) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.owned {
		return l.client.Close()
	}
	return nil
}

// classifyEtcdError marks errors where the request never reached a leader.
// Anything else may have been committed and must not be retried blindly.
func classifyEtcdError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if status.Code(err) == codes.Unavailable {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
