package replog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisLog stores entries in a Redis stream. Stream ids are "0-<index>",
// where index comes from a counter key incremented in the same script as
// the XADD, so indexes are contiguous and start at 1.
type RedisLog struct {
	client  *redis.Client
	stream  string
	counter string
	block   time.Duration
	logger  *zap.Logger
	owned   bool
	closed  atomic.Bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// Block bounds each XREAD so subscriptions notice cancellation.
	Block  time.Duration
	Logger *zap.Logger
}

const (
	DefaultRedisStream = "atomix:log"
	defaultRedisBlock  = 500 * time.Millisecond
	redisReadCount     = 128
)

var appendScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[2])
redis.call('XADD', KEYS[1], '0-' .. n, 'data', ARGV[1])
return n
`)

func NewRedisLog(cfg RedisConfig) *RedisLog {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	l := NewRedisLogFromClient(c, cfg.Stream, cfg.Block, cfg.Logger)
	l.owned = true
	return l
}

// NewRedisLogFromClient uses an existing client; Close leaves it open.
func NewRedisLogFromClient(c *redis.Client, stream string, block time.Duration, logger *zap.Logger) *RedisLog {
	if stream == "" {
		stream = DefaultRedisStream
	}
	if block <= 0 {
		block = defaultRedisBlock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLog{
		client:  c,
		stream:  stream,
		counter: stream + ":seq",
		block:   block,
		logger:  logger,
	}
}

// Ping checks the connection.
func (l *RedisLog) Ping(ctx context.Context) error {
	return classifyRedisError(l.client.Ping(ctx).Err())
}

func (l *RedisLog) Submit(ctx context.Context, data []byte) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	n, err := appendScript.Run(ctx, l.client, []string{l.stream, l.counter}, data).Int64()
	if err != nil {
		return 0, classifyRedisError(err)
	}
	return uint64(n), nil
}

func (l *RedisLog) Subscribe(ctx context.Context, from uint64) (<-chan Entry, <-chan error) {
	out := make(chan Entry)
	errc := make(chan error, 1)
	if from == 0 {
		from = 1
	}

	go func() {
		defer close(out)
		lastID := "0-" + strconv.FormatUint(from-1, 10)
		for {
			if ctx.Err() != nil {
				return
			}
			if l.closed.Load() {
				errc <- ErrClosed
				return
			}

			streams, err := l.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{l.stream, lastID},
				Count:   redisReadCount,
				Block:   l.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errc <- fmt.Errorf("replog: redis xread: %w", classifyRedisError(err))
				return
			}

			for _, s := range streams {
				for _, msg := range s.Messages {
					e, err := redisEntry(msg)
					if err != nil {
						errc <- err
						return
					}
					select {
					case out <- e:
						lastID = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, errc
}

func redisEntry(msg redis.XMessage) (Entry, error) {
	seq := strings.TrimPrefix(msg.ID, "0-")
	index, err := strconv.ParseUint(seq, 10, 64)
	if err != nil || seq == msg.ID {
		return Entry{}, fmt.Errorf("replog: unexpected stream id %q", msg.ID)
	}
	data, ok := msg.Values["data"].(string)
	if !ok {
		return Entry{}, fmt.Errorf("replog: stream entry %s has no data field", msg.ID)
	}
	return Entry{Index: index, Data: []byte(data)}, nil
}

func (l *RedisLog) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.owned {
		return l.client.Close()
	}
	return nil
}

// classifyRedisError marks failures to connect, where the script never ran.
func classifyRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
