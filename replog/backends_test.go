package replog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// These tests need a local etcd on :2379 or Redis on :6379 and are
// skipped when the server is unreachable.

func TestEtcdLogContract(t *testing.T) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: time.Second,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := client.Get(ctx, "health"); err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}

	prefix := "/atomix-test/" + uuid.NewString() + "/"
	defer client.Delete(context.Background(), prefix, clientv3.WithPrefix())

	log := NewEtcdLogFromClient(client, prefix, nil)
	testLogContract(t, log)

	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Submit(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
}

func TestRedisLogContract(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	stream := "atomix-test:" + uuid.NewString()
	log := NewRedisLogFromClient(client, stream, 100*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := log.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Del(context.Background(), stream, stream+":seq")

	testLogContract(t, log)

	// redis indexes are contiguous from 1
	entries, _ := log.Subscribe(context.Background(), 1)
	if e := receive(t, entries, 1)[0]; e.Index != 1 {
		t.Fatalf("expect first index 1, got %d", e.Index)
	}
}

func TestRedisLogUnreachableIsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	log := NewRedisLogFromClient(client, "", 0, nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := log.Submit(ctx, []byte("x")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expect ErrUnavailable, got %v", err)
	}
}

func TestClassifyEtcdError(t *testing.T) {
	if err := classifyEtcdError(status.Error(codes.Unavailable, "no leader")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expect ErrUnavailable, got %v", err)
	}
	if err := classifyEtcdError(status.Error(codes.InvalidArgument, "bad")); errors.Is(err, ErrUnavailable) {
		t.Fatal("only unavailable errors are retryable")
	}
	if err := classifyEtcdError(context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline error, got %v", err)
	}
}
