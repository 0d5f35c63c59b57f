package group

import (
	"context"
	"testing"
	"time"

	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/producer"
	"github.com/zheilbron/atomix/replog"
)

const benchCloseTimeout = 3 * time.Second

func newBenchLog(b *testing.B) replog.Log {
	log := replog.NewMemoryLog()
	b.Cleanup(func() { log.Close() })
	return log
}

func setupBench(b *testing.B, delivery message.DeliveryPolicy) *producer.Producer {
	b.Helper()
	log := newBenchLog(b)
	var first *Member
	for _, name := range []string{"m1", "m2"} {
		m, err := Join(testConfig(name, "m1", "m2"), log, nil)
		if err != nil {
			b.Fatal(err)
		}
		m.Consumer("bench", func(ctx context.Context, msg *message.Message) (any, error) {
			return msg.Payload, nil
		})
		m.Start(context.Background())
		b.Cleanup(func() { m.Close(benchCloseTimeout) })
		if first == nil {
			first = m
		}
	}
	return first.Producer("bench", producer.Options{Dispatch: message.RoundRobin, Delivery: delivery})
}

// 场景1: 单 goroutine 串行发送
func BenchmarkSerialRequestReply(b *testing.B) {
	p := setupBench(b, message.RequestReply)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := p.Send(ctx, "", i).Get(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// 场景2: 多 goroutine 并发发送（多个消息同时在途）
func BenchmarkConcurrentSync(b *testing.B) {
	p := setupBench(b, message.Sync)
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := p.Send(ctx, "", "x").Get(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// 场景3: ASYNC 只等日志提交
func BenchmarkAsync(b *testing.B) {
	p := setupBench(b, message.Async)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := p.Send(ctx, "", i).Get(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
