package group

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zheilbron/atomix/configuration"
	"github.com/zheilbron/atomix/loadbalance"
	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/producer"
	"github.com/zheilbron/atomix/replog"
)

func testConfig(member string, members ...string) *configuration.Config {
	cfg := configuration.Default()
	cfg.Member = member
	for _, name := range members {
		cfg.Members = append(cfg.Members, loadbalance.Member{Name: name})
	}
	return cfg
}

func wait(t *testing.T, p *producer.Producer, member string, payload any) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := p.Send(ctx, member, payload).Get(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timed out waiting for result")
	}
	return v, err
}

// joinAll starts one member per name on a shared in-memory log.
func joinAll(t *testing.T, names ...string) map[string]*Member {
	t.Helper()
	log := replog.NewMemoryLog()
	t.Cleanup(func() { log.Close() })

	members := make(map[string]*Member)
	for _, name := range names {
		m, err := Join(testConfig(name, names...), log, nil)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { m.Close(time.Second) })
		members[name] = m
	}
	return members
}

func TestGroupMessaging(t *testing.T) {
	members := joinAll(t, "m1", "m2", "m3")
	for name, m := range members {
		name := name
		m.Consumer("greet", func(ctx context.Context, msg *message.Message) (any, error) {
			return fmt.Sprintf("%s greets %v", name, msg.Payload), nil
		})
		m.Start(context.Background())
	}

	p := members["m1"].Producer("greet", producer.Options{Delivery: message.RequestReply})
	for _, target := range []string{"m1", "m2", "m3"} {
		v, err := wait(t, p, target, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if want := target + " greets alice"; v != want {
			t.Fatalf("got %v, want %q", v, want)
		}
	}

	rr := members["m3"].Producer("greet", producer.Options{Dispatch: message.RoundRobin, Delivery: message.RequestReply})
	seen := map[any]bool{}
	for i := 0; i < 3; i++ {
		v, err := wait(t, rr, "", "bob")
		if err != nil {
			t.Fatal(err)
		}
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expect every member to answer once, got %v", seen)
	}
}

func TestSyncHelloScenario(t *testing.T) {
	members := joinAll(t, "m1", "m2")
	members["m1"].Consumer("P", func(ctx context.Context, msg *message.Message) (any, error) {
		if msg.Payload != "hello" {
			return nil, errors.New("unexpected payload")
		}
		return nil, nil
	})
	for _, m := range members {
		m.Start(context.Background())
	}

	p := members["m2"].Producer("P", producer.Options{Delivery: message.Sync})
	if v, err := wait(t, p, "m1", "hello"); err != nil || v != nil {
		t.Fatalf("expect success, got %v, %v", v, err)
	}
	if _, err := wait(t, p, "m1", "goodbye"); !errors.Is(err, message.ErrMessageFailed) {
		t.Fatalf("expect ErrMessageFailed, got %v", err)
	}
}

func TestConsumerClose(t *testing.T) {
	members := joinAll(t, "m1")
	m := members["m1"]
	old := m.Consumer("P", func(ctx context.Context, msg *message.Message) (any, error) { return "old", nil })
	m.Start(context.Background())

	p := m.Producer("P", producer.Options{Delivery: message.RequestReply})
	if v, _ := wait(t, p, "m1", nil); v != "old" {
		t.Fatalf("expect old consumer, got %v", v)
	}

	current := m.Consumer("P", func(ctx context.Context, msg *message.Message) (any, error) { return "new", nil })
	old.Close() // replaced, so this must not unregister the new handler
	if v, _ := wait(t, p, "m1", nil); v != "new" {
		t.Fatalf("expect new consumer, got %v", v)
	}

	current.Close()
	if v, err := wait(t, p, "m1", nil); err != nil || v != nil {
		t.Fatalf("expect unhandled nil reply, got %v, %v", v, err)
	}
}

func TestMemberClose(t *testing.T) {
	m, err := Open(context.Background(), testConfig("solo"), nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Consumer("P", func(ctx context.Context, msg *message.Message) (any, error) { return nil, nil })
	m.Start(context.Background())

	p := m.Producer("P", producer.Options{Delivery: message.Sync})
	if _, err := wait(t, p, "solo", "x"); err != nil {
		t.Fatal(err)
	}

	if err := m.Close(time.Second); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := wait(t, p, "solo", "x"); !errors.Is(err, producer.ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
	select {
	case err := <-m.Err():
		if err != nil {
			t.Fatalf("expect clean exit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("apply loop did not stop")
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("")
	if _, err := Open(context.Background(), cfg, nil); !errors.Is(err, configuration.ErrInvalid) {
		t.Fatalf("expect ErrInvalid, got %v", err)
	}

	cfg = testConfig("m1")
	cfg.Log.Backend = "kafka"
	if _, err := Open(context.Background(), cfg, nil); !errors.Is(err, configuration.ErrInvalid) {
		t.Fatalf("expect ErrInvalid, got %v", err)
	}
}

func TestSubmitMiddleware(t *testing.T) {
	cases := []struct {
		cfg  configuration.SubmitConfig
		want int
	}{
		{configuration.SubmitConfig{}, 1},
		{configuration.SubmitConfig{Timeout: time.Second}, 2},
		{configuration.SubmitConfig{Timeout: time.Second, Retries: 3, RetryDelay: time.Millisecond}, 3},
		{configuration.SubmitConfig{Timeout: time.Second, Retries: 3, Rate: 10, Burst: 1}, 4},
	}
	for _, tc := range cases {
		if got := len(SubmitMiddleware(tc.cfg, nil)); got != tc.want {
			t.Errorf("%+v: expect %d middlewares, got %d", tc.cfg, tc.want, got)
		}
	}
}
