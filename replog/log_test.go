package replog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, entries <-chan Entry, n int) []Entry {
	t.Helper()
	got := make([]Entry, 0, n)
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case e, ok := <-entries:
			if !ok {
				t.Fatalf("subscription closed after %d of %d entries", len(got), n)
			}
			got = append(got, e)
		case <-timeout:
			t.Fatalf("received %d of %d entries", len(got), n)
		}
	}
	return got
}

// testLogContract runs the behavior every backend must share.
func testLogContract(t *testing.T, log Log) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var indexes []uint64
	for i := 0; i < 3; i++ {
		index, err := log.Submit(ctx, []byte(fmt.Sprintf("entry-%d", i)))
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		if len(indexes) > 0 && index <= indexes[len(indexes)-1] {
			t.Fatalf("index %d not after %d", index, indexes[len(indexes)-1])
		}
		indexes = append(indexes, index)
	}

	// replay from the start
	all, _ := log.Subscribe(ctx, 0)
	got := receive(t, all, 3)
	for i, e := range got {
		if e.Index != indexes[i] || string(e.Data) != fmt.Sprintf("entry-%d", i) {
			t.Fatalf("entry %d = {%d %q}, want {%d entry-%d}", i, e.Index, e.Data, indexes[i], i)
		}
	}

	// replay from the middle
	tailCtx, tailCancel := context.WithCancel(ctx)
	tail, _ := log.Subscribe(tailCtx, indexes[1])
	got = receive(t, tail, 2)
	if got[0].Index != indexes[1] || got[1].Index != indexes[2] {
		t.Fatalf("replay from %d returned %d, %d", indexes[1], got[0].Index, got[1].Index)
	}

	// live entries reach every subscriber
	index, err := log.Submit(ctx, []byte("live"))
	if err != nil {
		t.Fatal(err)
	}
	for _, sub := range []<-chan Entry{all, tail} {
		e := receive(t, sub, 1)[0]
		if e.Index != index || string(e.Data) != "live" {
			t.Fatalf("live entry = {%d %q}, want {%d live}", e.Index, e.Data, index)
		}
	}

	// cancelling the context ends the subscription
	tailCancel()
	select {
	case _, ok := <-tail:
		for ok {
			_, ok = <-tail
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestMemoryLogContract(t *testing.T) {
	log := NewMemoryLog()
	defer log.Close()
	testLogContract(t, log)
}

func TestMemoryLogIndexesAreContiguous(t *testing.T) {
	log := NewMemoryLog()
	defer log.Close()

	const n = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indexes []uint64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			index, err := log.Submit(context.Background(), []byte("x"))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			indexes = append(indexes, index)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for i, index := range indexes {
		if index != uint64(i+1) {
			t.Fatalf("expect index %d, got %d", i+1, index)
		}
	}
	if log.Len() != n {
		t.Fatalf("expect %d entries, got %d", n, log.Len())
	}
}

func TestMemoryLogClose(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	log.Submit(ctx, []byte("before"))

	entries, errc := log.Subscribe(ctx, 1)
	receive(t, entries, 1)

	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Submit(ctx, []byte("after")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expect ErrClosed from subscription, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not report close")
	}
	if _, ok := <-entries; ok {
		t.Fatal("expect entry channel closed")
	}

	// entries committed before Close are still readable
	late, _ := log.Subscribe(ctx, 1)
	if e := receive(t, late, 1)[0]; string(e.Data) != "before" {
		t.Fatalf("unexpected entry %q", e.Data)
	}
}

func TestMemoryLogSubmitHonorsContext(t *testing.T) {
	log := NewMemoryLog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := log.Submit(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled, got %v", err)
	}
	if log.Len() != 0 {
		t.Fatal("cancelled submission was appended")
	}
}

func TestMemoryLogCopiesData(t *testing.T) {
	log := NewMemoryLog()
	data := []byte("abc")
	log.Submit(context.Background(), data)
	data[0] = 'z'

	entries, _ := log.Subscribe(context.Background(), 1)
	if e := receive(t, entries, 1)[0]; string(e.Data) != "abc" {
		t.Fatalf("log entry changed with caller's slice: %q", e.Data)
	}
}
