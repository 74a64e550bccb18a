package outbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcherRunsJobsAndDrainsOnClose(t *testing.T) {
	d := New(Config{BufferSize: 32, Workers: 4}, nil)

	var ran atomic.Int64
	for i := 0; i < 20; i++ {
		ok := d.Submit(context.Background(), Job{Name: "n", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	d.Close()

	if ran.Load() != 20 || d.Completed() != 20 {
		t.Fatalf("expected 20 completed jobs, ran=%d completed=%d", ran.Load(), d.Completed())
	}
}

func TestDispatcherReportsFailures(t *testing.T) {
	boom := errors.New("smtp down")

	var mu sync.Mutex
	var names []string
	d := New(Config{BufferSize: 4, Workers: 1}, func(name string, err error) {
		if !errors.Is(err, boom) {
			t.Errorf("unexpected error %v", err)
		}
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	})

	d.Submit(context.Background(), Job{Name: "email_change_notice", Run: func(context.Context) error { return boom }})
	d.Close()

	if d.Failed() != 1 {
		t.Fatalf("expected 1 failure, got %d", d.Failed())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(names) != 1 || names[0] != "email_change_notice" {
		t.Fatalf("expected failure callback for job name, got %v", names)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	gate := make(chan struct{})
	d := New(Config{BufferSize: 1, Workers: 1, DropIfFull: true}, nil)
	defer func() {
		close(gate)
		d.Close()
	}()

	block := Job{Name: "block", Run: func(context.Context) error {
		<-gate
		return nil
	}}
	d.Submit(context.Background(), block)
	d.Submit(context.Background(), block)

	start := time.Now()
	accepted := d.Submit(context.Background(), block)
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking submit")
	}
	if accepted || d.Dropped() == 0 {
		t.Fatalf("expected drop, accepted=%v dropped=%d", accepted, d.Dropped())
	}
}

func TestDispatcherJobTimeout(t *testing.T) {
	d := New(Config{BufferSize: 1, Workers: 1, Timeout: 20 * time.Millisecond}, nil)

	var ctxErr atomic.Value
	d.Submit(context.Background(), Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		ctxErr.Store(ctx.Err())
		return ctx.Err()
	}})
	d.Close()

	if err, _ := ctxErr.Load().(error); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected job deadline, got %v", err)
	}
}

func TestDispatcherSubmitAfterCloseAndNil(t *testing.T) {
	d := New(Config{BufferSize: 1, Workers: 1}, nil)
	d.Close()
	d.Close()

	if d.Submit(context.Background(), Job{Name: "late", Run: func(context.Context) error { return nil }}) {
		t.Fatal("expected submit after close to be rejected")
	}

	var nilDispatcher *Dispatcher
	if nilDispatcher.Submit(context.Background(), Job{Run: func(context.Context) error { return nil }}) {
		t.Fatal("nil dispatcher must reject jobs")
	}
	nilDispatcher.Close()
}
