package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRedisCounterWindowExpiresAfterFirstHit(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewRedisCounter(rdb, "t:")
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	ttl := mr.TTL("t:k")
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected TTL set on first hit, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected window reset, got %d", got)
	}
}

func TestRedisCounterResetAndMissingKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	c := NewRedisCounter(rdb, "t:")
	ctx := context.Background()

	if got, err := c.Get(ctx, "missing"); err != nil || got != 0 {
		t.Fatalf("expected zero for missing key, got %d err=%v", got, err)
	}

	_, _ = c.Incr(ctx, "a", time.Minute)
	_, _ = c.Incr(ctx, "b", time.Minute)
	if err := c.Reset(ctx, "a", "b"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, _ := c.Get(ctx, "a"); got != 0 {
		t.Fatalf("expected reset count 0, got %d", got)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatalf("empty Reset: %v", err)
	}
}

func TestRedisCounterUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewRedisCounter(rdb, "t:")
	mr.Close()

	if _, err := c.Incr(context.Background(), "k", time.Minute); !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected ErrCounterUnavailable, got %v", err)
	}
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected ErrCounterUnavailable, got %v", err)
	}
}

func TestMemoryCounterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCounter(clock.Now)
	ctx := context.Background()

	_, _ = c.Incr(ctx, "k", time.Minute)
	got, _ := c.Incr(ctx, "k", time.Minute)
	if got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	clock.Advance(59 * time.Second)
	if got, _ := c.Get(ctx, "k"); got != 2 {
		t.Fatalf("expected window still open, got %d", got)
	}

	clock.Advance(time.Second)
	if got, _ := c.Get(ctx, "k"); got != 0 {
		t.Fatalf("expected window closed, got %d", got)
	}
	if got, _ := c.Incr(ctx, "k", time.Minute); got != 1 {
		t.Fatalf("expected new window to start at 1, got %d", got)
	}
}

func TestMemoryCounterConcurrentIncr(t *testing.T) {
	c := NewMemoryCounter(nil)
	ctx := context.Background()

	const goroutines = 16
	const perG = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				_, _ = c.Incr(ctx, "k", time.Hour)
			}
		}()
	}
	wg.Wait()

	if got, _ := c.Get(ctx, "k"); got != goroutines*perG {
		t.Fatalf("expected %d, got %d", goroutines*perG, got)
	}
}

func TestMemoryCounterSweepsExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCounter(clock.Now)
	ctx := context.Background()

	_, _ = c.Incr(ctx, "stale", time.Second)
	clock.Advance(2 * time.Second)
	for i := 0; i < sweepEvery; i++ {
		_, _ = c.Incr(ctx, "hot", time.Hour)
	}

	c.mu.Lock()
	_, ok := c.entries["stale"]
	c.mu.Unlock()
	if ok {
		t.Fatal("expected stale entry to be swept")
	}
}
