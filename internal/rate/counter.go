package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is an atomic fixed-window increment interface.
type Counter interface {
	// Incr adds one hit to key and returns the count inside the current
	// window. The window starts on the first hit and lasts for window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Get returns the count inside the current window, or zero.
	Get(ctx context.Context, key string) (int64, error)
	// Reset discards the windows for keys.
	Reset(ctx context.Context, keys ...string) error
}

// Fixed-window semantics: set TTL only for the first hit in the window.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounter implements [Counter] with Redis string counters.
type RedisCounter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a [RedisCounter]. prefix is prepended to every key.
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{
		redis:  client,
		prefix: prefix,
	}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	count, err := incrWindowScript.Run(ctx, c.redis, []string{c.prefix + key}, ms).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return count, nil
}

func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := c.redis.Get(ctx, c.prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

func (c *RedisCounter) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefix + k
	}
	if err := c.redis.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}

type windowEntry struct {
	start  time.Time
	window time.Duration
	count  int64
}

func (w windowEntry) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.window))
}

// MemoryCounter implements [Counter] in process memory. Expired windows are
// swept every sweepEvery increments.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]windowEntry
	now     func() time.Time
	hits    uint64
}

const sweepEvery = 512

// NewMemoryCounter creates an empty [MemoryCounter]. now may be nil.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{
		entries: make(map[string]windowEntry),
		now:     now,
	}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	if c.hits%sweepEvery == 0 {
		for k, e := range c.entries {
			if e.expired(now) {
				delete(c.entries, k)
			}
		}
	}

	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		e = windowEntry{start: now, window: window}
	}
	e.count++
	c.entries[key] = e
	return e.count, nil
}

func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		return 0, nil
	}
	return e.count, nil
}

func (c *MemoryCounter) Reset(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}
