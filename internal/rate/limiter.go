package rate

import (
	"context"
	"time"
)

// Policy is a {max hits, window} budget.
type Policy struct {
	Max    int
	Window time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.Max > 0 && p.Window > 0
}

// Limiter applies a [Policy] to keys of a [Counter].
type Limiter struct {
	counter Counter
	policy  Policy
}

// New creates a [Limiter]. A nil counter or disabled policy yields a limiter
// that never limits.
func New(counter Counter, policy Policy) *Limiter {
	return &Limiter{
		counter: counter,
		policy:  policy,
	}
}

// Check reports [ErrRateLimited] when key has already used its budget. It
// does not count as a hit.
func (l *Limiter) Check(ctx context.Context, key string) error {
	if l == nil || l.counter == nil || !l.policy.Enabled() {
		return nil
	}

	count, err := l.counter.Get(ctx, key)
	if err != nil {
		return err
	}
	if count >= int64(l.policy.Max) {
		return ErrRateLimited
	}
	return nil
}

// Hit records one hit for key and reports [ErrRateLimited] when this hit
// exceeds the budget.
func (l *Limiter) Hit(ctx context.Context, key string) error {
	if l == nil || l.counter == nil || !l.policy.Enabled() {
		return nil
	}

	count, err := l.counter.Incr(ctx, key, l.policy.Window)
	if err != nil {
		return err
	}
	if count > int64(l.policy.Max) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the windows for keys.
func (l *Limiter) Reset(ctx context.Context, keys ...string) error {
	if l == nil || l.counter == nil {
		return nil
	}
	return l.counter.Reset(ctx, keys...)
}
