package rate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterHitAllowsBudgetThenLimits(t *testing.T) {
	l := New(NewMemoryCounter(nil), Policy{Max: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Hit(ctx, "k"); err != nil {
			t.Fatalf("hit %d: unexpected %v", i+1, err)
		}
	}
	if err := l.Hit(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLimiterCheckDoesNotCount(t *testing.T) {
	l := New(NewMemoryCounter(nil), Policy{Max: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, "k"); err != nil {
			t.Fatalf("check %d: unexpected %v", i, err)
		}
	}

	_ = l.Hit(ctx, "k")
	_ = l.Hit(ctx, "k")
	if err := l.Check(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected exhausted budget, got %v", err)
	}

	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Check(ctx, "k"); err != nil {
		t.Fatalf("expected budget restored, got %v", err)
	}
}

func TestLimiterDisabledAndNil(t *testing.T) {
	ctx := context.Background()

	var nilLimiter *Limiter
	if err := nilLimiter.Hit(ctx, "k"); err != nil {
		t.Fatalf("nil limiter must not limit: %v", err)
	}

	disabled := New(NewMemoryCounter(nil), Policy{})
	for i := 0; i < 100; i++ {
		if err := disabled.Hit(ctx, "k"); err != nil {
			t.Fatalf("disabled policy must not limit: %v", err)
		}
	}
}

func TestLimiterPropagatesBackendErrors(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(NewRedisCounter(rdb, "t:"), Policy{Max: 1, Window: time.Minute})
	mr.Close()

	err := l.Hit(context.Background(), "k")
	if !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected ErrCounterUnavailable, got %v", err)
	}
}
