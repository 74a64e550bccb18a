package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal/rate"
)

var (
	ErrEmailChangeRateLimited        = errors.New("email change rate limited")
	ErrEmailChangeLimiterUnavailable = errors.New("email change limiter unavailable")
)

type EmailChangeConfig struct {
	MaxInitiateAttempts int
	InitiateWindow      time.Duration
	MaxVerifyAttempts   int
	VerifyWindow        time.Duration
}

// EmailChangeLimiter throttles email change initiate and verify per user.
// Every attempt counts, successful or not.
type EmailChangeLimiter struct {
	initiate *rate.Limiter
	verify   *rate.Limiter
}

func NewEmailChangeLimiter(counter rate.Counter, cfg EmailChangeConfig) *EmailChangeLimiter {
	return &EmailChangeLimiter{
		initiate: rate.New(counter, rate.Policy{Max: cfg.MaxInitiateAttempts, Window: cfg.InitiateWindow}),
		verify:   rate.New(counter, rate.Policy{Max: cfg.MaxVerifyAttempts, Window: cfg.VerifyWindow}),
	}
}

func (l *EmailChangeLimiter) CheckInitiate(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapEmailChangeErr(l.initiate.Hit(ctx, emailChangeInitiateKey(userID)))
}

func (l *EmailChangeLimiter) CheckVerify(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapEmailChangeErr(l.verify.Hit(ctx, emailChangeVerifyKey(userID)))
}

// ResetVerify clears the verify counter once a change completes or a new
// code is issued.
func (l *EmailChangeLimiter) ResetVerify(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapEmailChangeErr(l.verify.Reset(ctx, emailChangeVerifyKey(userID)))
}

func mapEmailChangeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrEmailChangeRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrEmailChangeLimiterUnavailable, err)
	}
}

func emailChangeInitiateKey(userID string) string {
	return "lec:i:" + userID
}

func emailChangeVerifyKey(userID string) string {
	return "lec:v:" + userID
}
