package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/rate"
)

var (
	ErrLoginRateLimited        = errors.New("login rate limited")
	ErrLoginLimiterUnavailable = errors.New("login limiter unavailable")
)

type LoginConfig struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

// LoginLimiter counts failed logins per email and, optionally, per client IP.
type LoginLimiter struct {
	limiter *rate.Limiter
	config  LoginConfig
}

func NewLoginLimiter(counter rate.Counter, cfg LoginConfig) *LoginLimiter {
	return &LoginLimiter{
		limiter: rate.New(counter, rate.Policy{Max: cfg.MaxAttempts, Window: cfg.Cooldown}),
		config:  cfg,
	}
}

// Check reports ErrLoginRateLimited when the email or IP has used its
// failure budget. It does not count as an attempt.
func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Check(ctx, loginEmailKey(email)); err != nil {
		return mapLoginErr(err)
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.limiter.Check(ctx, loginIPKey(ip)); err != nil {
			return mapLoginErr(err)
		}
	}
	return nil
}

// RecordFailure counts one failed attempt for the email and IP.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Hit(ctx, loginEmailKey(email)); err != nil {
		return mapLoginErr(err)
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.limiter.Hit(ctx, loginIPKey(ip)); err != nil {
			return mapLoginErr(err)
		}
	}
	return nil
}

// Reset clears the email counter after a successful login. The IP counter is
// left to expire so one valid account cannot unlock an address.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return mapLoginErr(l.limiter.Reset(ctx, loginEmailKey(email)))
}

func mapLoginErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrLoginRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrLoginLimiterUnavailable, err)
	}
}

func loginEmailKey(email string) string {
	return "ll:e:" + strings.ToLower(strings.TrimSpace(email))
}

func loginIPKey(ip string) string {
	return "ll:ip:" + ip
}
