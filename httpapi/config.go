package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/goIdentity/middleware"
)

// HealthCheck probes one dependency for GET /healthz.
type HealthCheck func(ctx context.Context) error

// Config configures the HTTP surface.
type Config struct {
	RefreshCookieName string
	RefreshCookieTTL  time.Duration
	CookieDomain      string
	// CookieSecure marks cookies Secure. It is forced on in production mode.
	CookieSecure   bool
	CookieSameSite http.SameSite

	// AllowedOrigins are application URLs accepted as Origin or Referer for
	// unsafe requests in production mode.
	AllowedOrigins []string
	// TrustForwardedFor reads the client IP from X-Forwarded-For, skipping
	// TrustedProxyHops entries appended by the proxies in front.
	TrustForwardedFor bool
	TrustedProxyHops  int

	// PreSessionRPS and PreSessionBurst size the per-IP token bucket on
	// pre-session routes. Zero disables throttling.
	PreSessionRPS   float64
	PreSessionBurst int

	MaxBodyBytes int64

	HealthChecks   map[string]HealthCheck
	HealthTimeout  time.Duration
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// DefaultConfig returns cookie and throttle settings suited to a browser
// client on the same site.
func DefaultConfig() Config {
	return Config{
		RefreshCookieName: "refresh_token",
		RefreshCookieTTL:  30 * 24 * time.Hour,
		CookieSameSite:    http.SameSiteStrictMode,
		PreSessionRPS:     1,
		PreSessionBurst:   10,
		TrustedProxyHops:  1,
		MaxBodyBytes:      1 << 20,
		HealthTimeout:     2 * time.Second,
	}
}

func (c *Config) validate(production bool) error {
	if c.RefreshCookieName == "" {
		return errors.New("httpapi RefreshCookieName must be set")
	}
	if c.RefreshCookieTTL <= 0 {
		return errors.New("httpapi RefreshCookieTTL must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("httpapi MaxBodyBytes must be > 0")
	}
	if c.HealthTimeout <= 0 {
		return errors.New("httpapi HealthTimeout must be > 0")
	}
	if c.TrustForwardedFor && c.TrustedProxyHops < 1 {
		return errors.New("httpapi TrustedProxyHops must be >= 1 when TrustForwardedFor is set")
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = http.SameSiteStrictMode
	}
	if production {
		c.CookieSecure = true
		if len(c.AllowedOrigins) == 0 {
			return errors.New("httpapi AllowedOrigins must be set in production mode")
		}
	}
	if _, err := middleware.OriginsFromURLs(c.AllowedOrigins...); err != nil {
		return err
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

func (c Config) proxyHops() int {
	if !c.TrustForwardedFor {
		return 0
	}
	return c.TrustedProxyHops
}
