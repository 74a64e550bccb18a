package main

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/caarlos0/env/v11"
	"github.com/samber/oops"
)

const envPrefix = "IDENTITYD_"

// Gateway kinds.
const (
	gatewayLocal    = "local"
	gatewayFirebase = "firebase"
)

// Notifier kinds.
const (
	notifierOutbox = "outbox"
	notifierLog    = "log"
)

// config is the process configuration, read from IDENTITYD_* variables.
type config struct {
	Addr            string        `env:"ADDR"             envDefault:":8080"`
	Production      bool          `env:"PRODUCTION"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	DatabaseURL   string `env:"DATABASE_URL"`

	Gateway          string `env:"GATEWAY"            envDefault:"local"`
	LocalSigningKey  string `env:"LOCAL_SIGNING_KEY"`
	LocalActionURL   string `env:"LOCAL_ACTION_URL"   envDefault:"http://localhost:8080/auth/action"`
	FirebaseProject  string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseAPIKey   string `env:"FIREBASE_API_KEY"`

	CodeHashKey  string `env:"CODE_HASH_KEY"`
	Notifier     string `env:"NOTIFIER"      envDefault:"outbox"`
	OutboxStream string `env:"OUTBOX_STREAM" envDefault:"goidentity:outbox"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	AllowedOrigins    []string `env:"ALLOWED_ORIGINS"     envSeparator:","`
	CookieDomain      string   `env:"COOKIE_DOMAIN"`
	CookieSecure      bool     `env:"COOKIE_SECURE"`
	TrustForwardedFor bool     `env:"TRUST_FORWARDED_FOR"`
	TrustedProxyHops  int      `env:"TRUSTED_PROXY_HOPS"  envDefault:"1"`
	PreSessionRPS     float64  `env:"PRE_SESSION_RPS"     envDefault:"1"`
	PreSessionBurst   int      `env:"PRE_SESSION_BURST"   envDefault:"10"`

	Metrics bool `env:"METRICS" envDefault:"true"`
	Audit   bool `env:"AUDIT"`
}

// loadConfig parses cfg from environ, or from the process environment when
// environ is nil.
func loadConfig(environ map[string]string) (config, error) {
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}

	var cfg config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "parse environment")
	}
	if err := cfg.validate(); err != nil {
		return config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

func (c config) validate() error {
	switch c.Gateway {
	case gatewayLocal:
		if c.LocalSigningKey != "" && len(c.LocalSigningKey) < 32 {
			return errors.New("LOCAL_SIGNING_KEY must be at least 32 bytes")
		}
	case gatewayFirebase:
		if c.FirebaseAPIKey == "" {
			return errors.New("FIREBASE_API_KEY is required for the firebase gateway")
		}
	default:
		return errors.New("GATEWAY must be local or firebase")
	}
	switch c.Notifier {
	case notifierOutbox, notifierLog:
	default:
		return errors.New("NOTIFIER must be outbox or log")
	}
	if c.Production {
		if len(c.CodeHashKey) < 32 {
			return errors.New("CODE_HASH_KEY of at least 32 bytes is required in production")
		}
		if len(c.AllowedOrigins) == 0 {
			return errors.New("ALLOWED_ORIGINS is required in production")
		}
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required in production")
		}
		if c.Gateway == gatewayLocal && c.LocalSigningKey == "" {
			return errors.New("LOCAL_SIGNING_KEY is required in production")
		}
	}
	return nil
}

func (c config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// engineConfig maps the process configuration onto the engine defaults.
func (c config) engineConfig() goIdentity.Config {
	cfg := goIdentity.DefaultConfig()
	cfg.ProductionMode = c.Production
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Metrics
	cfg.Audit.Enabled = c.Audit
	if c.CodeHashKey != "" {
		cfg.EmailChange.CodeHashKey = []byte(c.CodeHashKey)
	}
	return cfg
}

// httpConfig maps the process configuration onto the HTTP surface defaults.
func (c config) httpConfig(logger *slog.Logger) httpapi.Config {
	cfg := httpapi.DefaultConfig()
	cfg.CookieDomain = c.CookieDomain
	cfg.CookieSecure = c.CookieSecure || c.Production
	cfg.AllowedOrigins = c.AllowedOrigins
	cfg.TrustForwardedFor = c.TrustForwardedFor
	cfg.TrustedProxyHops = c.TrustedProxyHops
	cfg.PreSessionRPS = c.PreSessionRPS
	cfg.PreSessionBurst = c.PreSessionBurst
	cfg.Logger = logger
	return cfg
}
