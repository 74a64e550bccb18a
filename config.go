package goIdentity

import (
	"errors"
	"time"
)

// Config is the Engine configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] calls [Config.Validate].
type Config struct {
	Gateway       GatewayConfig
	Password      PasswordPolicyConfig
	Login         LoginConfig
	EmailChange   EmailChangeConfig
	Notifications NotificationConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Reporting     ReportingConfig
	Messages      MessageConfig

	// ProductionMode tightens validation: email change codes must be hashed
	// with a configured shared key.
	ProductionMode bool
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig bounds calls to the identity provider.
type GatewayConfig struct {
	// Timeout applies to every provider call. A timeout surfaces as
	// ErrAuthenticationFailed on login and ErrRefreshToken on refresh.
	Timeout time.Duration
}

/*
====================================
PASSWORD / LOGIN CONFIG
====================================
*/

// PasswordPolicyConfig is enforced on registration.
type PasswordPolicyConfig struct {
	MinLength int
	MaxLength int
}

// LoginConfig controls the failed-login limiter.
type LoginConfig struct {
	EnableRateLimit  bool
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

/*
====================================
EMAIL CHANGE CONFIG
====================================
*/

// EmailChangeConfig controls the email change state machine.
type EmailChangeConfig struct {
	// CodeLength is the number of digits in a verification code.
	CodeLength int
	// TokenTTL is the verification window measured from initiate.
	TokenTTL time.Duration
	// CodeHashKey keys the digest stored in place of the code. When empty a
	// random per-process key is generated, which only works on one instance.
	CodeHashKey []byte
	// RequirePassword re-verifies the current password on initiate.
	RequirePassword bool

	MaxInitiateAttempts int
	InitiateWindow      time.Duration
	MaxVerifyAttempts   int
	VerifyWindow        time.Duration
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig controls the fire-and-forget notification dispatcher.
type NotificationConfig struct {
	BufferSize  int
	Workers     int
	DropIfFull  bool
	SendTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitBackend selects where limiter counters live.
type RateLimitBackend string

const (
	// RateLimitRedis shares counters across instances through Redis.
	RateLimitRedis RateLimitBackend = "redis"
	// RateLimitMemory keeps counters in process memory.
	RateLimitMemory RateLimitBackend = "memory"
)

// RateLimitConfig selects the counter backend.
type RateLimitConfig struct {
	Backend     RateLimitBackend
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS / REPORTING CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ReportingConfig controls forwarding to the [ErrorReporter].
type ReportingConfig struct {
	Enabled bool
	// RedactKeys are extra field names scrubbed from report payloads, on top
	// of the built-in password, token, cookie and authorization keys.
	RedactKeys []string
}

// MessageConfig holds caller-facing messages.
type MessageConfig struct {
	// RegisteredNoSession is returned when registration succeeds but the
	// automatic login does not.
	RegisteredNoSession string
	// Registered is returned on a fully successful registration.
	Registered string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a development-ready configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Timeout: 8 * time.Second,
		},
		Password: PasswordPolicyConfig{
			MinLength: 6,
			MaxLength: 128,
		},
		Login: LoginConfig{
			EnableRateLimit:  true,
			EnableIPThrottle: false,
			MaxAttempts:      5,
			Cooldown:         15 * time.Minute,
		},
		EmailChange: EmailChangeConfig{
			CodeLength:          6,
			TokenTTL:            24 * time.Hour,
			RequirePassword:     true,
			MaxInitiateAttempts: 5,
			InitiateWindow:      time.Hour,
			MaxVerifyAttempts:   5,
			VerifyWindow:        15 * time.Minute,
		},
		Notifications: NotificationConfig{
			BufferSize:  256,
			Workers:     2,
			DropIfFull:  true,
			SendTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend:     RateLimitRedis,
			RedisPrefix: "gi:",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Reporting: ReportingConfig{
			Enabled: true,
		},
		Messages: MessageConfig{
			Registered:          "registered",
			RegisteredNoSession: "registered, please log in",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.EmailChange.CodeHashKey = cloneBytes(cfg.EmailChange.CodeHashKey)
	if cfg.Reporting.RedactKeys != nil {
		out.Reporting.RedactKeys = append([]string(nil), cfg.Reporting.RedactKeys...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Gateway
	if c.Gateway.Timeout <= 0 {
		return errors.New("Gateway Timeout must be > 0")
	}

	// Password
	if c.Password.MinLength < 6 {
		return errors.New("Password MinLength must be >= 6")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MaxLength > 1024 {
		return errors.New("Password MaxLength must be <= 1024")
	}

	// Login
	if c.Login.EnableRateLimit {
		if c.Login.MaxAttempts <= 0 {
			return errors.New("Login MaxAttempts must be > 0 when rate limiting is enabled")
		}
		if c.Login.Cooldown <= 0 {
			return errors.New("Login Cooldown must be > 0 when rate limiting is enabled")
		}
	}

	// Email change
	if c.EmailChange.CodeLength < 6 || c.EmailChange.CodeLength > 10 {
		return errors.New("EmailChange CodeLength must be between 6 and 10")
	}
	if c.EmailChange.TokenTTL <= 0 {
		return errors.New("EmailChange TokenTTL must be > 0")
	}
	if c.EmailChange.MaxVerifyAttempts <= 0 || c.EmailChange.VerifyWindow <= 0 {
		return errors.New("EmailChange verify throttling must be enabled")
	}
	if c.EmailChange.MaxInitiateAttempts < 0 || c.EmailChange.InitiateWindow < 0 {
		return errors.New("EmailChange initiate throttling must be >= 0")
	}
	if len(c.EmailChange.CodeHashKey) > 0 && len(c.EmailChange.CodeHashKey) < 32 {
		return errors.New("EmailChange CodeHashKey must be >= 32 bytes")
	}
	if c.ProductionMode && len(c.EmailChange.CodeHashKey) == 0 {
		return errors.New("EmailChange CodeHashKey is required in production mode")
	}

	// Notifications
	if c.Notifications.BufferSize <= 0 {
		return errors.New("Notifications BufferSize must be > 0")
	}
	if c.Notifications.Workers <= 0 {
		return errors.New("Notifications Workers must be > 0")
	}
	if c.Notifications.SendTimeout <= 0 {
		return errors.New("Notifications SendTimeout must be > 0")
	}

	// Rate limit
	switch c.RateLimit.Backend {
	case RateLimitRedis, RateLimitMemory:
	default:
		return errors.New("RateLimit Backend must be 'redis' or 'memory'")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration concern.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but risky.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if !c.Login.EnableRateLimit {
		ws = append(ws, LintWarning{Code: "login_rate_limit_disabled", Message: "login attempts are not rate limited"})
	}
	if c.EmailChange.TokenTTL > 24*time.Hour {
		ws = append(ws, LintWarning{Code: "email_change_ttl_long", Message: "email change codes stay valid for more than 24h"})
	}
	if c.EmailChange.MaxVerifyAttempts > 10 {
		ws = append(ws, LintWarning{Code: "email_change_verify_budget_large", Message: "more than 10 verify attempts per window weakens numeric codes"})
	}
	if !c.EmailChange.RequirePassword {
		ws = append(ws, LintWarning{Code: "email_change_without_password", Message: "email change does not re-confirm the current password"})
	}
	if c.Gateway.Timeout > 30*time.Second {
		ws = append(ws, LintWarning{Code: "gateway_timeout_long", Message: "identity provider timeout exceeds 30s"})
	}
	if c.RateLimit.Backend == RateLimitMemory && c.ProductionMode {
		ws = append(ws, LintWarning{Code: "memory_rate_limit_in_production", Message: "in-process counters are not shared across instances"})
	}
	if !c.Audit.Enabled {
		ws = append(ws, LintWarning{Code: "audit_disabled", Message: "audit events are not recorded"})
	}
	if !c.Reporting.Enabled {
		ws = append(ws, LintWarning{Code: "reporting_disabled", Message: "unexpected failures are not forwarded to error tracking"})
	}

	return ws
}
