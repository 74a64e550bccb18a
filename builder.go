package goIdentity

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/outbound"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/redis/go-redis/v9"
)

const generatedCodeHashKeySize = 32

// Builder defines a public type used by goIdentity APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	gateway  CredentialGateway
	profiles ProfileStore
	notifier Notifier
	reporter ErrorReporter
	logger   *slog.Logger

	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; start from [DefaultConfig].
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the shared rate-limit counters. It is
// required unless Config.RateLimit.Backend is [RateLimitMemory].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithGateway sets the identity provider. Required.
func (b *Builder) WithGateway(gw CredentialGateway) *Builder {
	b.gateway = gw
	return b
}

// WithProfileStore sets the profile store. Required.
func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

// WithNotifier sets the outbound email sender. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithErrorReporter sets the error tracking sink. Without one, reports are
// dropped.
func (b *Builder) WithErrorReporter(r ErrorReporter) *Builder {
	b.reporter = r
	return b
}

// WithLogger sets the structured logger. Defaults to [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink has no effect unless Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the bearer validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when configuration validation fails or a required collaborator is missing.
// A Builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.gateway == nil {
		return nil, errors.New("credential gateway required")
	}
	if b.profiles == nil {
		return nil, errors.New("profile store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	var counter rate.Counter
	switch cfg.RateLimit.Backend {
	case RateLimitRedis:
		if b.redis == nil {
			return nil, errors.New("redis client required for the redis rate limit backend")
		}
		counter = rate.NewRedisCounter(b.redis, cfg.RateLimit.RedisPrefix)
	case RateLimitMemory:
		counter = rate.NewMemoryCounter(b.now)
	}

	if len(cfg.EmailChange.CodeHashKey) == 0 {
		key, err := internal.NewSecret(generatedCodeHashKeySize)
		if err != nil {
			return nil, err
		}
		cfg.EmailChange.CodeHashKey = key
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cfg,
		gateway:  b.gateway,
		profiles: b.profiles,
		notifier: b.notifier,
		reporter: b.reporter,
		logger:   logger,
		now:      now,
	}

	if cfg.Login.EnableRateLimit {
		engine.loginLimiter = limiters.NewLoginLimiter(counter, limiters.LoginConfig{
			EnableIPThrottle: cfg.Login.EnableIPThrottle,
			MaxAttempts:      cfg.Login.MaxAttempts,
			Cooldown:         cfg.Login.Cooldown,
		})
	}
	engine.emailChangeLimiter = limiters.NewEmailChangeLimiter(counter, limiters.EmailChangeConfig{
		MaxInitiateAttempts: cfg.EmailChange.MaxInitiateAttempts,
		InitiateWindow:      cfg.EmailChange.InitiateWindow,
		MaxVerifyAttempts:   cfg.EmailChange.MaxVerifyAttempts,
		VerifyWindow:        cfg.EmailChange.VerifyWindow,
	})

	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.outbound = outbound.New(outbound.Config{
		BufferSize: cfg.Notifications.BufferSize,
		Workers:    cfg.Notifications.Workers,
		DropIfFull: cfg.Notifications.DropIfFull,
		Timeout:    cfg.Notifications.SendTimeout,
	}, engine.onNotificationError)
	engine.flow = engine.newFlowService()

	for _, w := range cfg.Lint() {
		logger.Warn("goIdentity: config lint", "code", w.Code, "message", w.Message)
	}

	b.built = true

	return engine, nil
}
