package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/errtrack"
	"github.com/MrEthical07/goIdentity/gateway/firebase"
	"github.com/MrEthical07/goIdentity/gateway/local"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/profile/memory"
	"github.com/MrEthical07/goIdentity/profile/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const sentryFlushTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the identity HTTP routes",
		Long: `Serve registration, login, refresh, email verification and email change
routes. With --dev the process runs against an embedded Redis, the local
identity provider and an in-memory profile store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel()}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, dev, logger)
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "run with embedded Redis and in-memory stores")

	return cmd
}

// service is everything serve wires together. close releases it in
// reverse order of acquisition.
type service struct {
	engine  *goIdentity.Engine
	handler http.Handler
	closers []func() error
}

func (s *service) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *service) close() error {
	if s.engine != nil {
		s.engine.Close()
	}
	var errs []error
	for _, fn := range slices.Backward(s.closers) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runServe(ctx context.Context, cfg config, dev bool, logger *slog.Logger) error {
	svc, err := buildService(ctx, cfg, dev, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "dev", dev, "gateway", cfg.Gateway)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return oops.Code("SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

func buildService(ctx context.Context, cfg config, dev bool, logger *slog.Logger) (*service, error) {
	svc := &service{}
	fail := func(err error) (*service, error) {
		_ = svc.close()
		return nil, err
	}

	client, err := openRedis(cfg, dev, svc)
	if err != nil {
		return fail(err)
	}
	checks := map[string]httpapi.HealthCheck{
		"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}

	gw, err := openGateway(ctx, cfg, client)
	if err != nil {
		return fail(err)
	}

	var profiles goIdentity.ProfileStore
	if dev || cfg.DatabaseURL == "" {
		logger.Warn("using in-memory profile store")
		profiles = memory.New()
	} else {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		svc.onClose(func() error { pool.Close(); return nil })
		store := postgres.New(pool)
		checks["postgres"] = store.Ping
		profiles = store
	}

	var notifier goIdentity.Notifier
	if dev || cfg.Notifier == notifierLog {
		notifier = notify.NewLog(logger)
	} else {
		outbox, err := notify.NewOutbox(client, notify.WithStream(cfg.OutboxStream))
		if err != nil {
			return fail(oops.Code("NOTIFIER_INVALID").Wrap(err))
		}
		notifier = outbox
	}

	var reporter goIdentity.ErrorReporter = errtrack.NewLog(logger)
	if cfg.SentryDSN != "" && !dev {
		sentryReporter, err := errtrack.NewSentry(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     version,
		})
		if err != nil {
			return fail(oops.Code("SENTRY_INIT_FAILED").Wrap(err))
		}
		svc.onClose(func() error { sentryReporter.Flush(sentryFlushTimeout); return nil })
		reporter = sentryReporter
	}

	builder := goIdentity.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(client).
		WithGateway(gw).
		WithProfileStore(profiles).
		WithNotifier(notifier).
		WithErrorReporter(reporter).
		WithLogger(logger)
	if cfg.Audit {
		builder = builder.WithAuditSink(goIdentity.NewSlogSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fail(oops.Code("ENGINE_INVALID").Wrap(err))
	}
	svc.engine = engine

	httpCfg := cfg.httpConfig(logger)
	httpCfg.HealthChecks = checks
	if cfg.Metrics {
		h, err := prometheus.Handler(engine)
		if err != nil {
			return fail(oops.Code("METRICS_INIT_FAILED").Wrap(err))
		}
		httpCfg.MetricsHandler = h
	}

	handler, err := httpapi.New(engine, httpCfg)
	if err != nil {
		return fail(oops.Code("HTTP_CONFIG_INVALID").Wrap(err))
	}
	svc.handler = handler
	return svc, nil
}

func openRedis(cfg config, dev bool, svc *service) (redis.UniversalClient, error) {
	addr := cfg.RedisAddr
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").Wrapf(err, "start embedded redis")
		}
		svc.onClose(func() error { mr.Close(); return nil })
		addr = mr.Addr()
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
	})
	svc.onClose(client.Close)
	return client, nil
}

func openGateway(ctx context.Context, cfg config, client redis.UniversalClient) (goIdentity.CredentialGateway, error) {
	switch cfg.Gateway {
	case gatewayFirebase:
		gw, err := firebase.New(ctx, firebase.Config{
			ProjectID:       cfg.FirebaseProject,
			CredentialsFile: cfg.FirebaseCredFile,
			APIKey:          cfg.FirebaseAPIKey,
		})
		if err != nil {
			return nil, oops.Code("GATEWAY_INIT_FAILED").With("gateway", cfg.Gateway).Wrap(err)
		}
		return gw, nil
	default:
		key := []byte(cfg.LocalSigningKey)
		if len(key) == 0 {
			generated, err := internal.NewSecret(32)
			if err != nil {
				return nil, err
			}
			key = generated
		}
		lcfg := local.DefaultConfig(key)
		lcfg.ActionURL = cfg.LocalActionURL
		gw, err := local.New(client, lcfg)
		if err != nil {
			return nil, oops.Code("GATEWAY_INIT_FAILED").With("gateway", cfg.Gateway).Wrap(err)
		}
		return gw, nil
	}
}
