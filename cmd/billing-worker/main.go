package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/hosting-billing/internal/api"
	"github.com/edvin/hosting-billing/internal/api/handler"
	"github.com/edvin/hosting-billing/internal/billing"
	"github.com/edvin/hosting-billing/internal/cache"
	"github.com/edvin/hosting-billing/internal/config"
	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/db"
	"github.com/edvin/hosting-billing/internal/events"
	"github.com/edvin/hosting-billing/internal/logging"
	"github.com/edvin/hosting-billing/internal/metrics"
	"github.com/edvin/hosting-billing/internal/provision"
	"github.com/edvin/hosting-billing/internal/queue"
	"github.com/edvin/hosting-billing/internal/scheduler"
)

const janitorInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("billing worker stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, pool); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	store, err := newCacheStore(cfg, rdb)
	if err != nil {
		return err
	}
	responseCache := cache.New(store, logging.Component(logger, "cache"))

	q := queue.New(queue.Config{
		Concurrency:      cfg.QueueConcurrency,
		MaxRetries:       cfg.QueueMaxRetries,
		Timeout:          cfg.QueueTimeout,
		BackoffBase:      cfg.QueueBackoffBase,
		BackoffMax:       cfg.QueueBackoffMax,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}, logger)

	backend, readyChecks, closeBackend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()
	readyChecks = append(readyChecks, api.Check{Name: "db", Fn: pool.Ping})
	if rdb != nil {
		readyChecks = append(readyChecks, api.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	provisioner := provision.NewService(backend, q, responseCache, logger)

	dispatcher := events.NewDispatcher(cfg.EventBuffer, logger, newEventSinks(cfg, rdb, logger)...)

	services := core.NewServices(pool)
	configSource, configSaver := billingConfigSource(cfg, services)

	engine := billing.NewEngine(configSource, services.Resources, services.Ledger, provisioner, dispatcher, logger)
	sched := scheduler.New(configSource, engine, logger)

	srv := api.NewServer(logger, api.Deps{
		AdminAPIKey:   cfg.AdminAPIKey,
		Cache:         responseCache,
		Queue:         q,
		BillingConfig: configSource,
		ConfigSaver:   configSaver,
		Scheduler:     sched,
		Resources:     services.Resources,
		Status:        provisioner,
		Manager:       engine,
		Ledger:        services.Ledger,
		ReadyChecks:   readyChecks,
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})

	if _, ok := store.(*cache.MemoryStore); ok {
		g.Go(func() error {
			responseCache.RunJanitor(gctx, janitorInterval, cfg.CacheStaleRetention)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting admin API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API server: %w", err)
		}
		return nil
	})

	if err := sched.Start(gctx); err != nil {
		logger.Warn().Err(err).Msg("scheduler not armed at startup; fix the billing config and send SIGHUP or PUT /admin/billing/config")
	}

	g.Go(func() error {
		reloadOnHangup(gctx, sched, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newCacheStore(cfg *config.Config, rdb *redis.Client) (cache.Store, error) {
	if cfg.CacheBackend == config.CacheRedis {
		return cache.NewRedisStore(rdb, cfg.CacheStaleRetention), nil
	}
	return cache.NewMemoryStore(cfg.CacheMaxEntries)
}

// newBackend builds the provisioning backend plus its readiness checks and a
// cleanup func.
func newBackend(cfg *config.Config, logger zerolog.Logger) (provision.Backend, []api.Check, func(), error) {
	if cfg.ProvisioningBackend == config.ProvisioningHTTP {
		return provision.NewHTTPClient(cfg.ProvisioningAPIURL, cfg.ProvisioningAPIKey), nil, func() {}, nil
	}

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configure temporal TLS: %w", err)
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to temporal: %w", err)
	}

	check := api.Check{Name: "temporal", Fn: func(ctx context.Context) error {
		_, err := tc.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}}
	return provision.NewWorkflowClient(tc, cfg.TemporalTaskQueue), []api.Check{check}, tc.Close, nil
}

func newEventSinks(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) []events.Sink {
	var sinks []events.Sink
	if cfg.EventWebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.EventWebhookURL))
	}
	if cfg.EventRedisChannel != "" {
		sinks = append(sinks, events.NewRedisSink(rdb, cfg.EventRedisChannel))
	}
	if len(sinks) == 0 {
		logger.Info().Msg("no event sinks configured, domain events are dropped")
	}
	return sinks
}

// billingConfigSource picks the YAML file when configured, which makes the
// config read-only over the admin API.
func billingConfigSource(cfg *config.Config, services *core.Services) (billing.ConfigSource, handler.ConfigSaver) {
	if cfg.BillingConfigFile != "" {
		return config.NewBillingFile(cfg.BillingConfigFile), nil
	}
	return services.Settings, services.Settings
}

func reloadOnHangup(ctx context.Context, sched *scheduler.Scheduler, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info().Msg("SIGHUP received, reloading billing config")
			if err := sched.Reload(ctx); err != nil {
				logger.Error().Err(err).Msg("reload billing config")
			}
		}
	}
}
