package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/octopis-auth/internal/core/port"
	"github.com/arklim/octopis-auth/internal/infra/config"
	"github.com/arklim/octopis-auth/internal/infra/database"
	kafkainfra "github.com/arklim/octopis-auth/internal/infra/kafka"
	"github.com/arklim/octopis-auth/internal/infra/logger"
	redisinfra "github.com/arklim/octopis-auth/internal/infra/redis"
	"github.com/arklim/octopis-auth/internal/infra/security"
	"github.com/arklim/octopis-auth/internal/infra/telemetry"
	"github.com/arklim/octopis-auth/internal/repository/memory"
	postgresrepo "github.com/arklim/octopis-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/octopis-auth/internal/repository/redis"
	"github.com/arklim/octopis-auth/internal/transport/http/middleware"
	"github.com/arklim/octopis-auth/internal/transport/http/routes"
	"github.com/arklim/octopis-auth/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	store    *postgresrepo.Store
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
	limiter  *memory.SlidingWindowStore
	metrics  *telemetry.AuthMetrics
}

func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = telemetry.NewAuthMetrics(registry)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	if cfg.Telemetry.TracingEnabled {
		a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.store = postgresrepo.NewStore(pool)

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, cfg.Postgres.DSN(), log); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	repos := postgresrepo.NewRepositories(pool)

	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	var revocations port.RevocationStore = repos.RefreshTokens
	if cfg.Revocation.Backend == config.RevocationBackendRedis {
		revocations = redisrepo.NewRevocationRepository(a.redis.Client(), cfg.Redis.RevocationPrefix)
	}
	log.Info("refresh token ledger selected", zap.String("backend", cfg.Revocation.Backend))

	signer, err := security.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	events := a.eventPublisher()

	tokens := usecase.NewTokenService(signer, revocations, repos.Users, usecase.TokenSettings{
		AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
	}, log).WithMetrics(a.metrics)

	authService := usecase.NewAuthService(repos.Users, hasher, tokens, revocations, events, log)

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		a.limiter = memory.NewSlidingWindowStore(memory.SlidingWindowConfig{
			MaxRequests: cfg.RateLimit.Requests,
			Window:      cfg.RateLimit.Window(),
			Shards:      cfg.RateLimit.Shards,
		})
		rateLimiter = middleware.NewRateLimiter(a.limiter, a.metrics, log)
		log.Info("auth rate limiter enabled",
			zap.Int("requests", cfg.RateLimit.Requests),
			zap.Duration("window", cfg.RateLimit.Window()),
		)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Database:    a.store,
	}
	if a.tracer != nil {
		deps.Tracer = a.tracer.Provider()
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	return a, nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.release()

	if a.limiter != nil {
		go a.limiter.Run(ctx, a.cfg.RateLimit.SweepInterval, a.onSweep)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down auth API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) onSweep(removed int) {
	if removed > 0 {
		a.metrics.RateLimitSwept.Add(float64(removed))
		a.logger.Debug("rate limiter swept idle keys", zap.Int("removed", removed))
	}
	a.metrics.ObserveTrackedKeys(a.limiter.Len())
}

// release closes every backend opened by New. Safe to call more than once.
func (a *Application) release() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
		a.producer = nil
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		cancel()
		a.tracer = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}
