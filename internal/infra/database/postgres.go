package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/octopis-auth/internal/infra/config"
)

// ErrDatabaseUnreachable is returned when every startup ping failed.
var ErrDatabaseUnreachable = errors.New("database: not reachable after retries")

type pinger interface {
	Ping(ctx context.Context) error
}

// NewPostgresPool opens a pgx pool sized from cfg and blocks until the server
// answers a ping or the retry budget is spent.
func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}
	applyPoolSettings(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := waitForDatabase(ctx, pool, cfg.ConnectRetries, cfg.ConnectRetryDelay, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)

	return pool, nil
}

func applyPoolSettings(pc *pgxpool.Config, cfg config.PostgresSettings) {
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
}

// waitForDatabase pings up to attempts times, sleeping delay between failures.
func waitForDatabase(ctx context.Context, db pinger, attempts int, delay time.Duration, log *zap.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = db.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("database is ready", zap.Int("attempt", attempt))
			}
			return nil
		}

		log.Warn("database not ready",
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(lastErr),
		)
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrDatabaseUnreachable, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %w", ErrDatabaseUnreachable, lastErr)
}
