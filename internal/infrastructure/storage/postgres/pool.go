// Package postgres provides PostgreSQL infrastructure components: pools,
// transactions that carry the tenant context, maintenance sessions and
// migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"okrtrack/pkg/logger"
)

// ErrNoDSN is returned when a pool is created without a connection string.
var ErrNoDSN = errors.New("database connection string is required")

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration

	// ConnectRetries is how many times the initial connect is attempted.
	ConnectRetries uint

	// ApplicationName is reported in pg_stat_activity.
	ApplicationName string
}

// DefaultPoolConfig returns sensible defaults for production.
func DefaultPoolConfig(dsn string) PoolConfig {
	cfg := PoolConfig{DSN: dsn}
	cfg.ApplyDefaults()
	return cfg
}

// AdminPoolConfig is the configuration of the installer pool: one connection,
// never shared with request traffic.
func AdminPoolConfig(dsn string) PoolConfig {
	cfg := DefaultPoolConfig(dsn)
	cfg.MaxConns = 1
	cfg.MinConns = 0
	cfg.ApplicationName = "okrtrack-admin"
	return cfg
}

// Validate checks that the pool configuration is usable.
func (c *PoolConfig) Validate() error {
	if c.DSN == "" {
		return ErrNoDSN
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *PoolConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = 5
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "okrtrack"
	}
}

// Pool wraps pgxpool.Pool together with the guard that polices tenant
// context on released connections.
type Pool struct {
	*pgxpool.Pool
	guard *Guard
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// Guard returns the pool's release guard.
func (p *Pool) Guard() *Guard {
	return p.guard
}

// NewPool creates the request-traffic pool.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	appName := cfg.ApplicationName
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SELECT set_config('application_name', $1, false)", appName)
		return err
	}

	guard := NewGuard()
	poolConfig.AfterRelease = guard.AfterRelease

	pool, err := connectWithRetry(ctx, poolConfig, cfg.ConnectRetries)
	if err != nil {
		return nil, err
	}

	return &Pool{Pool: pool, guard: guard}, nil
}

// NewAdminPool creates the single-connection pool used by the policy
// installer and migrations.
func NewAdminPool(ctx context.Context, dsn string) (*Pool, error) {
	return NewPool(ctx, AdminPoolConfig(dsn))
}

func connectWithRetry(ctx context.Context, cfg *pgxpool.Config, retries uint) (*pgxpool.Pool, error) {
	connect := func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			// A config error will not fix itself.
			return nil, backoff.Permanent(fmt.Errorf("failed to create pool: %w", err))
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return pool, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, connect,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(retries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn(ctx, "database not ready, retrying", "error", err, "retry_in", next)
		}),
	)
}

// PoolStats returns current pool statistics for metrics.
type PoolStats struct {
	TotalConns      int32
	AcquiredConns   int32
	IdleConns       int32
	MaxConns        int32
	AcquireCount    int64
	AcquireDuration time.Duration
}

// GetPoolStats extracts statistics from pool.
func GetPoolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:      stat.TotalConns(),
		AcquiredConns:   stat.AcquiredConns(),
		IdleConns:       stat.IdleConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration(),
	}
}

// LogPoolStats logs pool statistics.
func LogPoolStats(ctx context.Context, pool *Pool) {
	stats := GetPoolStats(pool.Pool)
	guard := pool.guard.Stats()
	logger.Info(ctx, "database pool stats",
		"total", stats.TotalConns,
		"acquired", stats.AcquiredConns,
		"idle", stats.IdleConns,
		"max", stats.MaxConns,
		"context_marked", guard.Marked,
		"context_destroyed", guard.Destroyed,
	)
}
