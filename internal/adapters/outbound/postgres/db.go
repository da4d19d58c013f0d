// Package postgres provides the PostgreSQL outcome audit store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the pool behind the outcome audit store. The only writer
// is OutcomeRepository.Record, called once per response attempt from the
// submitter goroutines, so a request fanned out to N oracles can ask for up
// to 3N connections at once. Extra writers queue on the pool.
type PoolConfig struct {
	URL string

	// MaxConns caps concurrent outcome inserts.
	MaxConns int32
	// MinConns keeps a warm connection for the first request after an idle spell.
	MinConns int32
	// MaxConnIdleTime releases burst connections once a fan-out has drained.
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration

	// ConnectTimeout bounds each dial, including the startup ping.
	ConnectTimeout time.Duration
	// ApplicationName tags the relay's sessions in pg_stat_activity.
	ApplicationName string
}

// DefaultPoolConfig returns the pool settings used by cmd/oracle-relay.
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{
		URL:             url,
		MaxConns:        10,
		MinConns:        1,
		MaxConnIdleTime: time.Minute,
		MaxConnLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		ApplicationName: "oracle-relay",
	}
}

func (c PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if c.MaxConns > 0 {
		poolConfig.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		poolConfig.MinConns = c.MinConns
	}
	if c.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
	// An application_name in the URL wins.
	if c.ApplicationName != "" {
		if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
			poolConfig.ConnConfig.RuntimeParams["application_name"] = c.ApplicationName
		}
	}
	return poolConfig, nil
}

// OpenPool connects the audit store and pings it, so a bad DATABASE_URL
// fails at startup instead of on the first recorded outcome.
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
