package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrFailedToParseConfig indicates the connection string could not be parsed.
	ErrFailedToParseConfig = errors.New("failed to parse postgres connection config")
	// ErrFailedToConnect indicates all connection attempts failed.
	ErrFailedToConnect = errors.New("failed to open postgres connection")
)

// Config holds PostgreSQL connection parameters.
type Config struct {
	ConnectionString string        `env:"DATABASE_URL,required"`
	MaxOpenConns     int32         `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MinConns         int32         `env:"DATABASE_MIN_CONNS" envDefault:"2"`
	RetryAttempts    int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"5s"`
}

// Connect establishes a pgx connection pool with linear backoff between
// attempts, verifying each candidate pool with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConfig, err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err := pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, ErrFailedToConnect
}
