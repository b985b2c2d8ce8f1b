package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Options controls connection-pool behaviour.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	Logger                 zerolog.Logger
}

// Store owns the ratings database pool. Repositories borrow it through Pool.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	opts   Options
}

// New initializes a connection pool and validates connectivity with Ping.
func New(ctx context.Context, dbURL string, opts Options) (*Store, error) {
	logger := opts.Logger.With().Str("component", "store").Logger()
	logger.Info().
		Int32("max_conns", opts.MaxConns).
		Int32("min_conns", opts.MinConns).
		Dur("idle", opts.MaxConnIdleTime).
		Dur("lifetime", opts.MaxConnLifetime).
		Int("stmt_cache", opts.StatementCacheCapacity).
		Msg("initializing connection pool")

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.StatementCacheCapacity >= 0 {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		cfg.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
	}

	connCtx := ctx
	if opts.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info().Msg("database connection established")

	return &Store{pool: pool, logger: logger, opts: opts}, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.logger.Info().Msg("closing connection pool")
	s.pool.Close()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}
	checkCtx := ctx
	if s.opts.ConnTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, s.opts.ConnTimeout)
		defer cancel()
	}
	return s.pool.Ping(checkCtx)
}

// Pool exposes the underlying pgx pool for repositories.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Stats exposes pgxpool statistics for observability.
func (s *Store) Stats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}
