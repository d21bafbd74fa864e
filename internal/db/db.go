// Package db builds the shared pgx connection pool every storage
// package (bronze, silver, queue, observe) is handed, and runs the
// versioned SQL migrations that create their tables.
//
// No teacher file touches a relational database (derat-nup is
// Datastore-backed), so the pool's bounds (min/max connections,
// acquire timeout) are built fresh from spec.md §5's "DB pool: bounded
// (e.g., min 2, max 10-20); acquisitions carry a 10s timeout" rather
// than from any in-pack usage.
package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/corvyn/setgraph/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PoolConfig bounds the connection pool per spec.md §5.
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	AcquireTimeout  time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig returns the spec's baseline pool bounds.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:          2,
		MaxConns:          20,
		AcquireTimeout:    10 * time.Second,
		HealthCheckPeriod: time.Minute,
	}
}

// dsn builds a libpq-style connection string from cfg.
func dsn(cfg config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=prefer",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)
}

// NewPool builds a bounded pgxpool.Pool for cfg.
func NewPool(ctx context.Context, cfg config.Postgres, poolCfg PoolConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("db: parsing pool config: %w", err)
	}
	pgxCfg.MinConns = poolCfg.MinConns
	pgxCfg.MaxConns = poolCfg.MaxConns
	pgxCfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("db: creating pool: %w", err)
	}
	acquireCtx, cancel := context.WithTimeout(ctx, poolCfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(acquireCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies every pending migration under migrations/ using
// goose's Postgres dialect.
func Migrate(ctx context.Context, cfg config.Postgres) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("db: setting dialect: %w", err)
	}

	stdDB, err := goose.OpenDBWithDriver("pgx", dsn(cfg))
	if err != nil {
		return fmt.Errorf("db: opening migration connection: %w", err)
	}
	defer stdDB.Close()

	if err := goose.UpContext(ctx, stdDB, "migrations"); err != nil {
		return fmt.Errorf("db: running migrations: %w", err)
	}
	return nil
}
