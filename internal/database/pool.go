package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/config"
)

// schema is applied on startup. Notification ids are assigned by the
// backend, so redelivered frames collapse onto the primary key.
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id          BIGINT PRIMARY KEY,
	message     TEXT NOT NULL,
	link        TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	session_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS notifications_created_at_idx ON notifications (created_at DESC);
`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	start := time.Now()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected",
		zap.String("dsn", Redacted(cfg)),
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Duration("took", time.Since(start)),
	)
	return pool, nil
}

// Migrate creates the archive table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
