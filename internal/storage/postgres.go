// Package storage persists sessions and events in PostgreSQL.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	infraconfig "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/config"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/retry"
)

const (
	// pingTimeout bounds each connection check in Connect.
	pingTimeout = 5 * time.Second

	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// Connect opens a pooled connection and verifies it, retrying while the
// server is unreachable or still starting.
func Connect(ctx context.Context, cfg *infraconfig.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingErr := retry.Do(ctx, retry.Config{MaxAttempts: connectAttempts, InitialDelay: connectBackoff},
		func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return db.PingContext(pingCtx)
		})
	if pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}
	return db, nil
}
