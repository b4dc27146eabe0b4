// Package db opens PostgreSQL pools and applies schema migrations.
package db

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/smsrouter/internal/config"
)

// Open creates a pgx pool for cfg. The pool connects lazily.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, DSN(cfg))
}

// DSN builds a PostgreSQL connection string from config.
func DSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultPGSSLMode
	}
	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		url.UserPassword(cfg.User, cfg.Password).String(),
		cfg.Host,
		cfg.Port,
		cfg.Database,
		sslMode,
	)
}
