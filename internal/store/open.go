package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/smsrouter/db"
	"github.com/memohai/smsrouter/internal/config"
	dbpkg "github.com/memohai/smsrouter/internal/db"
)

// Open builds the Store selected by cfg.Storage. PostgreSQL schemas are
// migrated up before the pool is handed out.
func Open(ctx context.Context, log *slog.Logger, cfg config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory, "":
		return NewMemory(), nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Storage.SQLitePath)
	case config.DriverPostgres:
		migrations, err := db.Migrations()
		if err != nil {
			return nil, err
		}
		if err := dbpkg.RunMigrate(log, cfg.Postgres, migrations, "up", nil); err != nil {
			return nil, err
		}
		pool, err := dbpkg.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}
