// Package backend opens the configured store.
package backend

import (
	"context"
	"fmt"
	"time"

	"tradevera/config"
	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/database"
	"tradevera/internal/logging"
	"tradevera/internal/risk"
	"tradevera/internal/storage/memory"
	"tradevera/internal/storage/sqlite"
	"tradevera/internal/trades"
)

// Store is implemented by every backend.
type Store interface {
	trades.Store
	WithinSettingsTx(ctx context.Context, fn func(tx risk.Store) error) error
	auth.UserStore

	UpdateUserPlan(ctx context.Context, userID string, plan billing.SubscriptionTier) error
	ListLockedUsers(ctx context.Context, now time.Time) ([]risk.Settings, error)

	HealthCheck(ctx context.Context) error
	Close()
}

var (
	_ Store = (*database.Repository)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*memory.Store)(nil)
)

// Open connects to the backend named in cfg.Backend. Postgres migrations run
// only when migrate is true; SQLite applies its schema on open.
func Open(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (Store, error) {
	logger := logging.WithComponent("storage")

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := database.NewDB(ctx, database.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Name,
			SSLMode:  cfg.SSLMode,
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if migrate {
			if err := db.RunMigrations(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		logger.Info("using postgres store", "host", cfg.Host, "database", cfg.Name)
		return database.NewRepository(db), nil

	case config.BackendSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
}
