package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tradevera/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN renders the connection string for cfg.
func (cfg Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	return Open(ctx, cfg.DSN(), cfg.MaxConns, cfg.MinConns)
}

// Open connects using a DSN. Zero pool sizes keep the defaults of 25/5.
func Open(ctx context.Context, dsn string, maxConns, minConns int32) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	if minConns <= 0 || minConns > maxConns {
		minConns = min(5, maxConns)
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.DatabaseContext("connect", "").Info("connected to PostgreSQL", "database", poolConfig.ConnConfig.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.DatabaseContext("close", "").Info("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger := logging.DatabaseContext("migrate", "")
	logger.Info("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			password_hash TEXT NOT NULL,
			plan VARCHAR(20) NOT NULL DEFAULT 'free',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email))`,

		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			asset_class VARCHAR(16) NOT NULL,
			direction VARCHAR(5) NOT NULL CHECK (direction IN ('long', 'short')),
			entry_price NUMERIC(20, 8) NOT NULL,
			exit_price NUMERIC(20, 8),
			size NUMERIC(20, 8) NOT NULL,
			fees NUMERIC(20, 8) NOT NULL DEFAULT 0,
			pnl NUMERIC(20, 4),
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			setup VARCHAR(64) NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_user_opened ON trades(user_id, opened_at DESC, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_user_closed ON trades(user_id, opened_at) WHERE pnl IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS risk_settings (
			user_id TEXT PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			daily_max_loss NUMERIC(20, 4),
			max_consecutive_losses INTEGER CHECK (max_consecutive_losses BETWEEN 1 AND 20),
			cooldown_minutes INTEGER NOT NULL DEFAULT 45 CHECK (cooldown_minutes BETWEEN 1 AND 600),
			lockout_until TIMESTAMPTZ,
			last_trigger_reason VARCHAR(20) CHECK (last_trigger_reason IN ('daily_max_loss', 'loss_streak', 'combined')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS risk_events (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind VARCHAR(32) NOT NULL,
			reason VARCHAR(20),
			lockout_until TIMESTAMPTZ,
			daily_pnl NUMERIC(20, 4),
			loss_streak INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_user ON risk_events(user_id, created_at DESC, id DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("database migrations completed", "count", len(migrations))
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
