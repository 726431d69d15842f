package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tradevera/internal/risk"
	"tradevera/internal/trades"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides data access methods
type Repository struct {
	db *DB
	q  querier
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, q: db.Pool}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetDB returns the underlying DB instance
func (r *Repository) GetDB() *DB {
	return r.db
}

// Close closes the pool.
func (r *Repository) Close() {
	r.db.Close()
}

// WithinTx runs fn in a transaction. fn's error rolls back; nil commits.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx trades.Tx) error) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		return fn(&Repository{db: r.db, q: tx})
	})
}

// WithinSettingsTx runs fn in a transaction.
func (r *Repository) WithinSettingsTx(ctx context.Context, fn func(tx risk.Store) error) error {
	return r.WithinTx(ctx, func(tx trades.Tx) error { return fn(tx) })
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505"
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

func collectClosedTrades(rows pgx.Rows) ([]risk.ClosedTrade, error) {
	defer rows.Close()

	var out []risk.ClosedTrade
	for rows.Next() {
		var ct risk.ClosedTrade
		if err := rows.Scan(&ct.OpenedAt, &ct.CreatedAt, &ct.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan closed trade: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}
