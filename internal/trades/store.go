package trades

import (
	"context"

	"tradevera/internal/risk"
)

// Repository persists trades.
type Repository interface {
	CountTradesByUser(ctx context.Context, userID string) (int, error)
	InsertTrade(ctx context.Context, t *Trade) error
	// ListTrades returns the user's trades, newest opened first.
	ListTrades(ctx context.Context, userID string, limit, offset int) ([]Trade, error)
}

// Tx is the store surface available inside an admission transaction.
type Tx interface {
	risk.Store
	Repository
}

// Store is a backend that can run admissions atomically.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
