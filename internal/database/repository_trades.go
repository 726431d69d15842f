package database

import (
	"context"
	"fmt"
	"time"

	"tradevera/internal/risk"
	"tradevera/internal/storage"
	"tradevera/internal/trades"
)

// =====================================================
// TRADE JOURNAL OPERATIONS
// =====================================================

// CountTradesByUser counts every trade the user has recorded, open or closed
func (r *Repository) CountTradesByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM trades WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// InsertTrade persists a new trade
func (r *Repository) InsertTrade(ctx context.Context, t *trades.Trade) error {
	if t == nil || t.ID == "" || t.UserID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			id, user_id, symbol, asset_class, direction, entry_price, exit_price,
			size, fees, pnl, opened_at, closed_at, setup, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.q.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.Symbol,
		string(t.AssetClass),
		string(t.Direction),
		t.EntryPrice,
		t.ExitPrice,
		t.Size,
		t.Fees,
		t.PnL,
		t.OpenedAt,
		t.ClosedAt,
		t.Setup,
		t.Notes,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListTrades returns a page of the user's trades, newest opened first
func (r *Repository) ListTrades(ctx context.Context, userID string, limit, offset int) ([]trades.Trade, error) {
	query := `
		SELECT id, user_id, symbol, asset_class, direction, entry_price, exit_price,
			size, fees, pnl, opened_at, closed_at, setup, notes, created_at
		FROM trades
		WHERE user_id = $1
		ORDER BY opened_at DESC, created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	list := []trades.Trade{}
	for rows.Next() {
		var (
			t          trades.Trade
			assetClass string
			direction  string
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Symbol, &assetClass, &direction,
			&t.EntryPrice, &t.ExitPrice, &t.Size, &t.Fees, &t.PnL,
			&t.OpenedAt, &t.ClosedAt, &t.Setup, &t.Notes, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.AssetClass = trades.AssetClass(assetClass)
		t.Direction = trades.Direction(direction)
		t.OpenedAt = t.OpenedAt.UTC()
		t.CreatedAt = t.CreatedAt.UTC()
		if t.ClosedAt != nil {
			c := t.ClosedAt.UTC()
			t.ClosedAt = &c
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ClosedTradesOpenedBetween returns closed trades with from <= opened_at < to
func (r *Repository) ClosedTradesOpenedBetween(ctx context.Context, userID string, from, to time.Time) ([]risk.ClosedTrade, error) {
	query := `
		SELECT opened_at, created_at, pnl
		FROM trades
		WHERE user_id = $1 AND pnl IS NOT NULL
			AND opened_at >= $2 AND opened_at < $3
	`

	rows, err := r.q.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily trades: %w", err)
	}
	return collectClosedTrades(rows)
}

// RecentClosedTrades returns up to limit closed trades, newest first
func (r *Repository) RecentClosedTrades(ctx context.Context, userID string, limit int) ([]risk.ClosedTrade, error) {
	query := `
		SELECT opened_at, created_at, pnl
		FROM trades
		WHERE user_id = $1 AND pnl IS NOT NULL
		ORDER BY opened_at DESC, created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	return collectClosedTrades(rows)
}
