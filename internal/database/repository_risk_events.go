package database

import (
	"context"
	"fmt"

	"tradevera/internal/risk"
	"tradevera/internal/storage"
)

// =====================================================
// RISK EVENT LOG
// =====================================================

// AppendRiskEvent inserts e and sets its ID
func (r *Repository) AppendRiskEvent(ctx context.Context, e *risk.Event) error {
	if e == nil || e.UserID == "" {
		return storage.ErrInvalidInput
	}

	var reason *string
	if e.Reason != nil {
		v := string(*e.Reason)
		reason = &v
	}

	query := `
		INSERT INTO risk_events (user_id, kind, reason, lockout_until, daily_pnl, loss_streak, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		e.UserID,
		string(e.Kind),
		reason,
		e.LockoutUntil,
		e.DailyPnL,
		e.LossStreak,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append risk event: %w", err)
	}
	return nil
}

// ListRiskEvents returns the newest events for the user
func (r *Repository) ListRiskEvents(ctx context.Context, userID string, limit int) ([]risk.Event, error) {
	query := `
		SELECT id, user_id, kind, reason, lockout_until, daily_pnl, loss_streak, created_at
		FROM risk_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk events: %w", err)
	}
	defer rows.Close()

	events := []risk.Event{}
	for rows.Next() {
		var (
			e      risk.Event
			kind   string
			reason *string
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &kind, &reason, &e.LockoutUntil,
			&e.DailyPnL, &e.LossStreak, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk event: %w", err)
		}
		e.Kind = risk.EventKind(kind)
		if reason != nil {
			rr := risk.Reason(*reason)
			e.Reason = &rr
		}
		e.CreatedAt = e.CreatedAt.UTC()
		if e.LockoutUntil != nil {
			t := e.LockoutUntil.UTC()
			e.LockoutUntil = &t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
