package database

import (
	"context"
	"fmt"
	"time"

	"tradevera/internal/risk"
	"tradevera/internal/storage"
)

// =====================================================
// RISK SETTINGS OPERATIONS
// =====================================================

const riskSettingsColumns = `user_id, enabled, daily_max_loss, max_consecutive_losses,
	cooldown_minutes, lockout_until, last_trigger_reason, created_at, updated_at`

// GetOrCreateSettings returns the user's guardrail settings, inserting defaults
// on first access. The row is locked FOR UPDATE until the surrounding
// transaction ends; outside a transaction the lock is released immediately.
func (r *Repository) GetOrCreateSettings(ctx context.Context, defaults *risk.Settings) (*risk.Settings, error) {
	if defaults == nil || defaults.UserID == "" {
		return nil, storage.ErrInvalidInput
	}

	insert := `
		INSERT INTO risk_settings (
			user_id, enabled, daily_max_loss, max_consecutive_losses,
			cooldown_minutes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, insert,
		defaults.UserID,
		defaults.Enabled,
		defaults.DailyMaxLoss,
		defaults.MaxConsecutiveLosses,
		defaults.CooldownMinutes,
		defaults.CreatedAt,
		defaults.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create risk settings: %w", err)
	}

	query := `SELECT ` + riskSettingsColumns + ` FROM risk_settings WHERE user_id = $1 FOR UPDATE`

	var (
		s      risk.Settings
		reason *string
	)
	err := r.q.QueryRow(ctx, query, defaults.UserID).Scan(
		&s.UserID,
		&s.Enabled,
		&s.DailyMaxLoss,
		&s.MaxConsecutiveLosses,
		&s.CooldownMinutes,
		&s.LockoutUntil,
		&reason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get risk settings: %w", err)
	}

	if reason != nil {
		rr := risk.Reason(*reason)
		s.LastTriggerReason = &rr
	}
	normalizeSettingsTimes(&s)
	return &s, nil
}

// SaveSettings saves or updates the full settings record (UPSERT)
func (r *Repository) SaveSettings(ctx context.Context, s *risk.Settings) error {
	if s == nil || s.UserID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO risk_settings (
			user_id, enabled, daily_max_loss, max_consecutive_losses,
			cooldown_minutes, lockout_until, last_trigger_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			daily_max_loss = EXCLUDED.daily_max_loss,
			max_consecutive_losses = EXCLUDED.max_consecutive_losses,
			cooldown_minutes = EXCLUDED.cooldown_minutes,
			lockout_until = EXCLUDED.lockout_until,
			last_trigger_reason = EXCLUDED.last_trigger_reason,
			updated_at = EXCLUDED.updated_at
	`

	var reason *string
	if s.LastTriggerReason != nil {
		v := string(*s.LastTriggerReason)
		reason = &v
	}

	_, err := r.q.Exec(ctx, query,
		s.UserID,
		s.Enabled,
		s.DailyMaxLoss,
		s.MaxConsecutiveLosses,
		s.CooldownMinutes,
		s.LockoutUntil,
		reason,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk settings: %w", err)
	}
	return nil
}

// ListLockedUsers returns settings whose lockout is still running at now.
func (r *Repository) ListLockedUsers(ctx context.Context, now time.Time) ([]risk.Settings, error) {
	query := `SELECT ` + riskSettingsColumns + `
		FROM risk_settings
		WHERE enabled AND lockout_until > $1
		ORDER BY lockout_until DESC`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list locked users: %w", err)
	}
	defer rows.Close()

	var out []risk.Settings
	for rows.Next() {
		var (
			s      risk.Settings
			reason *string
		)
		if err := rows.Scan(
			&s.UserID, &s.Enabled, &s.DailyMaxLoss, &s.MaxConsecutiveLosses,
			&s.CooldownMinutes, &s.LockoutUntil, &reason, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk settings: %w", err)
		}
		if reason != nil {
			rr := risk.Reason(*reason)
			s.LastTriggerReason = &rr
		}
		normalizeSettingsTimes(&s)
		out = append(out, s)
	}
	return out, rows.Err()
}

func normalizeSettingsTimes(s *risk.Settings) {
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if s.LockoutUntil != nil {
		t := s.LockoutUntil.UTC()
		s.LockoutUntil = &t
	}
}
