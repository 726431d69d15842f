// Package sqlite is a single-file store for local development and the admin CLI.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/risk"
	"tradevera/internal/storage"
	"tradevera/internal/trades"
)

//go:embed schema.sql
var Schema string

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the trade, risk and user stores on SQLite. Writes are
// serialized through a single connection and immediate transactions.
type Store struct {
	db *sql.DB
	q  querier
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn in a transaction. fn's error rolls back; nil commits.
func (s *Store) WithinTx(ctx context.Context, fn func(tx trades.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WithinSettingsTx runs fn in a transaction.
func (s *Store) WithinSettingsTx(ctx context.Context, fn func(tx risk.Store) error) error {
	return s.WithinTx(ctx, func(tx trades.Tx) error { return fn(tx) })
}

// ---- risk settings ----

const settingsColumns = `user_id, enabled, daily_max_loss, max_consecutive_losses,
	cooldown_minutes, lockout_until, last_trigger_reason, created_at, updated_at`

func (s *Store) GetOrCreateSettings(ctx context.Context, defaults *risk.Settings) (*risk.Settings, error) {
	if defaults == nil || defaults.UserID == "" {
		return nil, storage.ErrInvalidInput
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO risk_settings
			(user_id, enabled, daily_max_loss, max_consecutive_losses, cooldown_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		defaults.UserID, defaults.Enabled, nullFloat(defaults.DailyMaxLoss),
		nullInt(defaults.MaxConsecutiveLosses), defaults.CooldownMinutes,
		toNanos(defaults.CreatedAt), toNanos(defaults.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create risk settings: %w", err)
	}

	out, err := scanSettings(s.q.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM risk_settings WHERE user_id = ?`, defaults.UserID))
	if err != nil {
		return nil, fmt.Errorf("get risk settings: %w", err)
	}
	return out, nil
}

// ListLockedUsers returns enabled settings whose lockout is still running at now.
func (s *Store) ListLockedUsers(ctx context.Context, now time.Time) ([]risk.Settings, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+settingsColumns+`
		FROM risk_settings
		WHERE enabled = 1 AND lockout_until > ?
		ORDER BY lockout_until DESC`, toNanos(now))
	if err != nil {
		return nil, fmt.Errorf("list locked users: %w", err)
	}
	defer rows.Close()

	var out []risk.Settings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk settings: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (*risk.Settings, error) {
	var (
		out                 risk.Settings
		dailyMaxLoss        sql.NullFloat64
		maxLosses, lockout  sql.NullInt64
		reason              sql.NullString
		createdAt, updateAt int64
	)
	if err := row.Scan(
		&out.UserID, &out.Enabled, &dailyMaxLoss, &maxLosses,
		&out.CooldownMinutes, &lockout, &reason, &createdAt, &updateAt,
	); err != nil {
		return nil, err
	}

	if dailyMaxLoss.Valid {
		out.DailyMaxLoss = &dailyMaxLoss.Float64
	}
	if maxLosses.Valid {
		v := int(maxLosses.Int64)
		out.MaxConsecutiveLosses = &v
	}
	out.LockoutUntil = fromNullNanos(lockout)
	if reason.Valid {
		r := risk.Reason(reason.String)
		out.LastTriggerReason = &r
	}
	out.CreatedAt = fromNanos(createdAt)
	out.UpdatedAt = fromNanos(updateAt)
	return &out, nil
}

func (s *Store) SaveSettings(ctx context.Context, st *risk.Settings) error {
	if st == nil || st.UserID == "" {
		return storage.ErrInvalidInput
	}

	var reason sql.NullString
	if st.LastTriggerReason != nil {
		reason = sql.NullString{String: string(*st.LastTriggerReason), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO risk_settings (`+settingsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = excluded.enabled,
			daily_max_loss = excluded.daily_max_loss,
			max_consecutive_losses = excluded.max_consecutive_losses,
			cooldown_minutes = excluded.cooldown_minutes,
			lockout_until = excluded.lockout_until,
			last_trigger_reason = excluded.last_trigger_reason,
			updated_at = excluded.updated_at`,
		st.UserID, st.Enabled, nullFloat(st.DailyMaxLoss), nullInt(st.MaxConsecutiveLosses),
		st.CooldownMinutes, nullNanos(st.LockoutUntil), reason,
		toNanos(st.CreatedAt), toNanos(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save risk settings: %w", err)
	}
	return nil
}

// ---- trades ----

func (s *Store) CountTradesByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

func (s *Store) InsertTrade(ctx context.Context, t *trades.Trade) error {
	if t == nil || t.ID == "" || t.UserID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO trades
			(id, user_id, symbol, asset_class, direction, entry_price, exit_price,
			 size, fees, pnl, opened_at, closed_at, setup, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Symbol, string(t.AssetClass), string(t.Direction),
		t.EntryPrice, nullFloat(t.ExitPrice), t.Size, t.Fees, nullFloat(t.PnL),
		toNanos(t.OpenedAt), nullNanos(t.ClosedAt), t.Setup, t.Notes, toNanos(t.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *Store) ListTrades(ctx context.Context, userID string, limit, offset int) ([]trades.Trade, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, symbol, asset_class, direction, entry_price, exit_price,
			size, fees, pnl, opened_at, closed_at, setup, notes, created_at
		FROM trades
		WHERE user_id = ?
		ORDER BY opened_at DESC, created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	list := []trades.Trade{}
	for rows.Next() {
		var (
			t               trades.Trade
			assetClass, dir string
			exit, pnl       sql.NullFloat64
			opened, created int64
			closed          sql.NullInt64
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Symbol, &assetClass, &dir, &t.EntryPrice, &exit,
			&t.Size, &t.Fees, &pnl, &opened, &closed, &t.Setup, &t.Notes, &created,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.AssetClass = trades.AssetClass(assetClass)
		t.Direction = trades.Direction(dir)
		if exit.Valid {
			t.ExitPrice = &exit.Float64
		}
		if pnl.Valid {
			t.PnL = &pnl.Float64
		}
		t.OpenedAt = fromNanos(opened)
		t.ClosedAt = fromNullNanos(closed)
		t.CreatedAt = fromNanos(created)
		list = append(list, t)
	}
	return list, rows.Err()
}

func (s *Store) ClosedTradesOpenedBetween(ctx context.Context, userID string, from, to time.Time) ([]risk.ClosedTrade, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT opened_at, created_at, pnl FROM trades
		WHERE user_id = ? AND pnl IS NOT NULL AND opened_at >= ? AND opened_at < ?`,
		userID, toNanos(from), toNanos(to))
	if err != nil {
		return nil, fmt.Errorf("query daily trades: %w", err)
	}
	return scanClosed(rows)
}

func (s *Store) RecentClosedTrades(ctx context.Context, userID string, limit int) ([]risk.ClosedTrade, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT opened_at, created_at, pnl FROM trades
		WHERE user_id = ? AND pnl IS NOT NULL
		ORDER BY opened_at DESC, created_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	return scanClosed(rows)
}

func scanClosed(rows *sql.Rows) ([]risk.ClosedTrade, error) {
	defer rows.Close()

	var out []risk.ClosedTrade
	for rows.Next() {
		var (
			opened, created int64
			ct              risk.ClosedTrade
		)
		if err := rows.Scan(&opened, &created, &ct.PnL); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		ct.OpenedAt = fromNanos(opened)
		ct.CreatedAt = fromNanos(created)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// ---- risk events ----

func (s *Store) AppendRiskEvent(ctx context.Context, e *risk.Event) error {
	if e == nil || e.UserID == "" {
		return storage.ErrInvalidInput
	}

	var (
		reason sql.NullString
		streak sql.NullInt64
	)
	if e.Reason != nil {
		reason = sql.NullString{String: string(*e.Reason), Valid: true}
	}
	if e.LossStreak != nil {
		streak = sql.NullInt64{Int64: int64(*e.LossStreak), Valid: true}
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO risk_events (user_id, kind, reason, lockout_until, daily_pnl, loss_streak, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, string(e.Kind), reason, nullNanos(e.LockoutUntil), nullFloat(e.DailyPnL), streak, toNanos(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append risk event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append risk event: %w", err)
	}
	e.ID = id
	return nil
}

func (s *Store) ListRiskEvents(ctx context.Context, userID string, limit int) ([]risk.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, kind, reason, lockout_until, daily_pnl, loss_streak, created_at
		FROM risk_events
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list risk events: %w", err)
	}
	defer rows.Close()

	events := []risk.Event{}
	for rows.Next() {
		var (
			e               risk.Event
			kind            string
			reason          sql.NullString
			lockout, streak sql.NullInt64
			pnl             sql.NullFloat64
			created         int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &reason, &lockout, &pnl, &streak, &created); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		e.Kind = risk.EventKind(kind)
		if reason.Valid {
			r := risk.Reason(reason.String)
			e.Reason = &r
		}
		e.LockoutUntil = fromNullNanos(lockout)
		if pnl.Valid {
			e.DailyPnL = &pnl.Float64
		}
		if streak.Valid {
			v := int(streak.Int64)
			e.LossStreak = &v
		}
		e.CreatedAt = fromNanos(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u == nil || u.ID == "" || u.Email == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, plan, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, string(u.Plan), toNanos(u.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, `email = ? COLLATE NOCASE`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

// UpdateUserPlan changes the subscription plan of a user.
func (s *Store) UpdateUserPlan(ctx context.Context, userID string, plan billing.SubscriptionTier) error {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET plan = ? WHERE id = ?`, string(plan), userID)
	if err != nil {
		return fmt.Errorf("update user plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (*auth.User, error) {
	var (
		u       auth.User
		plan    string
		created int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, email, password_hash, plan, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &plan, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Plan = billing.ParseTier(plan)
	u.CreatedAt = fromNanos(created)
	return &u, nil
}

// ---- helpers ----

func isConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
