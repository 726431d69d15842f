package risk

import (
	"context"
	"time"
)

// ClosedTrade is the slice of a trade the evaluator reads: only trades with a realized PnL.
type ClosedTrade struct {
	OpenedAt  time.Time
	CreatedAt time.Time
	PnL       float64
}

// SettingsStore persists one settings record per user.
type SettingsStore interface {
	// GetOrCreateSettings returns the stored record for defaults.UserID, inserting
	// defaults first when none exists. Inside a transaction the row stays locked
	// until commit.
	GetOrCreateSettings(ctx context.Context, defaults *Settings) (*Settings, error)
	// SaveSettings upserts the full record.
	SaveSettings(ctx context.Context, s *Settings) error
}

// TradeHistory reads a user's closed trades.
type TradeHistory interface {
	// ClosedTradesOpenedBetween returns closed trades with from <= opened_at < to.
	ClosedTradesOpenedBetween(ctx context.Context, userID string, from, to time.Time) ([]ClosedTrade, error)
	// RecentClosedTrades returns up to limit closed trades ordered by
	// opened_at desc, created_at desc.
	RecentClosedTrades(ctx context.Context, userID string, limit int) ([]ClosedTrade, error)
}

// EventKind classifies entries in the risk event log.
type EventKind string

const (
	EventLockoutTriggered  EventKind = "lockout_triggered"
	EventLockoutCleared    EventKind = "lockout_cleared"
	EventGuardrailsDisable EventKind = "guardrails_disabled"
)

// Event is an entry in a user's risk event log.
type Event struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"userId"`
	Kind         EventKind  `json:"kind"`
	Reason       *Reason    `json:"reason,omitempty"`
	LockoutUntil *time.Time `json:"lockoutUntil,omitempty"`
	DailyPnL     *float64   `json:"dailyPnl,omitempty"`
	LossStreak   *int       `json:"lossStreak,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// EventLog appends and lists risk events.
type EventLog interface {
	AppendRiskEvent(ctx context.Context, e *Event) error
	ListRiskEvents(ctx context.Context, userID string, limit int) ([]Event, error)
}

// Store is everything the guardrail layer reads and writes.
type Store interface {
	SettingsStore
	TradeHistory
	EventLog
}

// TxStore runs a unit of work atomically.
type TxStore interface {
	Store
	WithinSettingsTx(ctx context.Context, fn func(tx Store) error) error
}

// SettingsCache is an optional read-through cache for Service.Get.
// A miss is (nil, nil).
type SettingsCache interface {
	GetSettings(ctx context.Context, userID string) (*Settings, error)
	SetSettings(ctx context.Context, s *Settings) error
	InvalidateSettings(ctx context.Context, userID string) error
}
