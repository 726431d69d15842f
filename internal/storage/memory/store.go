// Package memory is an in-process store for tests and single-node development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/risk"
	"tradevera/internal/storage"
	"tradevera/internal/trades"
)

// Store keeps every record in maps guarded by one mutex. Transactions hold the
// mutex for their whole duration and restore a snapshot on error.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	settings map[string]*risk.Settings
	trades   map[string][]trades.Trade // keyed by user id, insertion order
	events   map[string][]risk.Event
	users    map[string]*auth.User
	nextID   int64
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		settings: make(map[string]*risk.Settings),
		trades:   make(map[string][]trades.Trade),
		events:   make(map[string][]risk.Event),
		users:    make(map[string]*auth.User),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.settings {
		c.settings[k] = v.Clone()
	}
	for k, v := range s.trades {
		c.trades[k] = append([]trades.Trade(nil), v...)
	}
	for k, v := range s.events {
		c.events[k] = append([]risk.Event(nil), v...)
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	return c
}

// WithinTx runs fn atomically.
func (s *Store) WithinTx(ctx context.Context, fn func(tx trades.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.st); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// WithinSettingsTx runs fn atomically.
func (s *Store) WithinSettingsTx(ctx context.Context, fn func(tx risk.Store) error) error {
	return s.WithinTx(ctx, func(tx trades.Tx) error { return fn(tx) })
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) GetOrCreateSettings(ctx context.Context, defaults *risk.Settings) (*risk.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetOrCreateSettings(ctx, defaults)
}

func (s *Store) SaveSettings(ctx context.Context, settings *risk.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SaveSettings(ctx, settings)
}

func (s *Store) ClosedTradesOpenedBetween(ctx context.Context, userID string, from, to time.Time) ([]risk.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ClosedTradesOpenedBetween(ctx, userID, from, to)
}

func (s *Store) RecentClosedTrades(ctx context.Context, userID string, limit int) ([]risk.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.RecentClosedTrades(ctx, userID, limit)
}

func (s *Store) AppendRiskEvent(ctx context.Context, e *risk.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AppendRiskEvent(ctx, e)
}

func (s *Store) ListRiskEvents(ctx context.Context, userID string, limit int) ([]risk.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListRiskEvents(ctx, userID, limit)
}

func (s *Store) CountTradesByUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CountTradesByUser(ctx, userID)
}

func (s *Store) InsertTrade(ctx context.Context, t *trades.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertTrade(ctx, t)
}

func (s *Store) ListTrades(ctx context.Context, userID string, limit, offset int) ([]trades.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListTrades(ctx, userID, limit, offset)
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createUser(u)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

// UpdateUserPlan changes the subscription plan of a user.
func (s *Store) UpdateUserPlan(_ context.Context, userID string, plan billing.SubscriptionTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.Plan = plan
	return nil
}

// ListLockedUsers returns enabled settings whose lockout is still running at now.
func (s *Store) ListLockedUsers(_ context.Context, now time.Time) ([]risk.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []risk.Settings
	for _, st := range s.st.settings {
		if st.Enabled && st.LockoutUntil != nil && st.LockoutUntil.After(now) {
			out = append(out, *st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockoutUntil.After(*out[j].LockoutUntil) })
	return out, nil
}

// state methods assume the caller holds the store mutex.

func (s *state) GetOrCreateSettings(_ context.Context, defaults *risk.Settings) (*risk.Settings, error) {
	if defaults == nil || defaults.UserID == "" {
		return nil, storage.ErrInvalidInput
	}
	if existing, ok := s.settings[defaults.UserID]; ok {
		return existing.Clone(), nil
	}
	s.settings[defaults.UserID] = defaults.Clone()
	return defaults.Clone(), nil
}

func (s *state) SaveSettings(_ context.Context, settings *risk.Settings) error {
	if settings == nil || settings.UserID == "" {
		return storage.ErrInvalidInput
	}
	s.settings[settings.UserID] = settings.Clone()
	return nil
}

func (s *state) ClosedTradesOpenedBetween(_ context.Context, userID string, from, to time.Time) ([]risk.ClosedTrade, error) {
	var out []risk.ClosedTrade
	for _, t := range s.trades[userID] {
		if !t.IsClosed() || t.OpenedAt.Before(from) || !t.OpenedAt.Before(to) {
			continue
		}
		out = append(out, risk.ClosedTrade{OpenedAt: t.OpenedAt, CreatedAt: t.CreatedAt, PnL: *t.PnL})
	}
	return out, nil
}

func (s *state) RecentClosedTrades(_ context.Context, userID string, limit int) ([]risk.ClosedTrade, error) {
	list := s.trades[userID]
	closed := make([]indexedTrade, 0, len(list))
	for i, t := range list {
		if t.IsClosed() {
			closed = append(closed, indexedTrade{seq: i, trade: t})
		}
	}
	sortNewestFirst(closed)

	if limit > 0 && len(closed) > limit {
		closed = closed[:limit]
	}
	out := make([]risk.ClosedTrade, 0, len(closed))
	for _, it := range closed {
		out = append(out, risk.ClosedTrade{OpenedAt: it.trade.OpenedAt, CreatedAt: it.trade.CreatedAt, PnL: *it.trade.PnL})
	}
	return out, nil
}

func (s *state) AppendRiskEvent(_ context.Context, e *risk.Event) error {
	if e == nil || e.UserID == "" {
		return storage.ErrInvalidInput
	}
	s.nextID++
	e.ID = s.nextID
	s.events[e.UserID] = append(s.events[e.UserID], *e)
	return nil
}

func (s *state) ListRiskEvents(_ context.Context, userID string, limit int) ([]risk.Event, error) {
	evs := s.events[userID]
	if limit <= 0 {
		limit = len(evs)
	}
	out := make([]risk.Event, 0, min(limit, len(evs)))
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, evs[i])
	}
	return out, nil
}

func (s *state) CountTradesByUser(_ context.Context, userID string) (int, error) {
	return len(s.trades[userID]), nil
}

func (s *state) InsertTrade(_ context.Context, t *trades.Trade) error {
	if t == nil || t.ID == "" || t.UserID == "" {
		return storage.ErrInvalidInput
	}
	for _, existing := range s.trades[t.UserID] {
		if existing.ID == t.ID {
			return storage.ErrDuplicateKey
		}
	}
	s.trades[t.UserID] = append(s.trades[t.UserID], *t)
	return nil
}

func (s *state) ListTrades(_ context.Context, userID string, limit, offset int) ([]trades.Trade, error) {
	list := s.trades[userID]
	all := make([]indexedTrade, 0, len(list))
	for i, t := range list {
		all = append(all, indexedTrade{seq: i, trade: t})
	}
	sortNewestFirst(all)

	if offset >= len(all) {
		return []trades.Trade{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]trades.Trade, 0, len(all))
	for _, it := range all {
		out = append(out, it.trade)
	}
	return out, nil
}

func (s *state) createUser(u *auth.User) error {
	if u == nil || u.ID == "" || u.Email == "" {
		return storage.ErrInvalidInput
	}
	if _, ok := s.users[u.ID]; ok {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return storage.ErrDuplicateKey
		}
	}
	c := *u
	s.users[u.ID] = &c
	return nil
}

type indexedTrade struct {
	seq   int
	trade trades.Trade
}

// sortNewestFirst orders by opened_at desc, created_at desc, then insertion desc.
func sortNewestFirst(list []indexedTrade) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].trade, list[j].trade
		if !a.OpenedAt.Equal(b.OpenedAt) {
			return a.OpenedAt.After(b.OpenedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return list[i].seq > list[j].seq
	})
}
