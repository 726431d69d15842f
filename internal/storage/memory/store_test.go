package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/risk"
	"tradevera/internal/storage"
	"tradevera/internal/trades"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func trade(id string, openedAt, createdAt time.Time, pnl *float64) *trades.Trade {
	return &trades.Trade{
		ID: id, UserID: "u", Symbol: "MSFT", AssetClass: trades.AssetStocks,
		Direction: trades.DirectionLong, EntryPrice: 1, Size: 1,
		PnL: pnl, OpenedAt: openedAt, CreatedAt: createdAt,
	}
}

func pnl(v float64) *float64 { return &v }

func TestSettingsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()

	got, err := s.GetOrCreateSettings(ctx, risk.NewDefaultSettings("u", 45, t0))
	require.NoError(t, err)
	got.CooldownMinutes = 1

	again, err := s.GetOrCreateSettings(ctx, risk.NewDefaultSettings("u", 10, t0))
	require.NoError(t, err)
	assert.Equal(t, 45, again.CooldownMinutes)

	_, err = s.GetOrCreateSettings(ctx, &risk.Settings{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTradeOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.InsertTrade(ctx, trade("a", t0, t0, pnl(-1))))
	require.NoError(t, s.InsertTrade(ctx, trade("b", t0.Add(time.Hour), t0, pnl(-2))))
	require.NoError(t, s.InsertTrade(ctx, trade("c", t0, t0.Add(time.Minute), nil)))
	require.NoError(t, s.InsertTrade(ctx, trade("d", t0, t0.Add(time.Minute), pnl(3))))
	assert.ErrorIs(t, s.InsertTrade(ctx, trade("a", t0, t0, nil)), storage.ErrDuplicateKey)

	list, err := s.ListTrades(ctx, "u", 0, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, tr := range list {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids)

	page, err := s.ListTrades(ctx, "u", 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	recent, err := s.RecentClosedTrades(ctx, "u", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, -2.0, recent[0].PnL)
	assert.Equal(t, 3.0, recent[1].PnL)

	day, err := s.ClosedTradesOpenedBetween(ctx, "u", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, day, 2, "open trades and the exclusive upper bound are skipped")

	n, err := s.CountTradesByUser(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx trades.Tx) error {
		require.NoError(t, tx.InsertTrade(ctx, trade("a", t0, t0, nil)))
		_, err := tx.GetOrCreateSettings(ctx, risk.NewDefaultSettings("u", 45, t0))
		require.NoError(t, err)
		require.NoError(t, tx.AppendRiskEvent(ctx, &risk.Event{UserID: "u", Kind: risk.EventLockoutCleared}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.CountTradesByUser(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, n)
	evs, err := s.ListRiskEvents(ctx, "u", 10)
	require.NoError(t, err)
	assert.Empty(t, evs)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.WithinTx(cancelled, func(trades.Tx) error { return nil }), context.Canceled)
}

func TestRiskEventsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendRiskEvent(ctx, &risk.Event{UserID: "u", Kind: risk.EventLockoutTriggered, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}))
	}
	evs, err := s.ListRiskEvents(ctx, "u", 2)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, int64(3), evs[0].ID)
	assert.Equal(t, int64(2), evs[1].ID)
}

func TestUsersAndLockedList(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &auth.User{ID: "1", Email: "A@x.io", Plan: billing.TierFree}))
	assert.ErrorIs(t, s.CreateUser(ctx, &auth.User{ID: "2", Email: "a@X.io"}), storage.ErrDuplicateKey)

	u, err := s.GetUserByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.NoError(t, s.UpdateUserPlan(ctx, "1", billing.TierStarter))
	u, err = s.GetUserByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, billing.TierStarter, u.Plan)
	assert.ErrorIs(t, s.UpdateUserPlan(ctx, "9", billing.TierPro), storage.ErrNotFound)

	st, err := s.GetOrCreateSettings(ctx, risk.NewDefaultSettings("1", 45, t0))
	require.NoError(t, err)
	st.ApplyLockout(risk.ReasonCombined, t0.Add(time.Hour))
	require.NoError(t, s.SaveSettings(ctx, st))

	locked, err := s.ListLockedUsers(ctx, t0)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	locked, err = s.ListLockedUsers(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, locked)
}
