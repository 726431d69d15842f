package risk_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/internal/apperr"
	"tradevera/internal/clock"
	"tradevera/internal/events"
	"tradevera/internal/logging"
	"tradevera/internal/risk"
	"tradevera/internal/storage/memory"
)

var start = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type recordingObserver struct {
	mu        sync.Mutex
	triggered []risk.Reason
	cleared   []string
}

func (o *recordingObserver) LockoutTriggered(r risk.Reason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.triggered = append(o.triggered, r)
}

func (o *recordingObserver) LockoutCleared(source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleared = append(o.cleared, source)
}

type mapCache struct {
	mu          sync.Mutex
	data        map[string]*risk.Settings
	invalidated int
}

func (c *mapCache) GetSettings(_ context.Context, userID string) (*risk.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.data[userID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (c *mapCache) SetSettings(_ context.Context, s *risk.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[s.UserID] = s.Clone()
	return nil
}

func (c *mapCache) InvalidateSettings(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, userID)
	c.invalidated++
	return nil
}

func newService(t *testing.T, opts ...risk.Option) (*risk.Service, *memory.Store, *clock.Manual) {
	t.Helper()
	store := memory.New()
	clk := clock.NewManual(start)
	opts = append(opts, risk.WithLogger(logging.Nop()))
	return risk.NewService(store, clk, risk.DefaultPolicy(), opts...), store, clk
}

func lock(t *testing.T, store *memory.Store, svc *risk.Service, userID string, until time.Time) {
	t.Helper()
	s, err := store.GetOrCreateSettings(context.Background(), svc.Defaults(userID))
	require.NoError(t, err)
	s.ApplyLockout(risk.ReasonLossStreak, until)
	require.NoError(t, store.SaveSettings(context.Background(), s))
}

func TestGetCreatesDefaultsOnce(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	first, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Enabled)
	assert.Nil(t, first.DailyMaxLoss)
	assert.Nil(t, first.MaxConsecutiveLosses)
	assert.Equal(t, 45, first.CooldownMinutes)
	assert.Nil(t, first.LockoutUntil)
	assert.Equal(t, start, first.CreatedAt)

	clk.Advance(time.Hour)
	second, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, start, second.CreatedAt)

	_, err = svc.Get(ctx, "  ")
	assert.ErrorIs(t, err, risk.ErrInvalidUser)
}

func TestUpdatePatchesOnlySuppliedFields(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "u1", risk.Patch{DailyMaxLoss: risk.Set(400.0), CooldownMinutes: ptr(60)})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	s, err := svc.Update(ctx, "u1", risk.Patch{MaxConsecutiveLosses: risk.Set(3)})
	require.NoError(t, err)
	assert.Equal(t, 400.0, *s.DailyMaxLoss)
	assert.Equal(t, 3, *s.MaxConsecutiveLosses)
	assert.Equal(t, 60, s.CooldownMinutes)
	assert.Equal(t, start.Add(time.Minute), s.UpdatedAt)

	_, err = svc.Update(ctx, "u1", risk.Patch{CooldownMinutes: ptr(0)})
	assert.True(t, apperr.IsValidation(err))

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.CooldownMinutes)
}

func TestDisableClearsLockout(t *testing.T) {
	obs := &recordingObserver{}
	svc, store, _ := newService(t, risk.WithObserver(obs))
	ctx := context.Background()
	lock(t, store, svc, "u1", start.Add(time.Hour))

	s, err := svc.Update(ctx, "u1", risk.Patch{Enabled: ptr(false)})
	require.NoError(t, err)
	assert.Nil(t, s.LockoutUntil)

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.LockoutUntil)
	assert.Nil(t, got.LastTriggerReason)
	assert.Equal(t, []string{risk.ClearSourceDisabled}, obs.cleared)

	evs, err := svc.Events(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, risk.EventGuardrailsDisable, evs[0].Kind)
	require.NotNil(t, evs[0].Reason)
	assert.Equal(t, risk.ReasonLossStreak, *evs[0].Reason)
}

func TestClearLockoutKeepsThresholds(t *testing.T) {
	obs := &recordingObserver{}
	bus := events.NewEventBus()
	var (
		mu       sync.Mutex
		received []events.EventType
	)
	bus.SubscribeAll(func(e events.Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
	})

	svc, store, _ := newService(t, risk.WithObserver(obs), risk.WithEventBus(bus))
	ctx := context.Background()

	_, err := svc.Update(ctx, "u1", risk.Patch{
		DailyMaxLoss:         risk.Set(300.0),
		MaxConsecutiveLosses: risk.Set(2),
		CooldownMinutes:      ptr(15),
	})
	require.NoError(t, err)
	lock(t, store, svc, "u1", start.Add(15*time.Minute))

	s, err := svc.ClearLockout(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, s.LockoutUntil)
	assert.Nil(t, s.LastTriggerReason)
	assert.Equal(t, 300.0, *s.DailyMaxLoss)
	assert.Equal(t, 2, *s.MaxConsecutiveLosses)
	assert.Equal(t, 15, s.CooldownMinutes)
	assert.False(t, svc.Status(s).IsLocked)

	// No lockout: nothing to clear, nothing recorded.
	_, err = svc.ClearLockout(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{risk.ClearSourceManual}, obs.cleared)

	bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, received, events.EventRiskSettingsUpdated)
	assert.Contains(t, received, events.EventRiskLockoutCleared)
}

func TestGetReadsThroughCache(t *testing.T) {
	cache := &mapCache{data: make(map[string]*risk.Settings)}
	svc, _, _ := newService(t, risk.WithCache(cache))
	ctx := context.Background()

	_, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, cache.data, "u1")

	_, err = svc.Update(ctx, "u1", risk.Patch{CooldownMinutes: ptr(20)})
	require.NoError(t, err)
	assert.NotContains(t, cache.data, "u1")
	assert.Equal(t, 1, cache.invalidated)

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.CooldownMinutes)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) WithinSettingsTx(context.Context, func(tx risk.Store) error) error {
	return errors.New("database is down")
}

func TestUpdateSurfacesStoreErrors(t *testing.T) {
	svc := risk.NewService(failingStore{memory.New()}, clock.NewManual(start), risk.DefaultPolicy(),
		risk.WithLogger(logging.Nop()))

	_, err := svc.Update(context.Background(), "u1", risk.Patch{CooldownMinutes: ptr(10)})
	assert.ErrorContains(t, err, "database is down")
}

func ptr[T any](v T) *T { return &v }

// pausingStore holds the first settings read after it returns, until release closes.
type pausingStore struct {
	risk.TxStore
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (p *pausingStore) GetOrCreateSettings(ctx context.Context, defaults *risk.Settings) (*risk.Settings, error) {
	s, err := p.TxStore.GetOrCreateSettings(ctx, defaults)
	p.once.Do(func() {
		close(p.reached)
		<-p.release
	})
	return s, err
}

func TestCacheFillDroppedWhenUnlockCommitsDuringRead(t *testing.T) {
	store := memory.New()
	slow := &pausingStore{TxStore: store, reached: make(chan struct{}), release: make(chan struct{})}
	cache := &mapCache{data: map[string]*risk.Settings{}}
	svc := risk.NewService(slow, clock.NewManual(start), risk.DefaultPolicy(),
		risk.WithCache(cache), risk.WithLogger(logging.Nop()))
	ctx := context.Background()
	lock(t, store, svc, "u1", start.Add(45*time.Minute))

	done := make(chan *risk.Settings)
	go func() {
		s, err := svc.Get(ctx, "u1")
		assert.NoError(t, err)
		done <- s
	}()

	<-slow.reached
	_, err := svc.ClearLockout(ctx, "u1")
	require.NoError(t, err)
	close(slow.release)

	stale := <-done
	assert.NotNil(t, stale.LockoutUntil, "the in-flight read saw the old record")

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got.LockoutUntil)
	assert.False(t, svc.Status(got).IsLocked)
}
