package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/internal/risk"
)

// ============================================================================
// MOCK TYPES
// ============================================================================

// MockCacheService is an in-memory Backend
type MockCacheService struct {
	mu       sync.Mutex
	healthy  bool
	data     map[string]string
	ttls     map[string]time.Duration
	getErr   error
	setCalls int
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		healthy: true,
		data:    make(map[string]string),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *MockCacheService) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *MockCacheService) GetJSON(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal([]byte(val), dest)
}

func (m *MockCacheService) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.setCalls++
	m.data[key] = string(b)
	m.ttls[key] = ttl
	return nil
}

func (m *MockCacheService) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.healthy {
		return ErrUnavailable
	}
	delete(m.data, key)
	return nil
}

func (m *MockCacheService) DeletePattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
		}
	}
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func sampleSettings(userID string) *risk.Settings {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := risk.NewDefaultSettings(userID, 30, now)
	loss := 200.0
	s.DailyMaxLoss = &loss
	s.ApplyLockout(risk.ReasonDailyMaxLoss, now.Add(30*time.Minute))
	return s
}

func TestRiskSettingsKey(t *testing.T) {
	assert.Equal(t, "user:abc:risk_settings", RiskSettingsKey("abc"))
}

func TestRiskSettingsCache_RoundTrip(t *testing.T) {
	mock := NewMockCacheService()
	c := NewRiskSettingsCache(mock, 0)
	ctx := context.Background()

	got, err := c.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil")

	want := sampleSettings("u1")
	require.NoError(t, c.SetSettings(ctx, want))
	assert.Equal(t, DefaultSettingsTTL, mock.ttls["user:u1:risk_settings"])

	got, err = c.GetSettings(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.CooldownMinutes, got.CooldownMinutes)
	require.NotNil(t, got.LockoutUntil)
	assert.True(t, want.LockoutUntil.Equal(*got.LockoutUntil))
	require.NotNil(t, got.LastTriggerReason)
	assert.Equal(t, risk.ReasonDailyMaxLoss, *got.LastTriggerReason)

	require.NoError(t, c.InvalidateSettings(ctx, "u1"))
	got, err = c.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRiskSettingsCache_Unhealthy(t *testing.T) {
	mock := NewMockCacheService()
	c := NewRiskSettingsCache(mock, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetSettings(ctx, sampleSettings("u1")))
	mock.healthy = false

	got, err := c.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "unhealthy cache behaves as a miss")

	require.NoError(t, c.SetSettings(ctx, sampleSettings("u2")))
	assert.Equal(t, 1, mock.setCalls, "writes are skipped while unhealthy")

	assert.NoError(t, c.InvalidateSettings(ctx, "u1"))
}

func TestRiskSettingsCache_ReadError(t *testing.T) {
	mock := NewMockCacheService()
	mock.getErr = errors.New("connection reset")
	c := NewRiskSettingsCache(mock, time.Minute)

	_, err := c.GetSettings(context.Background(), "u1")
	assert.Error(t, err)
}

func TestRiskSettingsCache_Flush(t *testing.T) {
	mock := NewMockCacheService()
	c := NewRiskSettingsCache(mock, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetSettings(ctx, sampleSettings("a")))
	require.NoError(t, c.SetSettings(ctx, sampleSettings("b")))
	mock.data["other:key"] = "x"

	require.NoError(t, c.Flush(ctx))
	assert.Len(t, mock.data, 1)
	assert.Contains(t, mock.data, "other:key")
}
