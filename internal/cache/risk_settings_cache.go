package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradevera/internal/risk"
)

// Backend is the subset of CacheService the settings cache needs.
type Backend interface {
	IsHealthy() bool
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// RiskSettingsCache caches guardrail settings as JSON under user:{id}:risk_settings.
// Entries are written after a database read and dropped on every write, so the
// cache never holds a record newer than the database.
type RiskSettingsCache struct {
	backend Backend
	ttl     time.Duration
}

var _ risk.SettingsCache = (*RiskSettingsCache)(nil)

// NewRiskSettingsCache wraps backend. A non-positive ttl uses DefaultSettingsTTL.
func NewRiskSettingsCache(backend Backend, ttl time.Duration) *RiskSettingsCache {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	return &RiskSettingsCache{backend: backend, ttl: ttl}
}

// GetSettings returns (nil, nil) on a miss or while Redis is unhealthy.
func (c *RiskSettingsCache) GetSettings(ctx context.Context, userID string) (*risk.Settings, error) {
	if !c.backend.IsHealthy() {
		return nil, nil
	}

	var s risk.Settings
	if err := c.backend.GetJSON(ctx, RiskSettingsKey(userID), &s); err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, ErrUnavailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cached risk settings: %w", err)
	}
	if s.UserID != userID {
		return nil, nil
	}
	return &s, nil
}

// SetSettings stores s with the configured TTL.
func (c *RiskSettingsCache) SetSettings(ctx context.Context, s *risk.Settings) error {
	if s == nil || !c.backend.IsHealthy() {
		return nil
	}
	return c.backend.SetJSON(ctx, RiskSettingsKey(s.UserID), s, c.ttl)
}

// InvalidateSettings drops the cached entry for userID.
func (c *RiskSettingsCache) InvalidateSettings(ctx context.Context, userID string) error {
	if err := c.backend.Delete(ctx, RiskSettingsKey(userID)); err != nil && !errors.Is(err, ErrUnavailable) {
		return err
	}
	return nil
}

// Flush drops every cached settings record.
func (c *RiskSettingsCache) Flush(ctx context.Context) error {
	return c.backend.DeletePattern(ctx, fmt.Sprintf(PrefixRiskSettings, "*"))
}
