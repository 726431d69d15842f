package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "missing.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerConfig.Port)
	assert.Equal(t, BackendPostgres, cfg.DatabaseConfig.Backend)
	assert.Equal(t, 45, cfg.RiskConfig.DefaultCooldownMinutes)
	assert.Equal(t, 60, cfg.RiskConfig.StreakLookback)
	assert.Equal(t, 50, cfg.PlanConfig.FreeTradeLimit)
	assert.Equal(t, time.UTC, cfg.RiskConfig.Location())
	assert.Equal(t, time.Hour, cfg.RedisConfig.TTL)
	assert.Equal(t, "/metrics", cfg.MetricsConfig.Path)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "tradevera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  backend: sqlite
  sqlite_path: /tmp/tv.db
risk:
  timezone: America/New_York
  default_cooldown_minutes: 30
plans:
  free_trade_limit: 10
`), 0644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WEB_PORT", "9100")
	t.Setenv("PLAN_FREE_TRADE_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.ServerConfig.Port, "env wins over file")
	assert.Equal(t, BackendSQLite, cfg.DatabaseConfig.Backend)
	assert.Equal(t, "/tmp/tv.db", cfg.DatabaseConfig.SQLitePath)
	assert.Equal(t, 30, cfg.RiskConfig.DefaultCooldownMinutes)
	assert.Equal(t, 10, cfg.PlanConfig.FreeTradeLimit, "unparsable env keeps the file value")
	assert.Equal(t, "America/New_York", cfg.RiskConfig.Location().String())
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyEnvOverrides(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.DatabaseConfig.Backend = "mysql" }},
		{"bad port", func(c *Config) { c.ServerConfig.Port = 70000 }},
		{"cooldown too long", func(c *Config) { c.RiskConfig.DefaultCooldownMinutes = 601 }},
		{"no lookback", func(c *Config) { c.RiskConfig.StreakLookback = -1 }},
		{"bad timezone", func(c *Config) { c.RiskConfig.Timezone = "Mars/Olympus" }},
		{"no free limit", func(c *Config) { c.PlanConfig.FreeTradeLimit = -5 }},
		{"auth without secret", func(c *Config) { c.AuthConfig.Enabled = true; c.AuthConfig.JWTSecret = "" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.AuthConfig.Enabled = true
	cfg.VaultConfig.Enabled = true
	assert.NoError(t, cfg.Validate(), "the secret may come from vault")
}

func TestGenerateSampleConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.yaml")
	require.NoError(t, GenerateSampleConfig(path))

	cfg, err := loadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "change-me", cfg.AuthConfig.JWTSecret)
	assert.Equal(t, 50, cfg.PlanConfig.FreeTradeLimit)
}
