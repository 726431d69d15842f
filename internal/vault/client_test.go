package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/config"
)

func fakeVault(t *testing.T, reads *int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/tradevera/service" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		atomic.AddInt32(reads, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"jwt_secret":"from-vault","database_password":"pg-secret"},"metadata":{"version":3}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApplyTo(t *testing.T) {
	var reads int32
	srv := fakeVault(t, &reads)

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "test-token",
		MountPath:  "secret",
		SecretPath: "tradevera/service",
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.AuthConfig.JWTSecret = "from-env"
	cfg.RedisConfig.Password = "redis-env"

	require.NoError(t, c.ApplyTo(context.Background(), cfg))
	assert.Equal(t, "from-vault", cfg.AuthConfig.JWTSecret)
	assert.Equal(t, "pg-secret", cfg.DatabaseConfig.Password)
	assert.Equal(t, "redis-env", cfg.RedisConfig.Password, "empty secrets keep the configured value")

	// Second read is served from cache.
	_, err = c.ServiceSecrets(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&reads))

	c.ClearCache()
	_, err = c.ServiceSecrets(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&reads))
}

func TestMissingSecret(t *testing.T) {
	var reads int32
	srv := fakeVault(t, &reads)

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "test-token",
		MountPath:  "secret",
		SecretPath: "elsewhere",
	})
	require.NoError(t, err)

	_, err = c.ServiceSecrets(context.Background())
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	cfg := &config.Config{}
	cfg.AuthConfig.JWTSecret = "keep"
	require.NoError(t, c.ApplyTo(context.Background(), cfg))
	assert.Equal(t, "keep", cfg.AuthConfig.JWTSecret)
	assert.NoError(t, c.Health(context.Background()))
}
