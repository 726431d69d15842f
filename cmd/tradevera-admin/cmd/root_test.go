package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/config"
	"tradevera/internal/app"
	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/logging"
	"tradevera/internal/risk"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	cfg := &config.Config{}
	cfg.DatabaseConfig.Backend = config.BackendMemory
	cfg.RiskConfig.DefaultCooldownMinutes = 45
	cfg.RiskConfig.StreakLookback = 60
	cfg.RiskConfig.Timezone = "UTC"
	cfg.PlanConfig.FreeTradeLimit = 50
	cfg.AuthConfig.AccessTokenDuration = time.Hour

	a, err := app.New(context.Background(), cfg, logging.Nop(), false)
	require.NoError(t, err)

	orig := openApp
	openApp = func(context.Context, bool) (*app.App, error) { return a, nil }
	t.Cleanup(func() { openApp = orig })
	return a
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func lockUser(t *testing.T, a *app.App, userID string) {
	t.Helper()
	ctx := context.Background()
	s, err := a.Store.GetOrCreateSettings(ctx, a.Risk.Defaults(userID))
	require.NoError(t, err)
	s.ApplyLockout(risk.ReasonDailyMaxLoss, a.Risk.Clock().Now().Add(time.Hour))
	require.NoError(t, a.Store.SaveSettings(ctx, s))
}

func TestRiskCommands(t *testing.T) {
	a := newTestApp(t)
	lockUser(t, a, "locked-user")

	out, err := run(t, "risk", "locked")
	require.NoError(t, err)
	assert.Contains(t, out, "locked-user")
	assert.Contains(t, out, "daily_max_loss")

	out, err = run(t, "risk", "unlock", "locked-user")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared lockout")

	out, err = run(t, "risk", "unlock", "locked-user")
	require.NoError(t, err)
	assert.Contains(t, out, "has no lockout")

	out, err = run(t, "risk", "show", "locked-user")
	require.NoError(t, err)
	var view settingsView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.False(t, view.Status.IsLocked)
	assert.Equal(t, 45, view.Settings.CooldownMinutes)

	out, err = run(t, "risk", "events", "locked-user", "-n", "5")
	require.NoError(t, err)
	var evs []risk.Event
	require.NoError(t, json.Unmarshal([]byte(out), &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, risk.EventLockoutCleared, evs[0].Kind)

	out, err = run(t, "risk", "locked")
	require.NoError(t, err)
	assert.Contains(t, out, "no active lockouts")
}

func TestUserPlanCommand(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Store.CreateUser(context.Background(), &auth.User{
		ID: "u-1", Email: "trader@example.com", Plan: billing.TierFree, CreatedAt: time.Now().UTC(),
	}))

	out, err := run(t, "user", "plan", "u-1", "pro")
	require.NoError(t, err)
	assert.Contains(t, out, "pro plan")

	u, err := a.Store.GetUserByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, billing.TierPro, u.Plan)

	_, err = run(t, "user", "plan", "u-1", "platinum")
	assert.Error(t, err)

	_, err = run(t, "user", "plan", "missing", "starter")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	a := newTestApp(t)

	_, err := run(t, "token", "u-1", "--plan", "starter")
	require.Error(t, err)

	a.Config.AuthConfig.JWTSecret = "admin-test-secret"
	out, err := run(t, "token", "u-1", "--plan", "starter", "--email", "t@example.com")
	require.NoError(t, err)

	claims, err := auth.NewJWTManager("admin-test-secret", time.Hour).ValidateAccessToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "starter", claims.Plan)
}

func TestCacheFlushRequiresRedis(t *testing.T) {
	newTestApp(t)

	_, err := run(t, "cache", "flush")
	assert.Error(t, err)
}
