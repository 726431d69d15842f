package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/storage/memory"
)

func newAuthService(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(memory.New(), auth.Config{JWTSecret: "test-secret", BcryptCost: 4})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := auth.NewService(memory.New(), auth.Config{})
	assert.Error(t, err)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, auth.RegisterRequest{Email: " Trader@Example.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", user.Email)
	assert.Equal(t, billing.TierFree, user.Plan)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	_, err = svc.Register(ctx, auth.RegisterRequest{Email: "TRADER@example.com", Password: "another pass"})
	assert.Equal(t, auth.ErrEmailExists, err)

	resp, err := svc.Login(ctx, auth.LoginRequest{Email: "trader@EXAMPLE.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)

	claims, err := svc.GetJWTManager().ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "free", claims.Plan)

	_, err = svc.Login(ctx, auth.LoginRequest{Email: "trader@example.com", Password: "wrong password"})
	assert.Equal(t, auth.ErrInvalidCredentials, err)

	_, err = svc.Login(ctx, auth.LoginRequest{Email: "nobody@example.com", Password: "correct horse"})
	assert.Equal(t, auth.ErrInvalidCredentials, err)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.Register(context.Background(), auth.RegisterRequest{Email: "a@b.co", Password: "short"})
	var authErr auth.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, auth.ErrWeakPassword.Code, authErr.Code)
}

func TestGetUser(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, auth.RegisterRequest{Email: "a@b.co", Password: "long enough"})
	require.NoError(t, err)

	got, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = svc.GetUser(ctx, "missing")
	assert.Equal(t, auth.ErrUserNotFound, err)
}
