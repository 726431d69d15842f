package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/internal/billing"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-1", Email: "a@b.co", Plan: "starter"})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "starter", claims.Plan)
	assert.Equal(t, int64(3600), m.GetAccessTokenDuration())
}

func TestJWTRejectsTamperedAndExpired(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-1"})
	require.NoError(t, err)

	_, err = NewJWTManager("other-secret", time.Minute).ValidateAccessToken(token)
	assert.Equal(t, ErrInvalidToken, err)

	_, err = m.ValidateAccessToken(token + "x")
	assert.Equal(t, ErrInvalidToken, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ValidateAccessToken(token)
	assert.Equal(t, ErrTokenExpired, err)
}

func TestJWTRequiresSubject(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	token, err := m.GenerateAccessToken(UserClaims{})
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", time.Hour)

	router := gin.New()
	router.GET("/me", Middleware(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c), "plan": GetUserPlan(c)})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-9", Plan: "gold"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u-9","plan":"free"}`, w.Body.String())
}

func TestDevMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/me", DevMiddleware("dev", billing.TierPro), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c), "plan": GetUserPlan(c)})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.JSONEq(t, `{"user":"dev","plan":"pro"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "other")
	req.Header.Set("X-User-Plan", "starter")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"user":"other","plan":"starter"}`, w.Body.String())
}
