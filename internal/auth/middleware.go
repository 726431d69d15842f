package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradevera/internal/billing"
)

const (
	// Context keys for user data
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "user_email"
	ContextKeyPlan   = "user_plan"
	ContextKeyClaims = "user_claims"
)

// Middleware creates a JWT authentication middleware
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   ErrUnauthorized.Code,
				"message": "missing or malformed authorization header",
			})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			var authErr AuthError
			if !errors.As(err, &authErr) {
				authErr = ErrInvalidToken
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   authErr.Code,
				"message": authErr.Message,
			})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// DevMiddleware authenticates every request as a fixed user. Used when auth is disabled.
func DevMiddleware(userID string, plan billing.SubscriptionTier) gin.HandlerFunc {
	claims := &UserClaims{UserID: userID, Email: "dev@localhost", Plan: string(plan)}
	return func(c *gin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			override := *claims
			override.UserID = id
			if p := c.GetHeader("X-User-Plan"); p != "" {
				override.Plan = string(billing.ParseTier(p))
			}
			setClaims(c, &override)
		} else {
			setClaims(c, claims)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on WebSocket upgrades.
		if t := c.Query("token"); t != "" && c.GetHeader("Upgrade") != "" {
			return t, true
		}
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c *gin.Context, claims *UserClaims) {
	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyEmail, claims.Email)
	c.Set(ContextKeyPlan, string(billing.ParseTier(claims.Plan)))
	c.Set(ContextKeyClaims, claims)
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetUserClaims extracts the full user claims from the Gin context
func GetUserClaims(c *gin.Context) *UserClaims {
	if claims, exists := c.Get(ContextKeyClaims); exists {
		if uc, ok := claims.(*UserClaims); ok {
			return uc
		}
	}
	return nil
}

// GetUserPlan extracts the plan from the Gin context
func GetUserPlan(c *gin.Context) billing.SubscriptionTier {
	return billing.ParseTier(c.GetString(ContextKeyPlan))
}
