package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers contains the auth HTTP handlers
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register handles user registration
// POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "registration successful",
		"user":    toUserResponse(user),
	})
}

// Login handles user login
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "failed to log in")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetMe returns the authenticated account
// GET /api/auth/me
func (h *Handlers) GetMe(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// RegisterRoutes mounts the public and authenticated auth routes
func (h *Handlers) RegisterRoutes(router *gin.RouterGroup, jwtManager *JWTManager) {
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.GET("/me", Middleware(jwtManager), h.GetMe)
}

func (h *Handlers) writeError(c *gin.Context, err error, fallback string) {
	var authErr AuthError
	if errors.As(err, &authErr) {
		status := http.StatusBadRequest
		switch authErr.Code {
		case ErrEmailExists.Code:
			status = http.StatusConflict
		case ErrInvalidCredentials.Code:
			status = http.StatusUnauthorized
		case ErrUserNotFound.Code:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error":   authErr.Code,
			"message": authErr.Message,
		})
		return
	}
	h.service.logger.WithError(err).Error(fallback)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "INTERNAL_ERROR",
		"message": fallback,
	})
}
