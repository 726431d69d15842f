package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tradevera/internal/apperr"
	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/cache"
	"tradevera/internal/events"
	"tradevera/internal/logging"
	"tradevera/internal/observability"
	"tradevera/internal/risk"
	"tradevera/internal/trades"
)

// DevUserID is the account every request runs as when auth is disabled.
const DevUserID = "00000000-0000-0000-0000-000000000000"

// HealthChecker is implemented by every store backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	gate        *trades.Gate
	risk        *risk.Service
	authService *auth.Service
	authEnabled bool
	plans       *billing.Plans
	store       HealthChecker
	cache       *cache.CacheService
	metrics     *observability.Metrics
	hub         *UserWSHub
	stopHub     context.CancelFunc
	rateLimiter *RateLimiter
	logger      *logging.Logger
	started     time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Trade creation rate limit, per user.
	TradeRatePerSecond float64
	TradeRateBurst     int

	MetricsPath string
	DevUserPlan billing.SubscriptionTier
}

// Dependencies are the services the server routes to. Auth, Cache, Metrics and
// Bus may be nil; Plans defaults to the standard plan limits.
type Dependencies struct {
	Gate    *trades.Gate
	Risk    *risk.Service
	Plans   *billing.Plans
	Auth    *auth.Service
	Store   HealthChecker
	Cache   *cache.CacheService
	Metrics *observability.Metrics
	Bus     *events.EventBus
	Logger  *logging.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.DevUserPlan == "" {
		config.DevUserPlan = billing.TierPro
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	plans := deps.Plans
	if plans == nil {
		plans = billing.NewPlans(billing.DefaultFreeTradeLimit)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	router.Use(cors.New(corsConfig))

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := NewUserWSHub()
	if deps.Metrics != nil {
		hub.onConnChange = deps.Metrics.WSConnected
	}
	hub.Attach(deps.Bus)
	go hub.Run(hubCtx)

	s := &Server{
		router:      router,
		config:      config,
		gate:        deps.Gate,
		risk:        deps.Risk,
		authService: deps.Auth,
		authEnabled: deps.Auth != nil,
		plans:       plans,
		store:       deps.Store,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		hub:         hub,
		stopHub:     stopHub,
		rateLimiter: NewRateLimiter(config.TradeRatePerSecond, config.TradeRateBurst),
		logger:      logger.WithComponent("api"),
		started:     time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.metrics.Handler()))
	}

	// Auth routes (public, no authentication required)
	if s.authEnabled {
		authHandlers := auth.NewHandlers(s.authService)
		authHandlers.RegisterRoutes(s.router.Group("/api/auth"), s.authService.GetJWTManager())
	}
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authEnabled})
	})

	authn := auth.DevMiddleware(DevUserID, s.config.DevUserPlan)
	if s.authEnabled {
		authn = auth.Middleware(s.authService.GetJWTManager())
	}

	api := s.router.Group("/api", authn)
	{
		api.POST("/trades", perUserRateLimit(s.rateLimiter), s.handleCreateTrade)
		api.GET("/trades", s.handleListTrades)

		api.GET("/risk-settings", s.handleGetRiskSettings)
		api.PUT("/risk-settings", s.handleUpdateRiskSettings)
		api.POST("/risk-settings/unlock", s.handleUnlockRiskSettings)
		api.GET("/risk-settings/events", s.handleListRiskEvents)
	}

	s.router.GET("/ws/user", authn, s.handleUserWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the user WebSocket hub.
func (s *Server) Hub() *UserWSHub {
	return s.hub
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDuration(s.config.ReadTimeout, 15*time.Second),
		WriteTimeout: orDuration(s.config.WriteTimeout, 15*time.Second),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.stopHub()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":   "healthy",
		"database": "healthy",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	}
	if s.cache != nil {
		body["cache"] = s.cache.GetStats()
	}

	if s.store != nil {
		if err := s.store.HealthCheck(ctx); err != nil {
			s.logger.WithError(err).Warn("health check failed")
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"error":   code,
		"message": message,
	})
}

// writeError maps service errors to status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr *apperr.ValidationError
		qerr *trades.QuotaExceededError
		lerr *trades.LockoutActiveError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": verr.Error(),
			"fields":  verr.Fields,
		})
	case errors.As(err, &qerr):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "PLAN_LIMIT_REACHED",
			"message": qerr.Error(),
			"plan":    qerr.Plan,
			"limit":   qerr.Limit,
			"used":    qerr.Used,
		})
	case errors.As(err, &lerr):
		c.JSON(http.StatusLocked, gin.H{
			"error":        "RISK_LOCKOUT",
			"message":      "trading is locked by your risk guardrails",
			"lockoutUntil": lerr.LockoutUntil,
			"reason":       lerr.Reason,
		})
	case errors.Is(err, risk.ErrInvalidUser):
		errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error("request failed")
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func orDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
