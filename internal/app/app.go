// Package app wires configuration, storage and services for the server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradevera/config"
	"tradevera/internal/api"
	"tradevera/internal/auth"
	"tradevera/internal/billing"
	"tradevera/internal/cache"
	"tradevera/internal/clock"
	"tradevera/internal/events"
	"tradevera/internal/logging"
	"tradevera/internal/observability"
	"tradevera/internal/risk"
	"tradevera/internal/storage/backend"
	"tradevera/internal/trades"
	"tradevera/internal/vault"
)

// App holds every long-lived component.
type App struct {
	Config        *config.Config
	Logger        *logging.Logger
	Store         backend.Store
	Cache         *cache.CacheService
	SettingsCache *cache.RiskSettingsCache
	Metrics       *observability.Metrics
	Bus           *events.EventBus
	Plans         *billing.Plans
	Risk          *risk.Service
	Gate          *trades.Gate
	Auth          *auth.Service
}

// LoadConfig reads the configuration and overlays secrets from Vault when enabled.
func LoadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	vc, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return nil, err
	}
	if vc.IsEnabled() {
		vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := vc.ApplyTo(vctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to load secrets from vault: %w", err)
		}
	}

	if cfg.AuthConfig.Enabled && cfg.AuthConfig.JWTSecret == "" {
		return nil, fmt.Errorf("auth is enabled but no JWT secret is configured")
	}
	return cfg, nil
}

// SetupLogging installs the process-wide logger described by cfg.
func SetupLogging(cfg config.LoggingConfig, component string) *logging.Logger {
	logger := logging.New(&logging.Config{
		Level:       cfg.Level,
		Output:      cfg.Output,
		JSONFormat:  cfg.JSONFormat,
		IncludeFile: cfg.IncludeFile,
		Component:   component,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
		MaxAgeDays:  cfg.MaxAgeDays,
	})
	logging.SetDefault(logger)
	return logger
}

// New builds the components. migrate controls whether Postgres migrations run.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrate bool) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Bus:    events.NewEventBus(),
		Plans:  billing.NewPlans(cfg.PlanConfig.FreeTradeLimit),
	}

	store, err := backend.Open(ctx, cfg.DatabaseConfig, migrate)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if cfg.MetricsConfig.Enabled {
		a.Metrics = observability.NewMetrics("tradevera")
	}

	riskOpts := []risk.Option{risk.WithEventBus(a.Bus)}
	if a.Metrics != nil {
		riskOpts = append(riskOpts, risk.WithObserver(a.Metrics))
	}

	if cfg.RedisConfig.Enabled {
		cs, err := cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.WithError(err).Warn("redis cache unavailable, continuing without it")
		} else {
			a.Cache = cs
			a.SettingsCache = cache.NewRiskSettingsCache(cs, cfg.RedisConfig.TTL)
			riskOpts = append(riskOpts, risk.WithCache(a.SettingsCache))
		}
	}

	policy := risk.Policy{
		DefaultCooldownMinutes: cfg.RiskConfig.DefaultCooldownMinutes,
		StreakLookback:         cfg.RiskConfig.StreakLookback,
		Location:               cfg.RiskConfig.Location(),
	}
	a.Risk = risk.NewService(store, clock.System(), policy, riskOpts...)

	var gateOpts []trades.GateOption
	if a.Metrics != nil {
		gateOpts = append(gateOpts, trades.WithMetrics(a.Metrics))
	}
	a.Gate = trades.NewGate(store, a.Risk, a.Plans, gateOpts...)

	if cfg.AuthConfig.Enabled {
		svc, err := auth.NewService(store, auth.Config{
			JWTSecret:           cfg.AuthConfig.JWTSecret,
			AccessTokenDuration: cfg.AuthConfig.AccessTokenDuration,
			MinPasswordLength:   cfg.AuthConfig.MinPasswordLength,
			BcryptCost:          cfg.AuthConfig.BcryptCost,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize auth: %w", err)
		}
		a.Auth = svc
	}

	return a, nil
}

// Server builds the HTTP API server.
func (a *App) Server() *api.Server {
	sc := a.Config.ServerConfig

	var origins []string
	for _, o := range strings.Split(sc.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return api.NewServer(api.ServerConfig{
		Host:               sc.Host,
		Port:               sc.Port,
		ProductionMode:     sc.Production,
		AllowedOrigins:     origins,
		ReadTimeout:        time.Duration(sc.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(sc.WriteTimeout) * time.Second,
		TradeRatePerSecond: sc.TradeRatePerSecond,
		TradeRateBurst:     sc.TradeRateBurst,
		MetricsPath:        a.Config.MetricsConfig.Path,
		DevUserPlan:        billing.TierPro,
	}, api.Dependencies{
		Gate:    a.Gate,
		Risk:    a.Risk,
		Plans:   a.Plans,
		Auth:    a.Auth,
		Store:   a.Store,
		Cache:   a.Cache,
		Metrics: a.Metrics,
		Bus:     a.Bus,
		Logger:  a.Logger,
	})
}

// Close releases the store and cache connections after in-flight events drain.
func (a *App) Close() {
	a.Bus.Wait()
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close cache")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
