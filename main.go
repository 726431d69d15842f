package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradevera/internal/app"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := app.SetupLogging(cfg.LoggingConfig, "main")
	logger.Info("structured logging initialized")

	a, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize service")
	}

	server := a.Server()

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("failed to start web server")
		}
	}()

	logger.Info("tradevera risk service started",
		"backend", cfg.DatabaseConfig.Backend,
		"auth_enabled", cfg.AuthConfig.Enabled,
		"cache_enabled", a.Cache != nil,
		"addr", cfg.ServerConfig.Host,
		"port", cfg.ServerConfig.Port)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("error shutting down web server")
	}
	a.Close()

	logger.Info("shutdown complete")
}
