// Package main is the entry point for the optionseller HTTP service.
// It screens the watchlist on a schedule, serves recommendations and
// portfolio risk over HTTP, and backs up its databases.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/di"
	"github.com/aristath/optionseller/internal/server"
	"github.com/aristath/optionseller/pkg/logger"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	version := getEnv("VERSION", "dev")
	log.Info().Str("version", version).Str("data_dir", cfg.DataDir).Msg("Starting optionseller")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Databases, market data, analytics, services and the job scheduler
	container, jobs, err := di.Wire(ctx, cfg, version, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close container")
		}
	}()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Version:   version,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Warm the latest report so /api/screen/latest answers before the first tick
	go func() {
		if err := container.Scheduler.RunNow(jobs.Rescan); err != nil {
			log.Warn().Err(err).Msg("Initial screening run failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	// Waits for running jobs
	container.Scheduler.Stop()
	log.Info().Msg("Scheduler stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
