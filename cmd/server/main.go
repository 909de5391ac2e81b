// Package main is the entry point for the ledger service.
// It settles trades and cash transactions against customer portfolios and serves
// the ledger's HTTP API, event streams and metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/di"
	"github.com/aristath/ledger/internal/scheduler"
	"github.com/aristath/ledger/internal/server"
	"github.com/aristath/ledger/pkg/logger"
)

// main orchestrates startup:
//  1. Loads configuration from the environment (.env supported)
//  2. Initializes logging
//  3. Wires databases, repositories and services
//  4. Registers and starts background jobs
//  5. Starts the HTTP server
//  6. Waits for a shutdown signal and stops everything in reverse order
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting ledger")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	sched := scheduler.New(log)
	jobs, err := di.RegisterJobs(container, cfg, sched, log)
	if err != nil {
		container.Close()
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	manual := []scheduler.Job{jobs.PriceRefresh, jobs.CacheCleanup, jobs.Maintenance}
	if jobs.Backup != nil {
		manual = append(manual, jobs.Backup)
	}

	srv := server.New(server.Config{
		Log:       log,
		Container: container,
		Jobs:      manual,
		DataDir:   cfg.DataDir,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	cancel()

	// Let in-flight requests finish before stopping jobs and closing databases
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close resources cleanly")
	}

	log.Info().Msg("Ledger stopped")
}
