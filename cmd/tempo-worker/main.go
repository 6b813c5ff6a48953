package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tempo/internal/amqp"
	"tempo/internal/config"
	"tempo/internal/export"
	applog "tempo/internal/log"
	"tempo/internal/period"
	"tempo/internal/storage"
	"tempo/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting tempo-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if !cfg.SheetsEnabled() {
		logger.Error("Timesheet export is not configured, nothing to do (set GOOGLE_SPREADSHEET_ID and credentials)")
		os.Exit(1)
	}

	loc, err := period.LoadZone(cfg.Timezone)
	if err != nil {
		logger.Error("Failed to load timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	store, err := storage.New(cfg.DataDir, loc)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sheetsClient, err := export.New(ctx, cfg, loc)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(store, sheetsClient, cfg.SyncBatchSize)

	// On startup, export anything the cursor says is still pending.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
		// Don't exit - continue with normal operation
	}

	g, ctx := errgroup.WithContext(ctx)

	// AMQP is optional for the worker too; the catch-up ticker alone keeps
	// the timesheet converging.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on periodic sync only", "error", err)
		} else {
			defer amqpClient.Close()
			g.Go(func() error {
				return amqpClient.ConsumeSessionLogged(ctx, func(msg *amqp.SessionLoggedMessage) error {
					return syncWorker.HandleSessionMessage(ctx, msg)
				})
			})
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := syncWorker.ProcessPendingSessions(ctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
