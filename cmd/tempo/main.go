package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tempo/internal/aggregate"
	"tempo/internal/amqp"
	"tempo/internal/config"
	apphttp "tempo/internal/http"
	applog "tempo/internal/log"
	"tempo/internal/period"
	"tempo/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
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

	// AMQP is optional; without it sessions still persist and the worker's
	// periodic catch-up picks them up.
	var publisher apphttp.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, store, apphttp.Options{
		Publisher: publisher,
		Location:  loc,
		Bands: aggregate.Thresholds{
			Low:    cfg.HeatmapLow,
			Medium: cfg.HeatmapMedium,
			High:   cfg.HeatmapHigh,
		},
		CacheTTL: cfg.CacheTTL,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting tempo server",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
