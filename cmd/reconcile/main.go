package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/app"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/config"
	"github.com/fromzero/socialbook/pkg/logging"
	"github.com/fromzero/socialbook/pkg/telemetry"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit, ignoring reconcile_interval")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Socialbook Reconciler")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	if cfg.Database.InMemory() {
		logger.Fatal("Reconciler needs a shared database; memory:// is per process")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer backend.Close()

	reconciler := relationship.NewReconciler(backend.Relationships, cfg.Reconcile.BatchSize, logging.WithComponent("reconcile"))

	if *once || cfg.Reconcile.Interval <= 0 {
		if _, err := reconciler.Run(ctx); err != nil {
			logger.Error("Reconciliation failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(cfg.Reconcile.Interval)
	defer ticker.Stop()

	for {
		if _, err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Reconciliation failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Reconciler exited")
			return
		case <-ticker.C:
		}
	}
}
