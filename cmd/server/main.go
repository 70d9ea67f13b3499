package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/api"
	"github.com/fromzero/socialbook/internal/app"
	"github.com/fromzero/socialbook/internal/cache"
	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/notify"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/config"
	"github.com/fromzero/socialbook/pkg/logging"
	"github.com/fromzero/socialbook/pkg/telemetry"
)

func main() {
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
	logger.Info("Starting Socialbook API Server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	ctx := context.Background()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer backend.Close()

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	var timelineCache feed.TimelineCache
	if redisCache != nil {
		timelineCache = cache.NewTimelineCache(redisCache, cfg.Feed.CacheTTL, logging.WithComponent("timeline-cache"))
	}

	var notifiers notify.Multi
	if cfg.Notify.RecordInDB {
		notifiers = append(notifiers, notify.NewRecorder(backend.Notifications))
	}
	if cfg.Notify.NatsURL != "" {
		publisher, err := notify.Connect(cfg.Notify.NatsURL, cfg.Notify.Subject, logging.WithComponent("nats"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	var notifier relationship.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	services := app.NewServices(cfg, backend, notifier, timelineCache)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := api.NewRouter(api.Dependencies{
		Users:         backend.Users,
		Notifications: backend.Notifications,
		Relationships: services.Relationships,
		Feed:          services.Feed,
		Health:        backend.Health,
	})
	router.SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	if cfg.Reconcile.Interval > 0 {
		go runReconciler(backend, cfg, logger)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// runReconciler repairs friendships in the background for the life of the process
func runReconciler(backend *app.Backend, cfg *config.Config, logger *zap.Logger) {
	reconciler := relationship.NewReconciler(backend.Relationships, cfg.Reconcile.BatchSize, logging.WithComponent("reconcile"))
	ticker := time.NewTicker(cfg.Reconcile.Interval)
	defer ticker.Stop()

	for range ticker.C {
		if _, err := reconciler.Run(context.Background()); err != nil {
			logger.Error("Reconciliation failed", zap.Error(err))
		}
	}
}
