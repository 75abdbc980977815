package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/database"
	"github.com/radiusdt/adpulse/internal/geo"
	"github.com/radiusdt/adpulse/internal/httpserver"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/middleware"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/radiusdt/adpulse/internal/stream"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to panic
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting adpulse",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(cfg.Metrics.Namespace, registry)

	deps := &httpserver.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Gatherer: registry,
	}

	// Campaign directory (PostgreSQL)
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		deps.DB = db
	} else {
		logger.Warn("PostgreSQL disabled, using in-memory campaign directory")
	}

	// Campaign lookup cache (Redis)
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		deps.Redis = rdb
	}

	// Event store (ClickHouse)
	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()

		store := storage.NewClickHouseEventStore(ch.Conn, cfg.ClickHouse.Table, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare event schema", zap.Error(err))
		}
		deps.ClickHouse = ch
		deps.Events = store
	} else {
		logger.Warn("ClickHouse disabled, events are kept in memory")
	}

	// Geo enrichment
	if cfg.Geo.Enabled {
		locator, err := geo.NewMaxMindLocator(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Fatal("failed to open GeoIP database", zap.Error(err), zap.String("path", cfg.Geo.DatabasePath))
		}
		defer locator.Close()
		deps.Locator = locator
	}

	// Event stream
	if cfg.Kafka.Enabled {
		publisher := stream.NewKafkaPublisher(cfg.Kafka)
		defer publisher.Close()
		deps.Publisher = publisher
		logger.Info("publishing events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Analytics.QueryTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Start rate limiter cleanup goroutine
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := rateLimitMW.CleanupIPLimiters(time.Hour); n > 0 {
					logger.Debug("evicted idle rate limiters", zap.Int("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background goroutines
	cancel()

	logger.Info("server stopped")
}
