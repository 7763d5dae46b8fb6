package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haloview/sentry-platform/internal/engine"
	"github.com/haloview/sentry-platform/internal/ingest"
	"github.com/haloview/sentry-platform/internal/notify"
	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/internal/session"
	"github.com/haloview/sentry-platform/internal/timeseries"
	"github.com/haloview/sentry-platform/pkg/config"
	"github.com/haloview/sentry-platform/pkg/health"
	"github.com/haloview/sentry-platform/pkg/mqtt"
	"github.com/haloview/sentry-platform/pkg/postgres"
	"github.com/haloview/sentry-platform/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → env → flags
	cfg := config.NewConfig()
	cfg.ServiceName = "sentry-agent"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting Sentry Occupancy Agent",
		"service_name", cfg.ServiceName,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"evaluation_interval_s", cfg.EvaluationIntervalSec,
		"log_level", cfg.LogLevel)

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize MQTT client
	mqttClient := mqtt.NewClient(cfg, logger)
	if err := mqttClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to MQTT broker", "error", err)
		os.Exit(1)
	}
	defer mqttClient.Disconnect()

	// Initialize Redis client
	redisClient := redis.NewClient(cfg, logger)
	if err := redisClient.Ping(ctx); err != nil {
		logger.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize Postgres client
	pgClient := postgres.NewClient(cfg, logger)
	if err := pgClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer pgClient.Disconnect()

	// Location registry: YAML fixture when configured, Postgres otherwise
	var locations registry.Source
	if cfg.LocationsFile != "" {
		fileSource, err := registry.LoadLocationsFile(cfg.LocationsFile)
		if err != nil {
			logger.Error("Failed to load locations file", "path", cfg.LocationsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("Using file-backed location registry", "path", cfg.LocationsFile)
		locations = fileSource
	} else {
		locations = registry.NewPostgresSource(pgClient.DB(), logger)
	}

	// Time-series storage and occupancy analytics
	store := timeseries.NewStore(redisClient, cfg.SensorRetention(), logger)
	storage := engine.NewStorage(store, logger)
	analyzer := engine.NewAnalyzer(storage, logger)

	// Alert lifecycle: session dedup in Postgres, responder fan-out on MQTT
	notifier := notify.NewMQTTNotifier(mqttClient, logger)
	sessions := session.NewRepository(logger)
	lifecycle := session.NewLifecycle(pgClient, sessions, notifier, cfg.SessionResetThreshold(), logger)

	// Agents: ingestion feeds the streams, the engine evaluates them
	ingestAgent := ingest.NewAgent(mqttClient, storage, redisClient, locations, lifecycle, cfg, logger)
	engineAgent := engine.NewAgent(storage, analyzer, locations, lifecycle, cfg, logger)

	// Start health check server
	healthChecker := health.NewChecker(mqttClient, redisClient, pgClient, logger)
	httpServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	// Start agents in goroutines
	agentErr := make(chan error, 2)
	go func() {
		if err := ingestAgent.Start(ctx); err != nil {
			logger.Error("Ingestion agent error", "error", err)
			agentErr <- err
		}
	}()
	go func() {
		if err := engineAgent.Start(ctx); err != nil {
			logger.Error("Engine agent error", "error", err)
			agentErr <- err
		}
	}()

	// Wait for shutdown signal or agent error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	cancel()

	engineAgent.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Sentry agent shutdown complete")
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
