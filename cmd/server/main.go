package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"speedmap-platform/internal/blob"
	"speedmap-platform/internal/config"
	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/gesture"
	"speedmap-platform/internal/handlers"
	"speedmap-platform/internal/repository"
	"speedmap-platform/internal/services"
	"speedmap-platform/internal/speedtest"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("speedmap-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting speed map API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"blob_driver": cfg.Blob.Driver,
	})

	metricsCollector := metrics.NewCollector("speedmap", nil)

	if cfg.Database.Driver == database.DriverSQLite && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create database directory", logging.Fields{
				"path": cfg.Database.Path,
			}, err)
		}
	}

	db, err := database.NewDB(&database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to apply migrations", logging.Fields{}, err)
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Driver:    cfg.Blob.Driver,
		Root:      cfg.Blob.Root,
		Bucket:    cfg.Blob.Bucket,
		Region:    cfg.Blob.Region,
		Endpoint:  cfg.Blob.Endpoint,
		PathStyle: cfg.Blob.PathStyle,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
	}, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open floor plan store", logging.Fields{}, err)
	}

	runner := speedtest.NewClient(speedtest.Config{
		BaseURL:       cfg.SpeedTest.BaseURL,
		PhaseDuration: cfg.SpeedTest.PhaseDuration,
		DownloadBytes: cfg.SpeedTest.DownloadBytes,
		UploadChunk:   cfg.SpeedTest.UploadChunk,
		HTTPTimeout:   cfg.SpeedTest.HTTPTimeout,
	}, logger, metricsCollector)

	engine := coverage.EngineOptions{
		Power:            cfg.Engine.IDWPower,
		ConfidenceRadius: cfg.Engine.ConfidenceRadius,
		MinZoom:          coverage.MinZoom,
		MaxZoom:          cfg.Engine.MaxZoom,
	}
	gestures := gesture.Options{
		MinZoom:      coverage.MinZoom,
		MaxZoom:      cfg.Engine.MaxZoom,
		TapThreshold: cfg.Engine.TapThreshold,
	}

	repo := repository.NewProjectRepository(db, logger, metricsCollector)

	handler := handlers.NewHandler(handlers.Services{
		Projects:   services.NewProjectService(repo, blobs, engine, gestures, logger, metricsCollector),
		Scans:      services.NewScanService(repo, runner, logger, metricsCollector),
		Heatmaps:   services.NewHeatmapService(repo, engine, cfg.Engine.Subdivisions, logger, metricsCollector),
		Statistics: services.NewStatisticsService(repo, engine, logger, metricsCollector),
		Settings:   services.NewSettingsService(repo, logger),
	}, repo, logger, metricsCollector)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
