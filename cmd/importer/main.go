package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"speedmap-platform/internal/blob"
	"speedmap-platform/internal/config"
	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/repository"
	"speedmap-platform/internal/services"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

func main() {
	file := flag.String("file", "", "JSON export written by the mobile app")
	showStats := flag.Bool("stats", false, "Print coverage statistics after the import")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: importer -file export.json [-stats]")
		os.Exit(2)
	}

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

	logger := logging.NewStructuredLogger("speedmap-importer", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[IMPORTER_START] Starting project import", logging.Fields{
		"version": "1.0.0",
		"file":    *file,
	})

	metricsCollector := metrics.NewCollector("speedmap_importer", nil)

	if cfg.Database.Driver == database.DriverSQLite && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to create database directory", logging.Fields{}, err)
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
		logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to apply migrations", logging.Fields{}, err)
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
		logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to open floor plan store", logging.Fields{}, err)
	}

	repo := repository.NewProjectRepository(db, logger, metricsCollector)
	importService := services.NewImportService(repo, blobs, logger, metricsCollector)

	result, err := importService.ImportFile(ctx, *file)
	if err != nil {
		logger.Fatal(ctx, "[IMPORT_ERROR] Import failed", logging.Fields{
			"file": *file,
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("IMPORT COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Projects:     %d\n", result.TotalProjects)
	fmt.Printf("Imported Projects:  %d\n", result.ImportedProjects)
	fmt.Printf("Failed Projects:    %d\n", result.FailedProjects)
	fmt.Printf("Measurements:       %d\n", result.Measurements)
	fmt.Printf("Floor Plans:        %d\n", result.Floorplans)
	fmt.Printf("Settings Imported:  %t\n", result.SettingsImported)
	fmt.Printf("Duration:           %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	if *showStats {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("COVERAGE")
		fmt.Println(strings.Repeat("=", 80))

		engine := coverage.EngineOptions{
			Power:            cfg.Engine.IDWPower,
			ConfidenceRadius: cfg.Engine.ConfidenceRadius,
			MinZoom:          coverage.MinZoom,
			MaxZoom:          cfg.Engine.MaxZoom,
		}
		summaries, err := services.NewStatisticsService(repo, engine, logger, metricsCollector).Overview(ctx)
		if err != nil {
			logger.Error(ctx, "[STATS_ERROR] Coverage summary failed", logging.Fields{}, err)
			fmt.Printf("Coverage summary failed: %v\n", err)
		}
		for _, s := range summaries {
			fmt.Printf("%-30s %4d/%-4d cells  %5.1f%%  download %.1f Mbps avg\n",
				s.Name, s.Measured, s.TotalCells, s.CoveragePercent, s.Download.Mean)
		}
	}

	logger.Info(ctx, "[IMPORTER_COMPLETE] Import finished", logging.Fields{
		"imported_projects": result.ImportedProjects,
		"failed_projects":   result.FailedProjects,
		"measurements":      result.Measurements,
		"duration_seconds":  result.Duration.Seconds(),
	})
}
