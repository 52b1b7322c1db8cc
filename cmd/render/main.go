package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"speedmap-platform/internal/config"
	"speedmap-platform/internal/coverage"
	"speedmap-platform/internal/heatmap"
	"speedmap-platform/internal/repository"
	"speedmap-platform/internal/services"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

// render writes a project's heatmap to a file without starting the API
func main() {
	projectID := flag.String("project", "", "Project ID; lists projects when empty")
	channel := flag.String("channel", string(heatmap.KindDownload), "download, upload or confidence")
	format := flag.String("format", string(services.FormatPNG), "png, html or json")
	out := flag.String("out", "", "Output file (default <project>-<channel>.<format>)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("speedmap-render", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("speedmap_render", nil)
	ctx := context.Background()

	db, err := database.NewDB(&database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[RENDER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	repo := repository.NewProjectRepository(db, logger, metricsCollector)

	if *projectID == "" {
		projects, total, err := repo.ListProjects(ctx, 100, 0)
		if err != nil {
			logger.Fatal(ctx, "[RENDER_ERROR] Failed to list projects", logging.Fields{}, err)
		}
		fmt.Printf("%d projects\n", total)
		for _, p := range projects {
			fmt.Printf("  %s  %-30s %3d measurements\n", p.ID, p.Name, p.MeasurementCount)
		}
		return
	}

	kind, err := heatmap.ParseKind(*channel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	f, err := services.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	engine := coverage.EngineOptions{
		Power:            cfg.Engine.IDWPower,
		ConfidenceRadius: cfg.Engine.ConfidenceRadius,
		MinZoom:          coverage.MinZoom,
		MaxZoom:          cfg.Engine.MaxZoom,
	}
	heatmaps := services.NewHeatmapService(repo, engine, cfg.Engine.Subdivisions, logger, metricsCollector)

	rendered, err := heatmaps.Render(ctx, *projectID, kind, f)
	if err != nil {
		logger.Fatal(ctx, "[RENDER_ERROR] Failed to render heatmap", logging.Fields{
			"project_id": *projectID,
			"channel":    kind,
		}, err)
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("%s-%s.%s", *projectID, kind, f)
	}
	if err := os.WriteFile(path, rendered.Body, 0o644); err != nil {
		logger.Fatal(ctx, "[RENDER_ERROR] Failed to write output", logging.Fields{"path": path}, err)
	}

	fmt.Printf("Wrote %s (%s, %d bytes)\n", path, rendered.ContentType, len(rendered.Body))
}
