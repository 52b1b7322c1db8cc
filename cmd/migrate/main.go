package main

import (
	"flag"
	"fmt"
	"os"

	"speedmap-platform/internal/config"
	"speedmap-platform/pkg/database"
	"speedmap-platform/pkg/logging"
	"speedmap-platform/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("speedmap-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	db, err := database.NewDB(&database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, metrics.NewCollector("speedmap_migrate", nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	files, err := database.MigrationFiles(cfg.Database.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list migrations: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s database, %d migration files embedded\n", cfg.Database.Driver, len(files))

	switch *direction {
	case "up":
		err = db.MigrateUp()
	case "down":
		err = db.MigrateDown()
	case "version":
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction %q\n", *direction)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read migration version: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
}
