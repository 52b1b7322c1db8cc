package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"speedmap-platform/migrations"
	"speedmap-platform/pkg/logging"
)

// MigrateUp applies all pending migrations. No pending migrations is not an error.
func (d *DB) MigrateUp() error {
	m, err := d.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared pool

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration
func (d *DB) MigrateDown() error {
	m, err := d.newMigrate()
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied version, or 0 when nothing has run yet
func (d *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := d.newMigrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (d *DB) newMigrate() (*migrate.Migrate, error) {
	dir := "postgres"
	if d.config.Driver == DriverSQLite {
		dir = "sqlite"
	}

	src, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var driver migratedb.Driver
	if d.config.Driver == DriverSQLite {
		driver, err = sqlite.WithInstance(d.db.DB, &sqlite.Config{})
	} else {
		driver, err = postgres.WithInstance(d.db.DB, &postgres.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", d.config.Driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dir, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: d.logger}
	return m, nil
}

// MigrationFiles lists the embedded migrations for a driver
func MigrationFiles(driver string) ([]string, error) {
	dir := "postgres"
	if driver == DriverSQLite {
		dir = "sqlite"
	}
	return fs.Glob(migrations.FS, dir+"/*.sql")
}

// migrateLogger routes migrate output through the structured logger
type migrateLogger struct {
	logger *logging.StructuredLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(context.Background(), "[MIGRATE] "+strings.TrimSpace(fmt.Sprintf(format, v...)), logging.Fields{})
}

func (l *migrateLogger) Verbose() bool {
	return false
}
