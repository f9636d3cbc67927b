package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending schema migrations from migrationsDir.
func RunMigrations(db *sql.DB, migrationsDir string, logger *log.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migrate driver: %w", err)
	}

	if abs, err := filepath.Abs(migrationsDir); err == nil {
		migrationsDir = abs
	}
	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDir),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Printf("no pending migrations in %s", migrationsDir)
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	logger.Printf("migrations applied from %s", migrationsDir)
	return nil
}
