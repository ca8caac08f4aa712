package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations brings the schema up to date from the numbered SQL pairs in
// migrationsPath. Calling it against a current database is a no-op; a dirty
// version (a previous run died mid-migration) fails loudly and must be
// resolved by hand before the service starts.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	before, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d, resolve manually before starting", before)
	}

	switch err := m.Up(); {
	case err == nil:
		after, _, _ := m.Version()
		logger.Info("Schema migrated",
			zap.Uint("from_version", before),
			zap.Uint("to_version", after))
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Schema already up to date", zap.Uint("version", before))
	default:
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
