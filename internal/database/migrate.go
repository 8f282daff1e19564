package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// newMigrator builds a migrator for db. The returned release func must be
// called when done: on Postgres it hands the dedicated connection back to the
// pool. The SQLite driver owns no extra connection and closing it would close
// db itself, so its release is a no-op.
func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, func(), error) {
	var (
		instance migratedb.Driver
		release  = func() {}
		err      error
	)
	switch driver {
	case "postgres":
		var conn *sql.Conn
		conn, err = db.Conn(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("acquiring migration connection: %w", err)
		}
		instance, err = postgres.WithConnection(context.Background(), conn, &postgres.Config{})
		if err != nil {
			_ = conn.Close()
		}
	case "sqlite":
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s migration driver: %w", driver, err)
	}

	source, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		if driver == "postgres" {
			_ = instance.Close()
		}
		return nil, nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		if driver == "postgres" {
			_ = instance.Close()
		}
		return nil, nil, fmt.Errorf("creating migrator: %w", err)
	}
	if driver == "postgres" {
		// WithConnection leaves the pool untouched, so Close only returns conn.
		release = func() { _, _ = m.Close() }
	}
	return m, release, nil
}

// RunMigrations applies every pending migration. Already applied migrations
// are skipped.
func RunMigrations(db *sql.DB, driver string, logger zerolog.Logger) error {
	m, release, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("getting migration version: %w", err)
	}

	if dirty {
		logger.Warn().Uint("version", version).Msg("database migration state is dirty")
	} else {
		logger.Info().Uint("version", version).Str("driver", driver).Msg("database migrations complete")
	}
	return nil
}

// MigrationVersion returns the current schema version and dirty flag.
func MigrationVersion(db *sql.DB, driver string) (uint, bool, error) {
	m, release, err := newMigrator(db, driver)
	if err != nil {
		return 0, false, err
	}
	defer release()
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// RollbackMigrations reverts every migration. All data is lost.
func RollbackMigrations(db *sql.DB, driver string) error {
	m, release, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	defer release()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}
