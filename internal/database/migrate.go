package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// MigrationStatus describes where the schema stands relative to the embedded migrations.
type MigrationStatus struct {
	Version uint
	Latest  uint
	Dirty   bool
	// Pending is how many migrations still need to run.
	Pending uint
}

func migrationDir(dialect string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return "migrations/postgres", nil
	case DialectSQLite:
		return "migrations/sqlite", nil
	default:
		return "", fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

func newSource(dialect string) (source.Driver, error) {
	dir, err := migrationDir(dialect)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	return iofs.New(sub, ".")
}

// newMigrate creates a migrate instance for db. The caller owns db; the
// instance is never closed because that would close the connection.
func newMigrate(db *gorm.DB) (*migrate.Migrate, error) {
	dialect := db.Dialector.Name()

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}

	sourceDriver, err := newSource(dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := databaseDriver(dialect, sqlDB)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func databaseDriver(dialect string, sqlDB *sql.DB) (database.Driver, error) {
	switch dialect {
	case DialectPostgres:
		return migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	case DialectSQLite:
		return migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// MigrateUp runs all pending migrations.
func MigrateUp(db *gorm.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations; steps <= 0 rolls back all of them.
func MigrateDown(db *gorm.DB, steps int) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if steps <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// GetMigrationStatus reports the applied version against the latest embedded one.
func GetMigrationStatus(db *gorm.DB) (*MigrationStatus, error) {
	m, err := newMigrate(db)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{}
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("failed to get database version: %w", err)
	default:
		status.Version = version
		status.Dirty = dirty
	}

	src, err := newSource(db.Dialector.Name())
	if err != nil {
		return nil, err
	}
	defer src.Close()

	latest, count, err := scanVersions(src, status.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to determine latest version: %w", err)
	}
	status.Latest = latest
	status.Pending = count
	return status, nil
}

// scanVersions walks the source and returns the highest version plus how many exceed current.
func scanVersions(src source.Driver, current uint) (uint, uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, 0, err
	}

	var pending uint
	for {
		if version > current {
			pending++
		}
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	return version, pending, nil
}
