package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationAction selects what Migrate does
type MigrationAction int

const (
	MigrateUp MigrationAction = iota
	MigrateDown
	MigrateVersion
)

func (a MigrationAction) String() string {
	switch a {
	case MigrateUp:
		return "up"
	case MigrateDown:
		return "down"
	case MigrateVersion:
		return "version"
	default:
		return "unknown"
	}
}

func ParseMigrationAction(s string) (MigrationAction, error) {
	for _, a := range []MigrationAction{MigrateUp, MigrateDown, MigrateVersion} {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown migration action %q", s)
}

// MigrationStatus is the schema version after a migration run
type MigrationStatus struct {
	Version uint
	Dirty   bool
	// Applied is false when the schema was already at the target
	Applied bool
}

// NewMigrator builds a migrator over db using the embedded migrations
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// Migrate runs action against db. A schema that is already current is not an error.
func Migrate(db *sql.DB, action MigrationAction, logger *zap.Logger) (MigrationStatus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := NewMigrator(db)
	if err != nil {
		return MigrationStatus{}, err
	}

	status := MigrationStatus{Applied: true}
	switch action {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	case MigrateVersion:
		status.Applied = false
	default:
		return MigrationStatus{}, fmt.Errorf("unsupported migration action %s", action)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		status.Applied = false
		err = nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migrate %s: %w", action, err)
	}

	status.Version, status.Dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		err = nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("reading schema version: %w", err)
	}

	logger.Info("schema migration finished",
		zap.String("action", action.String()),
		zap.Uint("version", status.Version),
		zap.Bool("dirty", status.Dirty),
		zap.Bool("applied", status.Applied))
	return status, nil
}
