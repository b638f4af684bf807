package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

func migrationDir(db *sqlx.DB) (fs.FS, error) {
	switch db.DriverName() {
	case DriverPostgres, DriverMySQL:
		return fs.Sub(migrationsFS, "migrations/"+db.DriverName())
	default:
		return nil, fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
}

func prepareGoose(db *sqlx.DB) error {
	dir, err := migrationDir(db)
	if err != nil {
		return err
	}
	goose.SetBaseFS(dir)
	return goose.SetDialect(db.DriverName())
}

// Migrate applies every pending migration and returns the resulting version.
func Migrate(ctx context.Context, db *sqlx.DB) (int64, error) {
	if err := prepareGoose(db); err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// MigrationStatus logs the applied state of each migration through goose's logger.
func MigrationStatus(ctx context.Context, db *sqlx.DB) error {
	if err := prepareGoose(db); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db.DB, ".")
}
