package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store names accepted by OpenMigrationDB and Migrate.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// OpenMigrationDB opens a database/sql handle for goose. Postgres goes
// through the pgx stdlib driver.
func OpenMigrationDB(store, dsn string) (*sql.DB, error) {
	switch store {
	case StorePostgres:
		return sql.Open("pgx", dsn)
	case StoreSQLite:
		return sql.Open("sqlite", dsn)
	default:
		return nil, fmt.Errorf("unknown store %q", store)
	}
}

// Migrate applies every pending migration, creating the five destination
// relations.
func Migrate(ctx context.Context, db *sql.DB, store string, logger *slog.Logger) error {
	var dialect goose.Dialect
	switch store {
	case StorePostgres:
		dialect = goose.DialectPostgres
	case StoreSQLite:
		dialect = goose.DialectSQLite3
	default:
		return fmt.Errorf("unknown store %q", store)
	}
	if logger == nil {
		logger = slog.Default()
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration))
	}
	return nil
}
