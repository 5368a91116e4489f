package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/harborview/civicwatch/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies pending schema migrations. It opens a short-lived
// database/sql connection because goose does not speak pgxpool.
func Migrate(cfg *config.DatabaseConfig) error {
	return MigrateDSN(cfg.DSN())
}

// MigrateDSN runs the embedded migrations against an arbitrary DSN.
func MigrateDSN(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
