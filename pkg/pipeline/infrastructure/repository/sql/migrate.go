package sql

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsTable = "pipeline_schema_migrations"

// Migrate applies the embedded schema migrations for the run-history tables.
// It is a no-op when the schema is already current.
func Migrate(db *gorm.DB, dialect string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return exception.NewPipelineError(componentName, "failed to get underlying sql.DB", err, false, true)
	}

	var dbDriver database.Driver
	switch dialect {
	case "sqlite":
		dbDriver, err = migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{MigrationsTable: migrationsTable})
	case "mysql":
		dbDriver, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{MigrationsTable: migrationsTable})
	case "postgres":
		dbDriver, err = migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{MigrationsTable: migrationsTable})
	default:
		return exception.Errorf(componentName, "unsupported database dialect for migration: %q", dialect)
	}
	if err != nil {
		return exception.NewPipelineError(componentName, "failed to create migration driver", err, false, true)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return exception.NewPipelineError(componentName, "failed to load embedded migrations", err, false, true)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, dbDriver)
	if err != nil {
		return exception.NewPipelineError(componentName, "failed to create migrate instance", err, false, true)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return exception.NewPipelineError(componentName, "schema migration failed", err, false, true)
	}
	logger.Debugf("Run-history schema is up to date.")
	return nil
}
