package sql

import (
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
)

// OpenDB opens a gorm connection for the configured dialect. The run-history
// database is optional: callers should fall back to the in-memory repository
// when no dialect is configured.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	dbCfg := cfg.Merchpipe.Database

	var dialector gorm.Dialector
	switch dbCfg.Dialect {
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN)
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN)
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN)
	default:
		return nil, exception.Errorf(componentName, "unsupported database dialect: %q", dbCfg.Dialect).WithCritical()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, exception.NewPipelineError(componentName, "failed to open run-history database", err, true, true)
	}
	return db, nil
}
