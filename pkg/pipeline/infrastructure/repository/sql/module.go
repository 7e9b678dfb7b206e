package sql

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
)

// NewMigratedRunRepository opens the configured database, applies the
// embedded schema migrations and returns the gorm-backed repository. This is
// the Fx provider used when a database dialect is configured.
func NewMigratedRunRepository(cfg *config.Config) (repository.RunRepository, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg.Merchpipe.Database.Dialect); err != nil {
		return nil, err
	}
	return NewRunRepository(db), nil
}

// Module is an Fx module that provides the SQL-backed run repository.
var Module = fx.Options(
	fx.Provide(NewMigratedRunRepository),
)
