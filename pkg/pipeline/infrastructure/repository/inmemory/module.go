package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/merchpipe/pkg/pipeline/core/repository"
)

// Module is an Fx module that provides the in-memory run repository.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewRunRepository,
		fx.As(new(repository.RunRepository)),
	)),
)
