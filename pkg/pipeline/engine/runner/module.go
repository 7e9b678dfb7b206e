package runner

import "go.uber.org/fx"

// Module is an Fx module that provides the process-based step runner.
var Module = fx.Options(
	fx.Provide(NewStepRunner),
)
