package registry

import "go.uber.org/fx"

// Module is an Fx module that provides the step registry loaded from the
// embedded step definition resource.
var Module = fx.Options(
	fx.Provide(Load),
)
