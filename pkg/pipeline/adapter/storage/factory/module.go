package factory

import "go.uber.org/fx"

// Module is an Fx module that provides the storage adapter factory.
var Module = fx.Options(
	fx.Provide(New),
)
