package metrics

import (
	"go.uber.org/fx"
)

// Module is an Fx module that provides the no-op metric and tracing
// fallbacks. Real implementations from the infrastructure layer decorate
// these when configured.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewNoOpMetricRecorder,
		fx.As(new(MetricRecorder)),
	)),
	fx.Provide(fx.Annotate(
		NewNoOpTracer,
		fx.As(new(Tracer)),
	)),
)
