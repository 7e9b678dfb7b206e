package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
)

// NewTracer provides the configured tracer: the OTLP tracer when tracing is
// enabled, a no-op otherwise. The fx lifecycle flushes spans at shutdown.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tracingCfg := cfg.Merchpipe.Tracing
	if !tracingCfg.Enabled {
		return metrics.NewNoOpTracer(), nil
	}

	tracer, err := NewOtelTracer(context.Background(), tracingCfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracer.Shutdown(ctx)
		},
	})
	return tracer, nil
}

// Module is an Fx module that provides the Prometheus recorder and the
// configured tracer.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(func(r *PrometheusRecorder) metrics.MetricRecorder { return r }),
	fx.Provide(NewTracer),
)
