package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	config "github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// OtelTracer is an OpenTelemetry implementation of metrics.Tracer that
// exports spans over OTLP gRPC.
type OtelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var _ metrics.Tracer = (*OtelTracer)(nil)

// NewOtelTracer creates a tracer provider exporting to the configured OTLP
// endpoint. The caller owns the returned tracer and must call Shutdown to
// flush pending spans.
func NewOtelTracer(ctx context.Context, cfg config.TracingConfig) (*OtelTracer, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, exception.NewPipelineError("tracer", "failed to create OTLP trace exporter", err, true, false)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, exception.NewPipelineError("tracer", "failed to build trace resource", err, false, false)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debugf("OpenTelemetry tracing enabled (endpoint: %s).", cfg.Endpoint)
	return &OtelTracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

// Shutdown flushes pending spans and stops the provider.
func (t *OtelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func (t *OtelTracer) StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline.run_id", execution.ID),
			attribute.String("pipeline.period", execution.PeriodLabel),
			attribute.Int("pipeline.start_step", execution.StartStep),
			attribute.Int("pipeline.end_step", execution.EndStep),
		),
	)
	return ctx, func() { span.End() }
}

func (t *OtelTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "pipeline.step."+execution.StepName,
		trace.WithAttributes(
			attribute.String("pipeline.step_name", execution.StepName),
			attribute.Int("pipeline.step_ordinal", execution.Ordinal),
			attribute.String("pipeline.step_category", execution.Category),
			attribute.Bool("pipeline.step_critical", execution.Critical),
		),
	)
	return ctx, func() { span.End() }
}

func (t *OtelTracer) RecordError(ctx context.Context, component string, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err, trace.WithAttributes(attribute.String("component", component)))
	span.SetStatus(codes.Error, exception.ExtractErrorMessage(err))
}
