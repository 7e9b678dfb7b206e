// Package metrics defines the recording and tracing abstractions used by the
// pipeline controller and the downloader. Concrete implementations live in
// the infrastructure layer; a no-op fallback is provided here.
package metrics

import (
	"context"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
)

// MetricRecorder records pipeline run, step and download batch metrics.
type MetricRecorder interface {
	// RecordRunStart records the start of a pipeline run.
	RecordRunStart(ctx context.Context, execution *model.RunExecution)
	// RecordRunEnd records the end of a pipeline run.
	RecordRunEnd(ctx context.Context, execution *model.RunExecution)
	// RecordStepStart records the start of a step execution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a step execution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)
	// RecordBatch records the outcome of one download batch: keys fetched
	// successfully and keys failed.
	RecordBatch(ctx context.Context, dataType string, succeeded, failed int)
	// RecordRetry records a retried batch attempt.
	RecordRetry(ctx context.Context, dataType string, reason string)
	// RecordCompleteness records the completeness fraction for a period.
	RecordCompleteness(ctx context.Context, periodLabel string, fraction float64)
}

// Tracer starts spans around runs and steps. Implementations must be safe to
// use when tracing is disabled.
type Tracer interface {
	// StartRunSpan starts a span for a run and returns the derived context
	// plus a function that ends the span.
	StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func())
	// StartStepSpan starts a span for a step execution.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError records an error in the active span.
	RecordError(ctx context.Context, component string, err error)
}
