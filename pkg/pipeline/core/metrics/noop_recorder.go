package metrics

import (
	"context"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
)

// NoOpMetricRecorder is a MetricRecorder that does nothing. It is used when
// metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, execution *model.RunExecution) {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, execution *model.RunExecution)   {}
func (r *NoOpMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
}
func (r *NoOpMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {}
func (r *NoOpMetricRecorder) RecordBatch(ctx context.Context, dataType string, succeeded, failed int) {
}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, dataType string, reason string) {}
func (r *NoOpMetricRecorder) RecordCompleteness(ctx context.Context, periodLabel string, fraction float64) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, component string, err error) {}

var _ Tracer = (*NoOpTracer)(nil)
