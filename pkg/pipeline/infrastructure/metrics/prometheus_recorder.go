// Package metrics provides the Prometheus and OpenTelemetry implementations
// of the pipeline's recording and tracing abstractions.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	metrics "github.com/tigerroll/merchpipe/pkg/pipeline/core/metrics"
	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of
// metrics.MetricRecorder. Because the pipeline is a short-lived process, the
// registry contents are flushed to a node-exporter textfile at shutdown
// rather than scraped (see WriteTextfile).
type PrometheusRecorder struct {
	registry *prometheus.Registry

	runDurationSeconds  *prometheus.HistogramVec
	runStatusCounter    *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec

	batchStoresFetched *prometheus.CounterVec
	batchStoresFailed  *prometheus.CounterVec
	batchRetryCounter  *prometheus.CounterVec
	completenessGauge  *prometheus.GaugeVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"period", "status", "exit_status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_run_status_total",
			Help: "Total number of pipeline runs by status.",
		}, []string{"period", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Duration of pipeline step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_step_status_total",
			Help: "Total number of step executions by status.",
		}, []string{"step_name", "status"}),
		batchStoresFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_download_stores_fetched_total",
			Help: "Total store keys fetched successfully by data type.",
		}, []string{"data_type"}),
		batchStoresFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_download_stores_failed_total",
			Help: "Total store keys that failed to fetch by data type.",
		}, []string{"data_type"}),
		batchRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_download_batch_retry_total",
			Help: "Total download batch retries by data type and reason.",
		}, []string{"data_type", "reason"}),
		completenessGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_download_completeness_ratio",
			Help: "Fraction of the store universe covered by downloaded data.",
		}, []string{"period"}),
	}

	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.stepDurationSeconds)
	registry.MustRegister(r.stepStatusCounter)
	registry.MustRegister(r.batchStoresFetched)
	registry.MustRegister(r.batchStoresFailed)
	registry.MustRegister(r.batchRetryCounter)
	registry.MustRegister(r.completenessGauge)

	return r
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile flushes the registry contents to a node-exporter textfile
// collector path. An empty path disables the export.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return err
	}
	logger.Debugf("Metrics written to textfile '%s'.", path)
	return nil
}

func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, execution *model.RunExecution) {
	r.runStatusCounter.WithLabelValues(execution.PeriodLabel, execution.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, execution *model.RunExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.runDurationSeconds.WithLabelValues(
		execution.PeriodLabel,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(duration)
	logger.Debugf("Metrics: run for period '%s' ended. Duration: %.3fs", execution.PeriodLabel, duration)
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(execution.StepName, execution.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDurationSeconds.WithLabelValues(
		execution.StepName,
		execution.Status.String(),
		execution.ExitStatus.String(),
	).Observe(execution.Duration().Seconds())
}

func (r *PrometheusRecorder) RecordBatch(ctx context.Context, dataType string, succeeded, failed int) {
	r.batchStoresFetched.WithLabelValues(dataType).Add(float64(succeeded))
	r.batchStoresFailed.WithLabelValues(dataType).Add(float64(failed))
}

func (r *PrometheusRecorder) RecordRetry(ctx context.Context, dataType string, reason string) {
	r.batchRetryCounter.WithLabelValues(dataType, reason).Inc()
}

func (r *PrometheusRecorder) RecordCompleteness(ctx context.Context, periodLabel string, fraction float64) {
	r.completenessGauge.WithLabelValues(periodLabel).Set(fraction)
}
