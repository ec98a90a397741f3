package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type pipelineMetrics struct {
	jobsStarted   metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobDuration   metric.Float64Histogram
	synthDuration metric.Float64Histogram
}

func newPipelineMetrics(log *slog.Logger) *pipelineMetrics {
	meter := otel.Meter("github.com/chekaru-labs/chekaru-voice/internal/pipeline")
	m := &pipelineMetrics{}

	var err error
	if m.jobsStarted, err = meter.Int64Counter("chekaru_jobs_started_total",
		metric.WithDescription("Generation jobs started")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return m
	}
	if m.jobsCompleted, err = meter.Int64Counter("chekaru_jobs_completed_total",
		metric.WithDescription("Generation jobs completed successfully")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return m
	}
	if m.jobsFailed, err = meter.Int64Counter("chekaru_jobs_failed_total",
		metric.WithDescription("Generation jobs aborted by an error")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return m
	}
	if m.jobDuration, err = meter.Float64Histogram("chekaru_job_duration_seconds",
		metric.WithDescription("Wall time of completed generation jobs")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return m
	}
	if m.synthDuration, err = meter.Float64Histogram("chekaru_segment_synthesis_seconds",
		metric.WithDescription("Per-segment synthesis latency")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return m
}

func (m *pipelineMetrics) jobStarted(ctx context.Context) {
	if m.jobsStarted != nil {
		m.jobsStarted.Add(ctx, 1)
	}
}

func (m *pipelineMetrics) jobCompleted(ctx context.Context, elapsed time.Duration) {
	if m.jobsCompleted != nil {
		m.jobsCompleted.Add(ctx, 1)
	}
	if m.jobDuration != nil {
		m.jobDuration.Record(ctx, elapsed.Seconds())
	}
}

func (m *pipelineMetrics) jobFailed(ctx context.Context) {
	if m.jobsFailed != nil {
		m.jobsFailed.Add(ctx, 1)
	}
}

func (m *pipelineMetrics) segmentSynthesized(ctx context.Context, elapsed time.Duration) {
	if m.synthDuration != nil {
		m.synthDuration.Record(ctx, elapsed.Seconds())
	}
}
