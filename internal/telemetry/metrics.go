package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the business instruments. A nil *Metrics records nothing.
type Metrics struct {
	runs           metric.Int64Counter
	runDuration    metric.Float64Histogram
	rowsNormalized metric.Int64Counter
	recompute      metric.Int64Counter
	standings      metric.Int64Counter
	submissions    metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.runs, err = meter.Int64Counter("normalization_runs_total",
		metric.WithDescription("Normalization runs by family and status")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("normalization_run_duration_seconds",
		metric.WithDescription("Wall time of a normalization run"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.rowsNormalized, err = meter.Int64Counter("normalization_rows_total",
		metric.WithDescription("Rows written by normalization runs")); err != nil {
		return nil, err
	}
	if m.recompute, err = meter.Int64Counter("recompute_requests_total",
		metric.WithDescription("Recompute requests by outcome (started, running, cooldown)")); err != nil {
		return nil, err
	}
	if m.standings, err = meter.Int64Counter("standing_queries_total",
		metric.WithDescription("Standing computations by score basis")); err != nil {
		return nil, err
	}
	if m.submissions, err = meter.Int64Counter("submissions_total",
		metric.WithDescription("Result submissions by persistence outcome")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RunCompleted(ctx context.Context, family, status string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("family", family), attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
	if rows > 0 {
		m.rowsNormalized.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("family", family)))
	}
}

func (m *Metrics) RecomputeRequested(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.recompute.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) StandingComputed(ctx context.Context, basis string) {
	if m == nil {
		return
	}
	m.standings.Add(ctx, 1, metric.WithAttributes(attribute.String("basis", basis)))
}

func (m *Metrics) SubmissionRecorded(ctx context.Context, persisted bool) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("persisted", persisted)))
}
