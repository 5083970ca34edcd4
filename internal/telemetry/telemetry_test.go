package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehasri1207/RankSarthi/internal/config"
	"github.com/nehasri1207/RankSarthi/internal/logging"
)

func TestInitExposesPrometheus(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, config.TelemetryConfig{ServiceName: "test", MetricsEnabled: true, TraceExporter: "none"}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	require.NotNil(t, p.MetricsHandler)

	m, err := NewMetrics(p.Meter)
	require.NoError(t, err)
	m.RunCompleted(ctx, "SSC", "success", 20*time.Millisecond, 3)
	m.RecomputeRequested(ctx, "started")

	rec := httptest.NewRecorder()
	p.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "normalization_runs_total")
	assert.Contains(t, string(body), "recompute_requests_total")
}

func TestInitMetricsDisabled(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{TraceExporter: "none"}, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, p.MetricsHandler)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{TraceExporter: "otlp"}, logging.Discard())
	assert.Error(t, err)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunCompleted(context.Background(), "SSC", "success", time.Second, 1)
		m.StandingComputed(context.Background(), "raw")
		m.SubmissionRecorded(context.Background(), true)
	})
}
