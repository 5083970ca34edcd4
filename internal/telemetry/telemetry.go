package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/nehasri1207/RankSarthi/internal/config"
)

// TracerName is the instrumentation scope used for spans and meters.
const TracerName = "github.com/nehasri1207/RankSarthi"

type Providers struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	Meter          metric.Meter
	Tracer         trace.Tracer
	// MetricsHandler serves the Prometheus exposition; nil when metrics are off.
	MetricsHandler http.Handler
}

// Init wires the meter and tracer providers and installs them globally.
func Init(ctx context.Context, cfg config.TelemetryConfig, log *slog.Logger) (*Providers, error) {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	p := &Providers{
		Meter:  noop.NewMeterProvider().Meter(TracerName),
		Tracer: otel.Tracer(TracerName),
	}

	if cfg.MetricsEnabled {
		reg := prom.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
		}
		p.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))
		p.Meter = p.MeterProvider.Meter(TracerName)
		p.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		otel.SetMeterProvider(p.MeterProvider)
	}

	switch cfg.TraceExporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		p.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
		p.Tracer = p.TracerProvider.Tracer(TracerName)
		otel.SetTracerProvider(p.TracerProvider)
	case "", "none":
	default:
		return nil, fmt.Errorf("telemetry: unsupported trace exporter %q", cfg.TraceExporter)
	}

	log.InfoContext(ctx, "telemetry initialized",
		slog.Bool("metrics", cfg.MetricsEnabled),
		slog.String("trace_exporter", cfg.TraceExporter))
	return p, nil
}

func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}
	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
