// Package telemetry provides OpenTelemetry instrumentation for sgmap.
package telemetry

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/yairfalse/sgmap/internal/config"
	sgresource "github.com/yairfalse/sgmap/pkg/resource"
)

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *promclient.Registry

	// Metrics
	queryDuration metric.Float64Histogram
	resolved      metric.Int64Counter
	adapterErrors metric.Int64Counter
	indexLoads    metric.Int64Counter
}

// NewProvider creates a new telemetry provider.
func NewProvider(ctx context.Context, cfg config.OTELConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("sgmap")

	return nil
}

// setupMetrics always attaches a Prometheus reader on a private registry so a
// run can be dumped to a textfile. OTLP push is added when configured.
func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	p.registry = promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("sgmap")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	switch {
	case cfg.Insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case cfg.CACert != "":
		creds, err := credentials.NewClientTLSFromFile(cfg.CACert, "")
		if err != nil {
			return nil, fmt.Errorf("load TLS CA: %w", err)
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	switch {
	case cfg.Insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case cfg.CACert != "":
		creds, err := credentials.NewClientTLSFromFile(cfg.CACert, "")
		if err != nil {
			return nil, fmt.Errorf("load TLS CA: %w", err)
		}
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(creds))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.queryDuration, err = p.meter.Float64Histogram(
		"sgmap_adapter_query_duration_seconds",
		metric.WithDescription("Duration of adapter lookups for one group"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create query_duration: %w", err)
	}

	p.resolved, err = p.meter.Int64Counter(
		"sgmap_resources_resolved_total",
		metric.WithDescription("Total service names resolved for security groups"),
	)
	if err != nil {
		return fmt.Errorf("create resources_resolved: %w", err)
	}

	p.adapterErrors, err = p.meter.Int64Counter(
		"sgmap_adapter_errors_total",
		metric.WithDescription("Total failed adapter lookups"),
	)
	if err != nil {
		return fmt.Errorf("create adapter_errors: %w", err)
	}

	p.indexLoads, err = p.meter.Int64Counter(
		"sgmap_index_loads_total",
		metric.WithDescription("Total full inventory loads for preloaded services"),
	)
	if err != nil {
		return fmt.Errorf("create index_loads: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Gatherer returns the Prometheus view of every metric recorded through the provider.
func (p *Provider) Gatherer() promclient.Gatherer {
	return p.registry
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

func serviceAttrs(region string, service sgresource.ServiceType) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("region", region),
		attribute.String("service", string(service)),
	)
}

// RecordAdapterQuery records a successful adapter lookup.
func (p *Provider) RecordAdapterQuery(ctx context.Context, region string, service sgresource.ServiceType, d time.Duration, count int) {
	attrs := serviceAttrs(region, service)
	p.queryDuration.Record(ctx, d.Seconds(), attrs)
	p.resolved.Add(ctx, int64(count), attrs)
}

// RecordAdapterError records a failed adapter lookup.
func (p *Provider) RecordAdapterError(ctx context.Context, region string, service sgresource.ServiceType) {
	p.adapterErrors.Add(ctx, 1, serviceAttrs(region, service))
}

// RecordIndexLoad records a full inventory load.
func (p *Provider) RecordIndexLoad(ctx context.Context, region string, service sgresource.ServiceType) {
	p.indexLoads.Add(ctx, 1, serviceAttrs(region, service))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
