package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/b0ase/path402"

// metricInterval is how often the periodic reader pushes to the collector.
const metricInterval = 15 * time.Second

// Config selects where engine spans and OTLP metrics go. With Enabled false
// the provider falls back to the global no-op tracer and meter.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC host:port
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "path402d",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Insecure:       true,
	}
}

// instruments are the OTLP counterparts of the prometheus Metrics: one
// count, failure and latency series per engine operation.
type instruments struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
	latency    metric.Float64Histogram
	inFlight   metric.Int64UpDownCounter
}

// Provider owns the tracer and meter providers for one engine process.
type Provider struct {
	cfg    Config
	log    *slog.Logger
	traces *sdktrace.TracerProvider
	meters *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
	inst   *instruments
}

// New builds a Provider. A disabled config never dials the collector.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{cfg: *cfg, log: slog.Default().With("component", "observability")}
	if !cfg.Enabled {
		p.log.DebugContext(ctx, "telemetry export disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("path402.protocol", "$402"),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}
	if err := p.installExporters(ctx, res); err != nil {
		return nil, err
	}

	p.tracer = p.traces.Tracer(scope, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = p.meters.Meter(scope, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if p.inst, err = newInstruments(p.meter); err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}

	p.log.InfoContext(ctx, "exporting telemetry",
		"endpoint", cfg.OTLPEndpoint,
		"environment", cfg.Environment,
		"sample_rate", cfg.SampleRate,
	)
	return p, nil
}

func (p *Provider) installExporters(ctx context.Context, res *resource.Resource) error {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.cfg.OTLPEndpoint)}
	if p.cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("observability: trace exporter: %w", err)
	}
	points, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return fmt.Errorf("observability: metric exporter: %w", err)
	}

	p.traces = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(p.cfg.SampleRate)),
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(p.cfg.BatchTimeout)),
	)
	p.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points, sdkmetric.WithInterval(metricInterval))),
	)

	// Outbound discovery requests inject trace context through the globals.
	otel.SetTracerProvider(p.traces)
	otel.SetMeterProvider(p.meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func newInstruments(m metric.Meter) (*instruments, error) {
	ops, err := m.Int64Counter("path402.operations",
		metric.WithDescription("Engine operations started"), metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	fails, err := m.Int64Counter("path402.operation.failures",
		metric.WithDescription("Engine operations that returned an error"), metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	lat, err := m.Float64Histogram("path402.operation.latency",
		metric.WithDescription("Wall time of engine operations"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30))
	if err != nil {
		return nil, err
	}
	live, err := m.Int64UpDownCounter("path402.operations.in_flight",
		metric.WithDescription("Engine operations currently running"), metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}
	return &instruments{operations: ops, failures: fails, latency: lat, inFlight: live}, nil
}

// Shutdown flushes pending spans and metric points.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.traces != nil {
		errs = append(errs, p.traces.Shutdown(ctx))
	}
	if p.meters != nil {
		errs = append(errs, p.meters.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		p.log.WarnContext(ctx, "telemetry flush incomplete", "error", err)
		return err
	}
	return nil
}

func (p *Provider) Tracer() trace.Tracer {
	if p.tracer != nil {
		return p.tracer
	}
	return otel.Tracer(scope)
}

func (p *Provider) Meter() metric.Meter {
	if p.meter != nil {
		return p.meter
	}
	return otel.Meter(scope)
}

func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordRequest, RecordError and RecordDuration are no-ops while export is
// disabled.
func (p *Provider) RecordRequest(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.inst == nil {
		return
	}
	p.inst.operations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.inst == nil || err == nil {
		return
	}
	withKind := append(attrs[:len(attrs):len(attrs)], AttrErrorKind.String(errorKind(err)))
	p.inst.failures.Add(ctx, 1, metric.WithAttributes(withKind...))
}

func (p *Provider) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if p.inst == nil {
		return
	}
	p.inst.latency.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// TrackOperation opens an internal span for name and returns the function
// that closes it. The returned func must be called exactly once with the
// operation's error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	began := time.Now()
	ctx, span := p.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	set := metric.WithAttributes(attrs...)
	if p.inst != nil {
		p.inst.inFlight.Add(ctx, 1, set)
	}
	p.RecordRequest(ctx, attrs...)

	return ctx, func(err error) {
		defer span.End()
		if p.inst != nil {
			p.inst.inFlight.Add(ctx, -1, set)
		}
		p.RecordDuration(ctx, time.Since(began), attrs...)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, errorKind(err))
		p.RecordError(ctx, err, attrs...)
	}
}
