package otel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceNamespace      = "thurman"
	defaultEndpoint       = "localhost:4318"
	defaultExportInterval = 15 * time.Second
	traceBatchTimeout     = 2 * time.Second
)

// Config selects which signals poold exports and where.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// InstanceID distinguishes replicas; the hostname is used when empty.
	InstanceID string
	Endpoint   string
	Insecure   bool
	Headers    map[string]string
	Metrics    bool
	Traces     bool
	// SampleRatio is the fraction of root traces kept. Zero keeps all.
	SampleRatio    float64
	ExportInterval time.Duration
}

func (cfg *Config) normalize() error {
	cfg.ServiceName = strings.TrimSpace(cfg.ServiceName)
	if cfg.ServiceName == "" {
		return errors.New("telemetry: service name required")
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio %v outside [0,1]", cfg.SampleRatio)
	}
	if cfg.ExportInterval < 0 {
		return fmt.Errorf("telemetry: negative export interval %s", cfg.ExportInterval)
	}
	if cfg.ExportInterval == 0 {
		cfg.ExportInterval = defaultExportInterval
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.InstanceID = host
		}
	}
	return nil
}

// Telemetry owns the providers installed by Init. A Telemetry with both
// signals disabled only carries the resource and the propagator.
type Telemetry struct {
	resource *resource.Resource
	traces   *sdktrace.TracerProvider
	meters   *sdkmetric.MeterProvider
}

// Init builds the poold resource, installs the enabled OTLP exporters as the
// global providers and sets the W3C propagators.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}
	t := &Telemetry{resource: res}

	if cfg.Traces {
		if t.traces, err = newTracerProvider(ctx, cfg, res); err != nil {
			return nil, err
		}
		otel.SetTracerProvider(t.traces)
	}
	if cfg.Metrics {
		if t.meters, err = newMeterProvider(ctx, cfg, res); err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(t.meters)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	if cfg.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceIDKey.String(cfg.InstanceID))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(traceBatchTimeout)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

// Resource returns the resource attached to every exported signal.
func (t *Telemetry) Resource() *resource.Resource {
	if t == nil {
		return resource.Empty()
	}
	return t.resource
}

// Meter returns a meter from the exporting provider, or from the global
// (no-op) provider when metrics are disabled.
func (t *Telemetry) Meter(name string) metric.Meter {
	if t == nil || t.meters == nil {
		return otel.Meter(name)
	}
	return t.meters.Meter(name)
}

// Shutdown flushes and stops the providers, metrics first.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.meters != nil {
		errs = append(errs, t.meters.Shutdown(ctx))
	}
	if t.traces != nil {
		errs = append(errs, t.traces.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// ParseHeaders converts an OTEL_EXPORTER_OTLP_HEADERS value (k=v,k2=v2) into
// exporter headers. Malformed pairs are skipped.
func ParseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
