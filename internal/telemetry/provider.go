package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"
)

// exporterSet builds the span and metric exporters for one OTLP protocol.
type exporterSet struct {
	spans   func(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error)
	metrics func(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error)
}

var exporters = map[string]exporterSet{
	protocolGRPC: {spans: grpcSpanExporter, metrics: grpcMetricExporter},
	protocolHTTP: {spans: httpSpanExporter, metrics: httpMetricExporter},
}

func exportersFor(protocol string) exporterSet {
	if set, ok := exporters[protocol]; ok {
		return set
	}
	return exporters[protocolGRPC]
}

// newResource identifies chatloop to the collector. The schema URL is pinned
// to the semconv version the attributes come from so the resource never
// merges with a conflicting default.
func newResource(cfg *Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
}

func newSampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func newTracerProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exportersFor(cfg.Protocol).spans(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	), nil
}

// newMeterProvider returns nil when metric export is switched off.
func newMeterProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	if cfg.MetricsInterval == 0 {
		return nil, nil
	}
	exp, err := exportersFor(cfg.Protocol).metrics(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp,
		sdkmetric.WithInterval(cfg.MetricsInterval))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}

// cumulative keeps counters monotonic for Prometheus-style backends whatever
// OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE says.
func cumulative(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

// tlsConfig is non-nil only when verification was explicitly disabled for
// a private CA.
func tlsConfig(cfg *Config) *tls.Config {
	if cfg.Insecure || !cfg.TLSSkipVerify {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via tls_skip_verify
}

func grpcSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else if tc := tlsConfig(cfg); tc != nil {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tc)))
	}
	if h := cfg.headers(); h != nil {
		opts = append(opts, otlptracegrpc.WithHeaders(h))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func httpSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(hostPort(cfg.Endpoint))}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else if tc := tlsConfig(cfg); tc != nil {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(tc))
	}
	if h := cfg.headers(); h != nil {
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}
	return otlptracehttp.New(ctx, opts...)
}

func grpcMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if tc := tlsConfig(cfg); tc != nil {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tc)))
	}
	if h := cfg.headers(); h != nil {
		opts = append(opts, otlpmetricgrpc.WithHeaders(h))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func httpMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(hostPort(cfg.Endpoint)),
		otlpmetrichttp.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	} else if tc := tlsConfig(cfg); tc != nil {
		opts = append(opts, otlpmetrichttp.WithTLSClientConfig(tc))
	}
	if h := cfg.headers(); h != nil {
		opts = append(opts, otlpmetrichttp.WithHeaders(h))
	}
	return otlpmetrichttp.New(ctx, opts...)
}

// hostPort drops a URL scheme; the HTTP exporters want host:port.
func hostPort(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+3:]
	}
	return endpoint
}
