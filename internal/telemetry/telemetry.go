// Package telemetry sets up OpenTelemetry tracing and metrics for a
// migration run.
//
// Telemetry is off unless Config.Enabled is set, in which case spans and
// metrics go to stdout, to an OTLP/HTTP collector, or both. With nothing
// configured the global providers are no-ops and instrumentation costs
// nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/steveyegge/jihub"

// DefaultMetricInterval is how often metrics are exported when
// Config.MetricInterval is zero.
const DefaultMetricInterval = 30 * time.Second

// Config selects the exporters of a run.
type Config struct {
	Enabled bool
	// Stdout pretty-prints spans and metrics to Output.
	Stdout bool
	// Endpoint is an OTLP/HTTP collector address (host:port).
	Endpoint string
	// MetricsEndpoint overrides Endpoint for metrics.
	MetricsEndpoint string
	// Insecure sends OTLP over plain HTTP.
	Insecure bool
	// SampleRatio samples root spans; 0 or 1 keeps every trace.
	SampleRatio    float64
	MetricInterval time.Duration

	ServiceName string
	Version     string

	// Output receives stdout exporter output; nil means os.Stdout.
	Output io.Writer
}

// runtime holds the providers installed by Init.
type runtime struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

var (
	enabled atomic.Bool
	active  *runtime
)

// Enabled reports whether Init installed real providers.
func Enabled() bool {
	return enabled.Load()
}

// Init installs the providers described by cfg. A disabled config installs
// no-op providers.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		installNoop()
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "jihub"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	active = &runtime{tp: tp, mp: mp}
	enabled.Store(true)
	return nil
}

func installNoop() {
	otel.SetTracerProvider(tracenoop.NewTracerProvider())
	otel.SetMeterProvider(metricnoop.NewMeterProvider())
	enabled.Store(false)
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}

	exporters := 0
	if cfg.Endpoint != "" {
		exp, err := buildOTLPTraceExporter(ctx, cfg.Endpoint, cfg.Insecure)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
		exporters++
	}
	// Stdout is also the fallback when no collector is configured.
	if cfg.Stdout || exporters == 0 {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Output), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Output))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}

	endpoint := cfg.MetricsEndpoint
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	if endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint, cfg.Insecure)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// sampler keeps every trace unless ratio is strictly between 0 and 1.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics and puts the no-op providers
// back.
func Shutdown(ctx context.Context) error {
	rt := active
	active = nil
	installNoop()
	if rt == nil {
		return nil
	}
	return errors.Join(rt.tp.Shutdown(ctx), rt.mp.Shutdown(ctx))
}
