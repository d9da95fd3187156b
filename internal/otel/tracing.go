// Package otel wires the process-wide OpenTelemetry tracer provider.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"docfabric/internal/logging"
)

const defaultServiceName = "docfabric"

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// settings is the subset of the standard OTEL_* environment this process honors.
type settings struct {
	disabled    bool
	serviceName string
	exporter    string // OTEL_TRACES_EXPORTER: otlp or none
	protocol    string
	endpoint    string
	sampler     string
	samplerArg  float64
}

func settingsFromEnv() settings {
	s := settings{
		disabled:    os.Getenv("OTEL_SDK_DISABLED") == "true",
		serviceName: envOr("OTEL_SERVICE_NAME", defaultServiceName),
		exporter:    envOr("OTEL_TRACES_EXPORTER", "otlp"),
		protocol:    envOr("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		endpoint:    envOr("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		sampler:     envOr("OTEL_TRACES_SAMPLER", "parentbased_always_on"),
		samplerArg:  1,
	}
	if v, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil && v >= 0 && v <= 1 {
		s.samplerArg = v
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Init installs W3C trace-context propagation and, unless tracing is disabled, a batching
// tracer provider exporting over OTLP. An exporter that cannot be built is logged and
// tracing stays a no-op; only a broken resource definition is returned as an error.
func Init(ctx context.Context, log *logging.Logger) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	s := settingsFromEnv()
	if s.disabled || s.exporter == "none" {
		log.Info(logging.Fields{"component": "tracing", "event": "tracing_configured", "tracing_enabled": false})
		return noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.serviceName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	exp, err := newExporter(ctx, s)
	if err != nil {
		log.Error(logging.Fields{"component": "tracing", "event": "tracing_init_failed", "error_message": err.Error()})
		return noopShutdown, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(s.newSampler()),
	)
	otel.SetTracerProvider(tp)

	log.Info(logging.Fields{
		"component":       "tracing",
		"event":           "tracing_configured",
		"tracing_enabled": true,
		"service_name":    s.serviceName,
		"otlp_protocol":   s.protocol,
		"otlp_endpoint":   s.endpoint,
		"sampler":         s.sampler,
		"sampler_arg":     s.samplerArg,
	})
	return tp.Shutdown, nil
}

// newExporter builds the OTLP client for s.protocol. Endpoint, headers and TLS come from
// the exporters' own OTEL_EXPORTER_OTLP_* handling.
func newExporter(ctx context.Context, s settings) (*otlptrace.Exporter, error) {
	switch s.protocol {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "http/protobuf":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", s.protocol)
	}
}

// newSampler maps OTEL_TRACES_SAMPLER onto an SDK sampler. Unknown names get the
// parent-based always-on default.
func (s settings) newSampler() sdktrace.Sampler {
	switch s.sampler {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(s.samplerArg)
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.samplerArg))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}
