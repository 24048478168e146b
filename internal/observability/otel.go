package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"nur/internal/config"
)

// InitTracing configures the global tracer provider against obs.OTLPEndpoint
// and returns a shutdown func. Unlike the teacher's InitOTel, this omits the
// metrics pipeline and host instrumentation: this module exposes no metrics
// surface of its own (spec.md's Non-goals exclude benchmark/observability
// harnesses beyond the request-tracing suspension points named in §5), so a
// metrics exporter and periodic reader would have nothing to report.
func InitTracing(ctx context.Context, obs config.ObservabilityConfig) (func(context.Context) error, error) {
	if obs.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceVersion(obs.ServiceVersion),
			attribute.String("deployment.environment", obs.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("init resource: %w", err)
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(obs.OTLPEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}

// StartSpan starts a span named spanName under tracer name, matching the
// teacher's llm.StartRequestSpan convention of tracing around suspension
// points (LLM calls, store calls). The returned func ends the span.
func StartSpan(ctx context.Context, tracerName, spanName string) (context.Context, func()) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName)
	return ctx, func() { span.End() }
}
