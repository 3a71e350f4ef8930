package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const defaultServiceName = "projecthub"

func newStdoutExporter(w io.Writer) (trace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
}

// newCollectorExporter sends spans to an OTLP/HTTP collector such as "localhost:4318".
func newCollectorExporter(endpoint string) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{}
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	default:
		endpoint = strings.TrimPrefix(endpoint, "http://")
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	opts = append(opts, otlptracehttp.WithEndpoint(endpoint))

	return otlptracehttp.New(context.Background(), opts...)
}

func newResource() *resource.Resource {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion("0.1.0"),
	)
}

// NewProvider creates a tracer provider and installs it as the global otel provider.
//
// Spans go to the OTLP collector at endpoint when set. With debug enabled and no endpoint they
// are written to stderr, otherwise they are sampled out.
//
// Returns a teardown func
func NewProvider(endpoint string, debug bool) func() {
	var (
		exp trace.SpanExporter
		err error
	)

	switch {
	case endpoint != "":
		exp, err = newCollectorExporter(endpoint)
	case debug:
		slog.Info("Writing traces to stderr")
		exp, err = newStdoutExporter(os.Stderr)
	}
	if err != nil {
		slog.Error("Unable to create exporter", slog.Any("error", err))
		return func() {}
	}

	opts := []trace.TracerProviderOption{trace.WithResource(newResource())}
	if exp != nil {
		opts = append(opts, trace.WithBatcher(exp))
	} else {
		opts = append(opts, trace.WithSampler(trace.NeverSample()))
	}
	tp := trace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("unable to shutdown trace provider", slog.Any("error", err))
		}
	}
}
