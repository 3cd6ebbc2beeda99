// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted by TRACE_EXPORTER.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Shutdown flushes and stops the provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider for the given exporter. With
// "none" the global no-op provider is left in place.
func Setup(exporter, serviceName string) (Shutdown, error) {
	return SetupWriter(os.Stderr, exporter, serviceName)
}

// SetupWriter is Setup with an explicit destination for the stdout exporter.
func SetupWriter(w io.Writer, exporter, serviceName string) (Shutdown, error) {
	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporter)
	}

	if serviceName == "" {
		serviceName = "regingest"
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
