// Package telemetry configures OpenTelemetry tracing and metrics for the
// CLI.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/illarion/cloudvault"

// Exporter selects where telemetry is sent
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// ParseExporter accepts none, stdout and otlp
func ParseExporter(name string) (Exporter, error) {
	switch e := Exporter(strings.ToLower(name)); e {
	case "":
		return ExporterNone, nil
	case ExporterNone, ExporterStdout, ExporterOTLP:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExporter, name)
}

// Options configure Init
type Options struct {
	Exporter       Exporter
	ServiceName    string
	ServiceVersion string
	// Endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT for the otlp exporter
	Endpoint string
	// Writer receives stdout exporter output, os.Stderr when nil
	Writer io.Writer
}

// Telemetry holds the providers created by Init
type Telemetry struct {
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown []func(context.Context) error
}

// Tracer returns the tracer for storage spans
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// Meter returns the meter for storage metrics
func (t *Telemetry) Meter() metric.Meter { return t.meter }

// Enabled reports whether anything is exported
func (t *Telemetry) Enabled() bool { return len(t.shutdown) > 0 }

// Shutdown flushes and stops every provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// Init configures tracing, and metrics for the stdout exporter. With
// ExporterNone it returns no-op providers.
func Init(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Exporter == "" || opts.Exporter == ExporterNone {
		return &Telemetry{
			tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
			meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		// A schemaless resource never conflicts with the default schema URL
		resource.NewSchemaless(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var spanExporter sdktrace.SpanExporter
	var metricReader sdkmetric.Reader
	switch opts.Exporter {
	case ExporterOTLP:
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		var exporterOpts []otlptracehttp.Option
		if endpoint != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(endpoint))
		}
		spanExporter, err = otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case ExporterStdout:
		spanExporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		metricReader = sdkmetric.NewPeriodicReader(metricExporter)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, opts.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	t := &Telemetry{
		tracer:   tp.Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
		shutdown: []func(context.Context) error{tp.Shutdown},
	}
	if metricReader != nil {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader), sdkmetric.WithResource(res))
		otel.SetMeterProvider(mp)
		t.meter = mp.Meter(instrumentationName)
		t.shutdown = append(t.shutdown, mp.Shutdown)
	}
	return t, nil
}
