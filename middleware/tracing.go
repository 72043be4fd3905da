package middleware

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/illarion/cloudvault/storage"
)

// Instrument names reported by Tracing
const (
	OperationsMetric = "cloudvault.storage.operations"
	DurationMetric   = "cloudvault.storage.duration"
)

type traced struct {
	next     storage.Storage
	tracer   trace.Tracer
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

// Tracing starts one span per operation and records an operation
// counter and a duration histogram on meter.
func Tracing(next storage.Storage, tracer trace.Tracer, meter metric.Meter) (storage.Storage, error) {
	ops, err := meter.Int64Counter(OperationsMetric,
		metric.WithDescription("Storage operations by kind and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", OperationsMetric, err)
	}
	duration, err := meter.Float64Histogram(DurationMetric,
		metric.WithDescription("Storage operation latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s histogram: %w", DurationMetric, err)
	}
	return &traced{next: next, tracer: tracer, ops: ops, duration: duration}, nil
}

func (t *traced) start(ctx context.Context, op, id string) (context.Context, trace.Span, time.Time) {
	ctx, span := t.tracer.Start(ctx, "storage."+op, trace.WithSpanKind(trace.SpanKindClient))
	if id != "" {
		span.SetAttributes(attribute.String("object.id", id))
	}
	return ctx, span, time.Now()
}

func (t *traced) end(ctx context.Context, span trace.Span, op string, start time.Time, size int, err error) {
	defer span.End()
	if size >= 0 {
		span.SetAttributes(attribute.Int("object.size", size))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	)
	t.ops.Add(ctx, 1, attrs)
	t.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (t *traced) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	ctx, span, start := t.start(ctx, "list", "")
	list, err := t.next.List(ctx)
	span.SetAttributes(attribute.Int("object.count", len(list)))
	t.end(ctx, span, "list", start, -1, err)
	return list, err
}

func (t *traced) Create(ctx context.Context, name string) (string, error) {
	ctx, span, start := t.start(ctx, "create", name)
	id, err := t.next.Create(ctx, name)
	if id != "" && id != name {
		span.SetAttributes(attribute.String("object.id", id))
	}
	t.end(ctx, span, "create", start, -1, err)
	return id, err
}

func (t *traced) Get(ctx context.Context, id string) ([]byte, error) {
	ctx, span, start := t.start(ctx, "get", id)
	data, err := t.next.Get(ctx, id)
	t.end(ctx, span, "get", start, len(data), err)
	return data, err
}

func (t *traced) Update(ctx context.Context, id string, data []byte) error {
	ctx, span, start := t.start(ctx, "update", id)
	err := t.next.Update(ctx, id, data)
	t.end(ctx, span, "update", start, len(data), err)
	return err
}

func (t *traced) Delete(ctx context.Context, id string) error {
	ctx, span, start := t.start(ctx, "delete", id)
	err := t.next.Delete(ctx, id)
	t.end(ctx, span, "delete", start, -1, err)
	return err
}

func (t *traced) Close() error {
	return storage.Close(t.next)
}
