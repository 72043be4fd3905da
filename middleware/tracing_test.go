package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/illarion/cloudvault/backends/memory"
	"github.com/illarion/cloudvault/storage"
	"github.com/illarion/cloudvault/storage/storagetest"
)

func noopTracer() trace.Tracer { return tracenoop.NewTracerProvider().Tracer("test") }

func noopMeter() metric.Meter { return metricnoop.NewMeterProvider().Meter("test") }

func TestTracingConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := Tracing(memory.New(), noopTracer(), noopMeter())
		require.NoError(t, err)
		return s
	})
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingRecordsSpansAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	s, err := Tracing(memory.New(), tp.Tracer("test"), mp.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := s.Create(ctx, "app.env")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, id, []byte("0123456789")))
	assert.ErrorIs(t, s.Delete(ctx, "missing"), storage.ErrNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "storage.create", spans[0].Name())
	assert.Equal(t, "storage.update", spans[1].Name())

	size, ok := spanAttr(spans[1], "object.size")
	require.True(t, ok)
	assert.EqualValues(t, 10, size.AsInt64())

	failed := spans[2]
	assert.Equal(t, codes.Error, failed.Status().Code)
	id2, ok := spanAttr(failed, "object.id")
	require.True(t, ok)
	assert.Equal(t, "missing", id2.AsString())
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var total int64
	var sawHistogram bool
	for _, m := range rm.ScopeMetrics[0].Metrics {
		switch data := m.Data.(type) {
		case metricdata.Sum[int64]:
			assert.Equal(t, OperationsMetric, m.Name)
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		case metricdata.Histogram[float64]:
			assert.Equal(t, DurationMetric, m.Name)
			sawHistogram = true
		}
	}
	assert.EqualValues(t, 3, total)
	assert.True(t, sawHistogram)
}
