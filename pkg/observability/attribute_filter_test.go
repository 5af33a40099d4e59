package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
)

// exportOne records one span with attrs through the filter and returns what
// reached the exporter.
func exportOne(t *testing.T, logger *slog.Logger, attrs ...attribute.KeyValue) map[string]any {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(attrs...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	return spanAttrMap(spans[0])
}

func TestAttributeFilter_ExportsSweepAttributes(t *testing.T) {
	t.Parallel()

	attrs := exportOne(t, nil,
		attribute.Int("rank", 2),
		attribute.Int("worker.count", 4),
		attribute.Int("sweep.points", 100),
		attribute.Int("checkpoint.points", 7),
		attribute.Float64Slice("oracle.field", []float64{1.5}),
		attribute.String("hallsweep.future", "x"),
		attribute.String("error.type", "timeout"),
	)

	assert.Equal(t, int64(2), attrs["rank"])
	assert.Equal(t, int64(4), attrs["worker.count"])
	assert.Equal(t, int64(100), attrs["sweep.points"])
	assert.Equal(t, int64(7), attrs["checkpoint.points"])
	assert.Equal(t, []float64{1.5}, attrs["oracle.field"])
	assert.Equal(t, "x", attrs["hallsweep.future"])
	assert.Equal(t, "timeout", attrs["error.type"])
}

func TestAttributeFilter_DropsPrivateAndUnknown(t *testing.T) {
	t.Parallel()

	attrs := exportOne(t, nil,
		attribute.StringSlice("oracle.command", []string{"solver", "--token=abc"}),
		attribute.String("oracle.env.HOME", "/home/alice"),
		attribute.String("oracle.stderr", "segfault"),
		attribute.String("user.email", "alice@example.com"),
		attribute.String("ranked", "no"),
		attribute.String("oracle.exit_code", "1"),
	)

	assert.NotContains(t, attrs, "oracle.command")
	assert.NotContains(t, attrs, "oracle.env.HOME")
	assert.NotContains(t, attrs, "oracle.stderr")
	assert.NotContains(t, attrs, "user.email")
	assert.NotContains(t, attrs, "ranked")
	assert.Equal(t, "1", attrs["oracle.exit_code"])
}

func TestAttributeFilter_TruncatesSlices(t *testing.T) {
	t.Parallel()

	long := make([]float64, 40)
	for i := range long {
		long[i] = float64(i)
	}

	attrs := exportOne(t, nil,
		attribute.Float64Slice("oracle.voltage", long),
		attribute.Int64Slice("bias.levels", []int64{1, 2, 3}),
	)

	got, ok := attrs["oracle.voltage"].([]float64)
	require.True(t, ok)
	assert.Equal(t, long[:16], got)
	assert.Equal(t, []int64{1, 2, 3}, attrs["bias.levels"])
}

func TestAttributeFilter_WarnsWhenLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	exportOne(t, logger,
		attribute.String("oracle.stderr", "boom"),
		attribute.String("mystery", "val"),
	)

	out := buf.String()
	assert.Contains(t, out, "key=oracle.stderr reason=private")
	assert.Contains(t, out, "key=mystery reason=unknown")
}

// spanAttrMap converts a span's attributes into a map for easy assertion.
func spanAttrMap(s tracetest.SpanStub) map[string]any {
	m := make(map[string]any, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}
