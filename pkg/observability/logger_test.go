package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
)

func jsonLogger(buf *bytes.Buffer, mode observability.AppMode, env string) *slog.Logger {
	inner := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(observability.NewLogHandler(inner, "hallsweep", env, mode))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestLogHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := jsonLogger(&buf, observability.ModeCoordinator, "cluster")

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	logger.InfoContext(trace.ContextWithSpanContext(context.Background(), sc), "checkpoint saved")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "hallsweep", record["service"])
	assert.Equal(t, "cluster", record["env"])
	assert.Equal(t, "coordinator", record["mode"])
}

func TestLogHandler_RunContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := jsonLogger(&buf, observability.ModeWorker, "")

	ctx := observability.WithRun(context.Background(), observability.RunInfo{RunID: "run-7", Rank: 3})
	logger.InfoContext(ctx, "bias point computed")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "run-7", record["run_id"])
	assert.InDelta(t, 3, record["rank"], 0)
	assert.Equal(t, "worker", record["mode"])

	_, hasEnv := record["env"]
	assert.False(t, hasEnv)
}

func TestLogHandler_RankBeforeRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := jsonLogger(&buf, observability.ModeWorker, "")

	ctx := observability.WithRun(context.Background(), observability.RunInfo{Rank: 1})
	logger.InfoContext(ctx, "waiting for initial state")

	record := decodeRecord(t, &buf)
	assert.InDelta(t, 1, record["rank"], 0)

	_, hasRun := record["run_id"]
	assert.False(t, hasRun)
}

func TestLogHandler_NoContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := jsonLogger(&buf, observability.ModeCLI, "")
	logger.InfoContext(context.Background(), "no span")

	record := decodeRecord(t, &buf)

	for _, key := range []string{"trace_id", "run_id", "rank"} {
		_, ok := record[key]
		assert.False(t, ok, key)
	}

	assert.Equal(t, "cli", record["mode"])
}

func TestLogHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := jsonLogger(&buf, observability.ModeCLI, "").WithGroup("oracle")
	logger.InfoContext(context.Background(), "call done", slog.Int("bias", 4))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "hallsweep", record["service"])

	group, ok := record["oracle"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 4, group["bias"], 0)
}

func TestLogHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := jsonLogger(&buf, observability.ModeCLI, "").With(slog.String("calc", "alltrans"))
	logger.InfoContext(context.Background(), "started")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "alltrans", record["calc"])
	assert.Equal(t, "hallsweep", record["service"])
}

func TestRunFromContext(t *testing.T) {
	t.Parallel()

	_, ok := observability.RunFromContext(context.Background())
	assert.False(t, ok)

	info, ok := observability.RunFromContext(observability.WithRun(context.Background(), observability.RunInfo{RunID: "r", Rank: 2}))
	require.True(t, ok)
	assert.Equal(t, observability.RunInfo{RunID: "r", Rank: 2}, info)
}
