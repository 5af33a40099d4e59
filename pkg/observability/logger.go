package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"
	attrRunID   = "run_id"
	attrRank    = "rank"
)

// RunInfo identifies the sweep and worker a log record belongs to.
type RunInfo struct {
	// RunID is empty until the coordinator has announced the run.
	RunID string
	Rank  int
}

type runInfoKey struct{}

// WithRun returns a context whose log records carry info.
func WithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunFromContext returns the RunInfo stored by WithRun.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)

	return info, ok
}

// LogHandler is an [slog.Handler] that stamps every record with the process
// identity (service, mode, env), the worker's run and rank from the context,
// and the active span's trace_id and span_id.
//
// Process attributes are attached to the inner handler at construction so
// they stay at the top level under WithGroup. Context attributes are added
// per record and therefore land inside any open group.
type LogHandler struct {
	inner slog.Handler
}

// NewLogHandler wraps inner for a process launched in appMode.
func NewLogHandler(inner slog.Handler, service, env string, appMode AppMode) *LogHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &LogHandler{inner: inner.WithAttrs(attrs)}
}

// Enabled delegates to the inner handler.
func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds run and trace attributes found in ctx, then delegates.
func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if info, ok := RunFromContext(ctx); ok {
		if info.RunID != "" {
			record.AddAttrs(slog.String(attrRunID, info.RunID))
		}

		record.AddAttrs(slog.Int(attrRank, info.Rank))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := h.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("log handler: %w", err)
	}

	return nil
}

// WithAttrs implements [slog.Handler].
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{inner: h.inner.WithGroup(name)}
}
