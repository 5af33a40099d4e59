package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// maxSliceAttr caps the length of slice-valued attributes.
const maxSliceAttr = 16

// exportedPrefixes are the attribute namespaces hallsweep emits.
var exportedPrefixes = []string{
	"hallsweep.",
	"sweep.",
	"oracle.",
	"checkpoint.",
	"collective.",
	"bias.",
	"cache.",
	"http.",
	"error.",
}

// exportedKeys are bare keys shared with the log records.
var exportedKeys = map[string]bool{
	"error":        true,
	"rank":         true,
	"worker":       true,
	"worker.count": true,
	"run_id":       true,
}

// privateKeys leak solver invocation details (command lines, environment,
// raw output) and never leave the process, even under an exported prefix.
var privateKeys = []string{
	"oracle.command",
	"oracle.env",
	"oracle.stdin",
	"oracle.stdout",
	"oracle.stderr",
}

// attributeFilter is a SpanProcessor that rewrites span attributes before a
// delegate exports them: private and unknown keys are dropped and long slices
// are truncated.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger
}

// NewAttributeFilter wraps delegate with the export policy. When logger is
// non-nil every dropped key is logged as a warning, which helps when adding
// instrumentation.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

// OnStart delegates to the wrapped processor.
func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd hands the delegate a filtered view; ended spans are read-only.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, filter: f})
}

// Shutdown delegates to the wrapped processor.
func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) exported(key string) bool {
	for _, private := range privateKeys {
		if key == private || strings.HasPrefix(key, private+".") {
			f.warn(key, "private")

			return false
		}
	}

	if exportedKeys[key] {
		return true
	}

	for _, prefix := range exportedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}

	f.warn(key, "unknown")

	return false
}

func (f *attributeFilter) warn(key, reason string) {
	if f.logger != nil {
		f.logger.Warn("span attribute blocked", "key", key, "reason", reason)
	}
}

// truncate shortens slice values to maxSliceAttr elements.
func truncate(kv attribute.KeyValue) attribute.KeyValue {
	switch kv.Value.Type() {
	case attribute.FLOAT64SLICE:
		if v := kv.Value.AsFloat64Slice(); len(v) > maxSliceAttr {
			return kv.Key.Float64Slice(v[:maxSliceAttr])
		}
	case attribute.INT64SLICE:
		if v := kv.Value.AsInt64Slice(); len(v) > maxSliceAttr {
			return kv.Key.Int64Slice(v[:maxSliceAttr])
		}
	case attribute.STRINGSLICE:
		if v := kv.Value.AsStringSlice(); len(v) > maxSliceAttr {
			return kv.Key.StringSlice(v[:maxSliceAttr])
		}
	default:
	}

	return kv
}

// filteredSpan is a ReadOnlySpan whose attributes follow the export policy.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	filter *attributeFilter
}

// Attributes returns the exported attributes.
func (s *filteredSpan) Attributes() []attribute.KeyValue {
	orig := s.ReadOnlySpan.Attributes()
	out := make([]attribute.KeyValue, 0, len(orig))

	for _, kv := range orig {
		if s.filter.exported(string(kv.Key)) {
			out = append(out, truncate(kv))
		}
	}

	return out
}
