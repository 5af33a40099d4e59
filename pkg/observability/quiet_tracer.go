package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// SpanOracleTransmission is the per-point oracle span.
const SpanOracleTransmission = "hallsweep.oracle.transmission"

// perPointPrefixes name the span families emitted once per bias point.
var perPointPrefixes = []string{"hallsweep.oracle."}

// quietProvider hands out tracers that start non-recording spans for
// per-point span names and delegate everything else.
type quietProvider struct {
	embedded.TracerProvider

	delegate trace.TracerProvider
	muted    []string
}

// NewQuietTracerProvider wraps delegate so that per-point oracle spans are
// not recorded. Run, resume, reduce and checkpoint spans pass through, and
// children of a muted span still join the surrounding trace.
func NewQuietTracerProvider(delegate trace.TracerProvider) trace.TracerProvider {
	return &quietProvider{delegate: delegate, muted: perPointPrefixes}
}

func (p *quietProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &quietTracer{
		Tracer: p.delegate.Tracer(name, opts...),
		silent: nooptrace.NewTracerProvider().Tracer(name),
		muted:  p.muted,
	}
}

type quietTracer struct {
	trace.Tracer

	silent trace.Tracer
	muted  []string
}

func (t *quietTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	for _, prefix := range t.muted {
		if strings.HasPrefix(name, prefix) {
			// The no-op span keeps the parent's span context.
			return t.silent.Start(ctx, name, opts...)
		}
	}

	return t.Tracer.Start(ctx, name, opts...)
}
