package oracle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Instrumented wraps an Oracle in a span and records its latency and failures.
type Instrumented struct {
	next    Oracle
	worker  int
	tracer  trace.Tracer
	metrics *observability.SweepMetrics
}

// NewInstrumented wraps next for worker. tracer and metrics may be nil.
func NewInstrumented(next Oracle, worker int, tracer trace.Tracer, metrics *observability.SweepMetrics) *Instrumented {
	return &Instrumented{next: next, worker: worker, tracer: tracer, metrics: metrics}
}

// Transmission implements Oracle.
func (o *Instrumented) Transmission(ctx context.Context, req Request) (tensor.Matrix, error) {
	var span trace.Span

	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, observability.SpanOracleTransmission,
			trace.WithAttributes(
				attribute.Int("worker", o.worker),
				attribute.Float64Slice("oracle.field", req.Field),
				attribute.Float64Slice("oracle.voltage", req.Voltage),
			))
		defer span.End()
	}

	start := time.Now()
	m, err := o.next.Transmission(ctx, req)

	if err == nil {
		err = CheckShape(m, req.Contacts)
	}

	o.metrics.RecordOracle(ctx, o.worker, time.Since(start), err)

	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return nil, err
	}

	return m, nil
}

// Trajectories forwards to next when it produces trajectories.
func (o *Instrumented) Trajectories(ctx context.Context, req Request, all bool) ([]Trajectory, error) {
	src, ok := o.next.(TrajectorySource)
	if !ok {
		return nil, ErrNoTrajectories
	}

	return src.Trajectories(ctx, req, all)
}
