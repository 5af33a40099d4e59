package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "hallsweep.collective.requests"
	metricRequestDuration  = "hallsweep.collective.request.duration.seconds"
	metricErrorsTotal      = "hallsweep.collective.errors"
	metricInflightRequests = "hallsweep.collective.inflight"

	attrOp     = "op"
	attrStatus = "status"
)

// Request outcomes accepted by RecordRequest.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s: collective long polls on the
// fast end, external transport solvers on the slow end.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// REDMetrics counts rate, errors and duration of coordinator requests. The
// op attribute is the route template, so the worker rank in a reduce path
// does not multiply series.
type REDMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewREDMetrics creates the request instruments from mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	set := instrumentsOf(mt)

	rm := &REDMetrics{
		requests: set.count(metricRequestsTotal, "Coordinator requests served", "{request}"),
		duration: set.latency(metricRequestDuration, "Coordinator request latency, long polls included"),
		errors:   set.count(metricErrorsTotal, "Coordinator requests answered with an error status", "{request}"),
		inflight: set.level(metricInflightRequests, "Coordinator requests in progress", "{request}"),
	}

	err := set.err()
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordRequest records one finished request. status is StatusOK or StatusError.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrOp, op), attribute.String(attrStatus, status))

	rm.requests.Add(ctx, 1, attrs)
	rm.duration.Record(ctx, elapsed.Seconds(), attrs)

	if status == StatusError {
		rm.errors.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight marks a request for op as started. Call the returned
// function when it ends.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflight.Add(ctx, 1, attrs)

	return func() { rm.inflight.Add(ctx, -1, attrs) }
}
