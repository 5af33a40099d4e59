package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// instrumentSet creates instruments on one meter and collects every creation
// failure, so a constructor checks a single error at the end.
type instrumentSet struct {
	meter metric.Meter
	errs  []error
}

func instrumentsOf(mt metric.Meter) *instrumentSet {
	return &instrumentSet{meter: mt}
}

// count creates a monotonic counter.
func (s *instrumentSet) count(name, desc, unit string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	return c
}

// level creates a counter that may go down, used for gauges such as
// in-flight requests or remaining points.
func (s *instrumentSet) level(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	return c
}

// latency creates a seconds histogram bucketed by durationBucketBoundaries.
func (s *instrumentSet) latency(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	s.track(name, err)

	return h
}

func (s *instrumentSet) track(name string, err error) {
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("create instrument %s: %w", name, err))
	}
}

// err joins all creation failures, or returns nil.
func (s *instrumentSet) err() error {
	return errors.Join(s.errs...)
}
