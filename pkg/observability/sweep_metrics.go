package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricPointsComputed  = "hallsweep.points.computed"
	metricPointsRemaining = "hallsweep.points.remaining"
	metricOracleDuration  = "hallsweep.oracle.duration.seconds"
	metricOracleFailures  = "hallsweep.oracle.failures"
	metricCheckpointSaves = "hallsweep.checkpoint.saves"
	metricCheckpointBytes = "hallsweep.checkpoint.bytes"
	metricRecordsSkipped  = "hallsweep.checkpoint.skipped"
	metricCacheLookups    = "hallsweep.cache.lookups"
	attrWorker            = "worker"
	attrCacheResult       = "result"
	cacheResultHit        = "hit"
	cacheResultMiss       = "miss"
)

// SweepMetrics holds the instruments recorded by sweep workers. All methods
// are safe on a nil receiver.
type SweepMetrics struct {
	pointsComputed  metric.Int64Counter
	pointsRemaining metric.Int64UpDownCounter
	oracleDuration  metric.Float64Histogram
	oracleFailures  metric.Int64Counter
	checkpointSaves metric.Int64Counter
	checkpointBytes metric.Int64Counter
	recordsSkipped  metric.Int64Counter
	cacheLookups    metric.Int64Counter
}

// NewSweepMetrics creates the sweep instruments from mt.
func NewSweepMetrics(mt metric.Meter) (*SweepMetrics, error) {
	set := instrumentsOf(mt)

	sm := &SweepMetrics{
		pointsComputed:  set.count(metricPointsComputed, "Bias points whose transmission matrix was computed", "{point}"),
		pointsRemaining: set.level(metricPointsRemaining, "Bias points not yet computed", "{point}"),
		oracleDuration:  set.latency(metricOracleDuration, "Transmission oracle latency"),
		oracleFailures:  set.count(metricOracleFailures, "Failed oracle invocations", "{call}"),
		checkpointSaves: set.count(metricCheckpointSaves, "Checkpoint records written", "{record}"),
		checkpointBytes: set.count(metricCheckpointBytes, "Checkpoint bytes written", "By"),
		recordsSkipped:  set.count(metricRecordsSkipped, "Checkpoint records skipped on resume", "{record}"),
		cacheLookups:    set.count(metricCacheLookups, "Oracle cache lookups", "{lookup}"),
	}

	err := set.err()
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordPoint counts one computed point.
func (sm *SweepMetrics) RecordPoint(ctx context.Context, worker int) {
	if sm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Int(attrWorker, worker))

	sm.pointsComputed.Add(ctx, 1, attrs)
	sm.pointsRemaining.Add(ctx, -1, attrs)
}

// RecordOracle records one oracle invocation. A non-nil err counts as a failure.
func (sm *SweepMetrics) RecordOracle(ctx context.Context, worker int, duration time.Duration, err error) {
	if sm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Int(attrWorker, worker))

	sm.oracleDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		sm.oracleFailures.Add(ctx, 1, attrs)
	}
}

// AddRemaining adjusts the remaining-points gauge for worker.
func (sm *SweepMetrics) AddRemaining(ctx context.Context, worker, delta int) {
	if sm == nil {
		return
	}

	sm.pointsRemaining.Add(ctx, int64(delta), metric.WithAttributes(attribute.Int(attrWorker, worker)))
}

// RecordCheckpoint counts one checkpoint write of size bytes.
func (sm *SweepMetrics) RecordCheckpoint(ctx context.Context, worker int, size int64) {
	if sm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Int(attrWorker, worker))

	sm.checkpointSaves.Add(ctx, 1, attrs)
	sm.checkpointBytes.Add(ctx, size, attrs)
}

// RecordSkipped counts checkpoint records ignored during resume.
func (sm *SweepMetrics) RecordSkipped(ctx context.Context, n int) {
	if sm == nil || n == 0 {
		return
	}

	sm.recordsSkipped.Add(ctx, int64(n))
}

// RecordCacheLookup counts one oracle cache lookup.
func (sm *SweepMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if sm == nil {
		return
	}

	result := cacheResultMiss
	if hit {
		result = cacheResultHit
	}

	sm.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCacheResult, result)))
}
