package oracle

import (
	"context"

	"github.com/Sumatoshi-tech/hallsweep/pkg/cache"
	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Cached memoises a deterministic Oracle. Only successful results are kept.
// Callers always receive their own copy of a cached matrix.
type Cached struct {
	next    Oracle
	lru     *cache.LRU[string, tensor.Matrix]
	metrics *observability.SweepMetrics
}

// NewCached wraps next with an LRU holding at most entries matrices.
// metrics may be nil.
func NewCached(next Oracle, entries int, metrics *observability.SweepMetrics) *Cached {
	return &Cached{
		next:    next,
		lru:     cache.NewLRU[string, tensor.Matrix](entries),
		metrics: metrics,
	}
}

// Transmission implements Oracle.
func (c *Cached) Transmission(ctx context.Context, req Request) (tensor.Matrix, error) {
	key := req.Key()

	if m, ok := c.lru.Get(key); ok {
		c.metrics.RecordCacheLookup(ctx, true)

		return m.Clone(), nil
	}

	c.metrics.RecordCacheLookup(ctx, false)

	m, err := c.next.Transmission(ctx, req)
	if err != nil {
		return nil, err
	}

	c.lru.Put(key, m.Clone())

	return m, nil
}

// Trajectories forwards to next when it produces trajectories. They are not cached.
func (c *Cached) Trajectories(ctx context.Context, req Request, all bool) ([]Trajectory, error) {
	src, ok := c.next.(TrajectorySource)
	if !ok {
		return nil, ErrNoTrajectories
	}

	return src.Trajectories(ctx, req, all)
}

// Stats reports cache effectiveness.
func (c *Cached) Stats() cache.Stats {
	return c.lru.Stats()
}
