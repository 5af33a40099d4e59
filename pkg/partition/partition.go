// Package partition splits a contiguous index range fairly among workers.
package partition

import (
	"errors"
	"fmt"
)

// Sentinel errors for invalid partition requests.
var (
	ErrInvalidWorkers = errors.New("worker count must be positive")
	ErrInvalidWorker  = errors.New("worker index out of range")
	ErrNegativeTotal  = errors.New("total point count is negative")
)

// Range is a half-open span of positions.
type Range struct {
	Start int // Inclusive index.
	End   int // Exclusive index.
}

// Len returns the number of positions in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether i lies in the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// String formats the range as [start, end).
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// For returns the range of n points owned by worker out of workers.
// The first n mod workers workers receive one extra point.
func For(n, workers, worker int) (Range, error) {
	if n < 0 {
		return Range{}, fmt.Errorf("%w: %d", ErrNegativeTotal, n)
	}

	if workers < 1 {
		return Range{}, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}

	if worker < 0 || worker >= workers {
		return Range{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidWorker, worker, workers)
	}

	base := n / workers
	extra := n % workers

	start := worker*base + min(worker, extra)
	size := base

	if worker < extra {
		size++
	}

	return Range{Start: start, End: start + size}, nil
}

// All returns the range of every worker, in worker order.
func All(n, workers int) ([]Range, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}

	ranges := make([]Range, workers)

	for i := range ranges {
		r, err := For(n, workers, i)
		if err != nil {
			return nil, err
		}

		ranges[i] = r
	}

	return ranges, nil
}
