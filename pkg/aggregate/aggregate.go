// Package aggregate combines per-worker result tensors into one.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/hallsweep/pkg/collective"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// ErrNoTensors is returned when Fold has nothing to fold.
var ErrNoTensors = errors.New("no tensors to fold")

// Fold sums tensors element-wise into a new tensor. Inputs are not modified.
func Fold(tensors ...*tensor.Tensor) (*tensor.Tensor, error) {
	if len(tensors) == 0 {
		return nil, ErrNoTensors
	}

	out := tensors[0].Clone()

	for i, t := range tensors[1:] {
		merged, err := tensor.Merge(out, t)
		if err != nil {
			return nil, fmt.Errorf("fold tensor %d: %w", i+1, err)
		}

		out = merged
	}

	return out, nil
}

// Reduce sends local to the coordinator. The coordinator receives the sum of
// every worker's tensor; every other rank receives nil once its tensor has
// been handed over and holds no further responsibility for the result.
func Reduce(ctx context.Context, comm collective.Communicator, local *tensor.Tensor) (*tensor.Tensor, error) {
	total, err := comm.ReduceSum(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("reduce rank %d: %w", comm.Rank(), err)
	}

	if comm.Rank() != collective.Coordinator {
		return nil, nil
	}

	return total, nil
}
