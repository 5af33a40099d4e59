package collective

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

type contribution struct {
	rank   int
	tensor *tensor.Tensor
}

type localGroup struct {
	size   int
	states []chan *InitialState
	reduce chan contribution
	done   chan struct{}
	once   sync.Once
}

// Local is an in-process communicator for workers running as goroutines.
type Local struct {
	group *localGroup
	rank  int
}

// NewLocalGroup creates size connected communicators, indexed by rank.
// Every channel is buffered so no send outlives its receiver.
func NewLocalGroup(size int) ([]*Local, error) {
	err := validateGroup(0, size)
	if err != nil {
		return nil, err
	}

	g := &localGroup{
		size:   size,
		states: make([]chan *InitialState, size),
		reduce: make(chan contribution, size),
		done:   make(chan struct{}),
	}

	members := make([]*Local, size)

	for rank := range members {
		g.states[rank] = make(chan *InitialState, 1)
		members[rank] = &Local{group: g, rank: rank}
	}

	return members, nil
}

// Rank implements Communicator.
func (l *Local) Rank() int { return l.rank }

// Size implements Communicator.
func (l *Local) Size() int { return l.group.size }

// BroadcastInitialState implements Communicator.
func (l *Local) BroadcastInitialState(ctx context.Context, state *InitialState) (*InitialState, error) {
	if l.rank != Coordinator {
		if state != nil {
			return nil, ErrNotRoot
		}

		select {
		case got := <-l.group.states[l.rank]:
			return got, nil
		case <-l.group.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if state == nil {
		return nil, ErrNilState
	}

	for rank := 1; rank < l.group.size; rank++ {
		select {
		case l.group.states[rank] <- state.Clone():
		case <-l.group.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return state.Clone(), nil
}

// ReduceSum implements Communicator. The coordinator adds contributions in
// rank order so the result does not depend on arrival order.
func (l *Local) ReduceSum(ctx context.Context, local *tensor.Tensor) (*tensor.Tensor, error) {
	if l.rank != Coordinator {
		select {
		case l.group.reduce <- contribution{rank: l.rank, tensor: local.Clone()}:
			return nil, nil
		case <-l.group.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	parts := make([]*tensor.Tensor, l.group.size)
	parts[Coordinator] = local

	for received := 1; received < l.group.size; received++ {
		select {
		case c := <-l.group.reduce:
			parts[c.rank] = c.tensor
		case <-l.group.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return sum(parts)
}

// Close unblocks every pending collective of the group.
func (l *Local) Close() error {
	l.group.once.Do(func() { close(l.group.done) })

	return nil
}

// sum merges the contributions indexed by rank. parts is never modified.
func sum(parts []*tensor.Tensor) (*tensor.Tensor, error) {
	total := parts[Coordinator]

	for rank, part := range parts[1:] {
		merged, err := tensor.Merge(total, part)
		if err != nil {
			return nil, fmt.Errorf("reduce rank %d: %w", rank+1, err)
		}

		total = merged
	}

	if len(parts) == 1 {
		return total.Clone(), nil
	}

	return total, nil
}
