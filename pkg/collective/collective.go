// Package collective provides the two synchronization points of a sweep: a
// broadcast of the resumed state from the coordinator and a sum-reduction of
// every worker's tensor back to it.
//
// Workers never share memory. Values crossing a Communicator are copies.
package collective

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/hallsweep/pkg/completion"
	"github.com/Sumatoshi-tech/hallsweep/pkg/persist"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Coordinator is the rank that owns resume and reduction.
const Coordinator = 0

// Sentinel errors for collective operations.
var (
	ErrInvalidGroup = errors.New("invalid group")
	ErrNotRoot      = errors.New("only the coordinator may supply the initial state")
	ErrNilState     = errors.New("coordinator supplied no initial state")
	ErrClosed       = errors.New("communicator closed")
	ErrRejected     = errors.New("request rejected by coordinator")
)

// Communicator connects one worker to its group.
type Communicator interface {
	// Rank is this worker's index in [0, Size()).
	Rank() int
	// Size is the number of workers in the group.
	Size() int
	// BroadcastInitialState distributes state from the coordinator. The
	// coordinator passes the state; every other rank passes nil and receives
	// a copy.
	BroadcastInitialState(ctx context.Context, state *InitialState) (*InitialState, error)
	// ReduceSum sums every rank's tensor. The coordinator receives the sum;
	// other ranks receive nil once their tensor has been handed over.
	ReduceSum(ctx context.Context, local *tensor.Tensor) (*tensor.Tensor, error)
	// Close releases transport resources.
	Close() error
}

// InitialState is what the coordinator tells every worker before computing.
type InitialState struct {
	RunID string
	// Done lists the bias indices finished by earlier runs, ascending.
	Done []int
	// Base holds the resumed values at Done.
	Base tensor.Snapshot
}

// NewInitialState builds a broadcastable state from resumed progress.
func NewInitialState(runID string, done *completion.Set, base *tensor.Tensor) *InitialState {
	return &InitialState{RunID: runID, Done: done.Sorted(), Base: base.Snapshot()}
}

// Clone returns a deep copy.
func (s *InitialState) Clone() *InitialState {
	return &InitialState{
		RunID: s.RunID,
		Done:  append([]int(nil), s.Done...),
		Base: tensor.Snapshot{
			Shape:  s.Base.Shape,
			Values: append([]float64(nil), s.Base.Values...),
		},
	}
}

// Completion returns Done as a set.
func (s *InitialState) Completion() *completion.Set {
	return completion.New(s.Done...)
}

// Tensor rebuilds Base.
func (s *InitialState) Tensor() (*tensor.Tensor, error) {
	t, err := tensor.FromSnapshot(s.Base)
	if err != nil {
		return nil, fmt.Errorf("initial state tensor: %w", err)
	}

	return t, nil
}

func validateGroup(rank, size int) error {
	if size < 1 {
		return fmt.Errorf("%w: size %d", ErrInvalidGroup, size)
	}

	if rank < 0 || rank >= size {
		return fmt.Errorf("%w: rank %d not in [0, %d)", ErrInvalidGroup, rank, size)
	}

	return nil
}

// Wire format magics for HTTP bodies.
const (
	stateMagic    = "HSST"
	tensorMagic   = "HSTN"
	wireVersion   = 1
	wireExtension = ".bin"
)

func stateCodec() persist.Codec {
	return persist.NewEnvelopeCodec(stateMagic, wireVersion, wireExtension, persist.NewLZ4Codec(persist.NewGobCodec()))
}

func tensorCodec() persist.Codec {
	return persist.NewEnvelopeCodec(tensorMagic, wireVersion, wireExtension, persist.NewLZ4Codec(persist.NewGobCodec()))
}
