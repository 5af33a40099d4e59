// Package checkpoint persists per-worker sweep progress and reloads it on resume.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/hallsweep/pkg/completion"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// MetadataVersion is the current checkpoint metadata format version.
const MetadataVersion = 1

// RecordVersion is the current worker record format version.
const RecordVersion = 1

// Record is one worker's progress: the bias indices it has finished and the
// tensor values at exactly those indices, packed in Done order.
type Record struct {
	RunID       string
	Fingerprint string
	WorkerID    int
	WorkerCount int
	Points      int
	Contacts    int
	Done        []int
	Partial     []float64
	SavedAt     time.Time
}

// NewRecord packs the finished indices of t into a record for worker.
func NewRecord(runID, fingerprint string, worker, workers int, done *completion.Set, t *tensor.Tensor) (*Record, error) {
	indices := done.Sorted()

	partial, err := t.Pack(indices)
	if err != nil {
		return nil, fmt.Errorf("pack worker %d: %w", worker, err)
	}

	shape := t.Shape()

	return &Record{
		RunID:       runID,
		Fingerprint: fingerprint,
		WorkerID:    worker,
		WorkerCount: workers,
		Points:      shape.Points,
		Contacts:    shape.Contacts,
		Done:        indices,
		Partial:     partial,
		SavedAt:     time.Now().UTC(),
	}, nil
}

// Shape returns the tensor shape the record was packed from.
func (r *Record) Shape() tensor.Shape {
	return tensor.Shape{Points: r.Points, Contacts: r.Contacts}
}

// Metadata describes the run that owns a checkpoint directory. It is written
// by the coordinator and only used for diagnostics and validation; resume
// correctness depends on the worker records alone.
type Metadata struct {
	Version     int          `json:"version"`
	RunID       string       `json:"run_id"`
	Fingerprint string       `json:"fingerprint"`
	WorkerCount int          `json:"worker_count"`
	Shape       tensor.Shape `json:"shape"`
	CreatedAt   string       `json:"created_at"`
}
