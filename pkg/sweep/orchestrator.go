// Package sweep drives a distributed transmission sweep: resume from
// checkpoints, split the unfinished bias points across workers, compute them
// with an oracle while checkpointing, reduce the per-worker tensors, and write
// the final artifact.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/hallsweep/pkg/aggregate"
	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
	"github.com/Sumatoshi-tech/hallsweep/pkg/checkpoint"
	"github.com/Sumatoshi-tech/hallsweep/pkg/collective"
	"github.com/Sumatoshi-tech/hallsweep/pkg/completion"
	"github.com/Sumatoshi-tech/hallsweep/pkg/observability"
	"github.com/Sumatoshi-tech/hallsweep/pkg/oracle"
	"github.com/Sumatoshi-tech/hallsweep/pkg/partition"
	"github.com/Sumatoshi-tech/hallsweep/pkg/result"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Sentinel errors for sweep runs.
var (
	ErrInvalidRun    = errors.New("invalid run context")
	ErrOracleFailure = errors.New("oracle failure")
)

// Phase is a step of the run state machine.
type Phase string

// Phases in the order a run visits them. Computing and Checkpointing
// alternate until the assigned points are exhausted.
const (
	PhaseInit          Phase = "INIT"
	PhaseResuming      Phase = "RESUMING"
	PhasePartitioning  Phase = "PARTITIONING"
	PhaseComputing     Phase = "COMPUTING"
	PhaseCheckpointing Phase = "CHECKPOINTING"
	PhaseReducing      Phase = "REDUCING"
	PhaseDone          Phase = "DONE"
)

// Span names.
const (
	spanRun        = "hallsweep.sweep.run"
	spanResume     = "hallsweep.sweep.resume"
	spanReduce     = "hallsweep.sweep.reduce"
	spanCheckpoint = "hallsweep.checkpoint.save"
)

// RunContext is everything one worker needs for a run. Nothing in it is
// shared mutable state: each worker gets its own communicator and oracle.
type RunContext struct {
	Settings Settings
	Space    *bias.Space
	Oracle   oracle.Oracle
	Comm     collective.Communicator
	Store    *checkpoint.Store
	// RunID labels records and the artifact. Only the coordinator's value is
	// used; other workers adopt it from the broadcast.
	RunID string

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.SweepMetrics
	// Now is the clock used for checkpoint timing. Defaults to time.Now.
	Now func() time.Time
}

// Outcome summarises a finished (or failed) run for one worker.
type Outcome struct {
	Phase Phase
	RunID string
	// Total is the number of bias points in the space.
	Total int
	// Resumed is the number of points finished by earlier runs.
	Resumed int
	// Assigned is this worker's slice of the remaining point list.
	Assigned partition.Range
	// Computed counts points this worker finished in this run.
	Computed int
	// Checkpoints counts records this worker saved.
	Checkpoints int
	// Skipped lists unusable records found on resume (coordinator only).
	Skipped []checkpoint.Skipped
	// Result is the reduced tensor (coordinator only).
	Result *tensor.Tensor
	// ArtifactPath is where the artifact was written (coordinator only).
	ArtifactPath string
}

// Orchestrator runs the state machine for one worker.
type Orchestrator struct {
	rc          RunContext
	fingerprint string

	mu    sync.Mutex
	phase Phase
}

// New validates rc and prepares a run.
func New(rc RunContext) (*Orchestrator, error) {
	err := rc.Settings.Validate()
	if err != nil {
		return nil, err
	}

	switch {
	case rc.Space == nil:
		return nil, fmt.Errorf("%w: no bias space", ErrInvalidRun)
	case rc.Oracle == nil:
		return nil, fmt.Errorf("%w: no oracle", ErrInvalidRun)
	case rc.Comm == nil:
		return nil, fmt.Errorf("%w: no communicator", ErrInvalidRun)
	case rc.Store == nil:
		return nil, fmt.Errorf("%w: no checkpoint store", ErrInvalidRun)
	}

	if rc.Logger == nil {
		rc.Logger = slog.New(slog.DiscardHandler)
	}

	if rc.Tracer == nil {
		rc.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	if rc.Now == nil {
		rc.Now = time.Now
	}

	fp, err := Fingerprint(rc.Settings, rc.Space)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{rc: rc, fingerprint: fp, phase: PhaseInit}, nil
}

// Fingerprint identifies the inputs that determine every tensor value, so
// records from a different configuration are never merged.
func Fingerprint(s Settings, space *bias.Space) (string, error) {
	return checkpoint.Fingerprint(space.Definition(), s.FermiEnergy, s.Contacts, s.ContactID, s.DL, s.NTh)
}

// Phase reports the current phase. After a failed run it is the phase that failed.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Run executes the sweep for this worker. The returned Outcome is non-nil
// even on error and describes how far the worker got.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	comm := o.rc.Comm

	ctx = observability.WithRun(ctx, observability.RunInfo{Rank: comm.Rank()})

	ctx, span := o.rc.Tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.Int("rank", comm.Rank()),
		attribute.Int("worker.count", comm.Size()),
		attribute.Int("sweep.points", o.rc.Space.NumBiases()),
	))
	defer span.End()

	out := &Outcome{Total: o.rc.Space.NumBiases()}

	err := o.run(ctx, out)

	out.Phase = o.Phase()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.rc.Logger.ErrorContext(ctx, "sweep failed", "worker", comm.Rank(), "phase", out.Phase, "error", err)

		return out, err
	}

	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, out *Outcome) error {
	comm := o.rc.Comm
	shape := tensor.Shape{Points: o.rc.Space.NumBiases(), Contacts: o.rc.Settings.Contacts}

	o.setPhase(PhaseResuming)

	local, global, owned, err := o.resume(ctx, shape, out)
	if err != nil {
		return err
	}

	ctx = observability.WithRun(ctx, observability.RunInfo{RunID: out.RunID, Rank: comm.Rank()})

	o.setPhase(PhasePartitioning)

	remaining := global.Remaining(shape.Points)

	rng, err := partition.For(len(remaining), comm.Size(), comm.Rank())
	if err != nil {
		return err
	}

	assigned := remaining[rng.Start:rng.End]
	out.Assigned = rng

	o.rc.Logger.InfoContext(ctx, "partition assigned",
		"worker", comm.Rank(), "workers", comm.Size(), "range", rng.String(), "points", len(assigned))
	o.rc.Metrics.AddRemaining(ctx, comm.Rank(), len(assigned))

	o.setPhase(PhaseComputing)

	err = o.compute(ctx, assigned, local, owned, out)
	if err != nil {
		return err
	}

	o.setPhase(PhaseReducing)

	reduceCtx, span := o.rc.Tracer.Start(ctx, spanReduce)
	total, err := aggregate.Reduce(reduceCtx, comm, local)

	span.End()

	if err != nil {
		return err
	}

	if comm.Rank() == collective.Coordinator {
		out.Result = total

		err = o.writeArtifact(ctx, total, out)
		if err != nil {
			return err
		}
	}

	o.setPhase(PhaseDone)

	return nil
}

// resume reconstructs prior progress. The coordinator loads every record,
// saves their union as its own record and broadcasts it; other workers
// receive it.
//
// It returns this worker's local tensor, the globally finished set, and the
// set of indices whose values local holds. The coordinator's local tensor
// starts from the resumed values so they reach the reduction exactly once.
// Every other local tensor starts at zero and owns nothing yet.
func (o *Orchestrator) resume(
	ctx context.Context, shape tensor.Shape, out *Outcome,
) (local *tensor.Tensor, global, owned *completion.Set, err error) {
	ctx, span := o.rc.Tracer.Start(ctx, spanResume)
	defer span.End()

	comm := o.rc.Comm

	if comm.Rank() != collective.Coordinator {
		state, recvErr := comm.BroadcastInitialState(ctx, nil)
		if recvErr != nil {
			return nil, nil, nil, fmt.Errorf("receive initial state: %w", recvErr)
		}

		if state.Base.Shape != shape {
			return nil, nil, nil, fmt.Errorf("%w: coordinator shape %s, local shape %s", ErrInvalidRun, state.Base.Shape, shape)
		}

		local, err = tensor.New(shape)
		if err != nil {
			return nil, nil, nil, err
		}

		out.RunID = state.RunID
		out.Resumed = len(state.Done)

		return local, state.Completion(), completion.New(), nil
	}

	store := o.rc.Store

	if o.rc.Settings.Clean {
		err = store.Clear()
		if err != nil {
			return nil, nil, nil, err
		}
	} else if store.Exists() {
		validateErr := store.Validate(o.fingerprint)
		if validateErr != nil {
			o.rc.Logger.WarnContext(ctx, "checkpoint metadata does not match this run", "error", validateErr)
		}
	}

	res, err := store.LoadAll(ctx, checkpoint.LoadRequest{
		MaxExpectedWorkers: comm.Size(),
		Shape:              shape,
		Fingerprint:        o.fingerprint,
		Clean:              o.rc.Settings.Clean,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	out.RunID = o.rc.RunID
	out.Resumed = res.Done.Len()
	out.Skipped = res.Skipped

	o.rc.Metrics.RecordSkipped(ctx, len(res.Skipped))
	o.rc.Logger.InfoContext(ctx, "resumed checkpoint",
		"points", shape.Points, "done", res.Done.Len(),
		"records", len(res.Loaded), "skipped", len(res.Skipped), "previous_workers", res.DeclaredWorkers)

	err = store.WriteMetadata(checkpoint.Metadata{
		RunID:       o.rc.RunID,
		Fingerprint: o.fingerprint,
		WorkerCount: comm.Size(),
		Shape:       shape,
		CreatedAt:   o.rc.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	// Workers overwrite their own records from now on; keep the union safe first.
	if res.Done.Len() > 0 {
		err = o.save(ctx, res.Done, res.Tensor, out)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	_, err = comm.BroadcastInitialState(ctx, collective.NewInitialState(o.rc.RunID, res.Done, res.Tensor))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("broadcast initial state: %w", err)
	}

	return res.Tensor, res.Done, res.Done.Clone(), nil
}

// compute works through assigned in ascending order. local and done are this
// worker's own state; done doubles as the checkpoint's completion set.
func (o *Orchestrator) compute(ctx context.Context, assigned []int, local *tensor.Tensor, done *completion.Set, out *Outcome) error {
	if len(assigned) == 0 {
		return nil
	}

	rank := o.rc.Comm.Rank()
	interval := o.rc.Settings.CheckpointInterval
	last := o.rc.Now()
	elapsed := time.Duration(0)
	dirty := false

	// Points already computed stay recoverable when the worker stops early.
	flush := func(cause error) error {
		if !dirty {
			return cause
		}

		err := o.save(context.WithoutCancel(ctx), done, local, out)
		if err != nil {
			o.rc.Logger.ErrorContext(ctx, "final checkpoint failed", "worker", rank, "error", err)
		}

		if cause != nil {
			return cause
		}

		return err
	}

	for _, index := range assigned {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return flush(ctxErr)
		}

		err := o.computePoint(ctx, index, local)
		if err != nil {
			return flush(err)
		}

		done.Add(index)
		dirty = true
		out.Computed++

		o.rc.Metrics.RecordPoint(ctx, rank)

		now := o.rc.Now()
		elapsed += now.Sub(last)
		last = now

		if elapsed >= interval {
			o.setPhase(PhaseCheckpointing)

			// A point that finished before a cancellation is still saved.
			err = o.save(context.WithoutCancel(ctx), done, local, out)
			if err != nil {
				return err
			}

			elapsed = 0
			dirty = false

			o.setPhase(PhaseComputing)
		}
	}

	return flush(nil)
}

func (o *Orchestrator) computePoint(ctx context.Context, index int, local *tensor.Tensor) error {
	s := o.rc.Settings

	field, voltage, err := o.rc.Space.Decode(index)
	if err != nil {
		return err
	}

	m, err := o.rc.Oracle.Transmission(ctx, s.Request(field, voltage))
	if err == nil {
		err = local.Set(index, m)
	}

	if err != nil {
		point, _ := o.rc.Space.Point(index)

		return fmt.Errorf("%w: bias %d (%s): %w", ErrOracleFailure, index, point, err)
	}

	if o.rc.Logger.Enabled(ctx, slog.LevelInfo) {
		point, _ := o.rc.Space.Point(index)

		o.rc.Logger.InfoContext(ctx, "bias point computed",
			"worker", o.rc.Comm.Rank(), "index", index, "bias", point, "transmission", TransmissionLine(m, s.ContactID))
	}

	return nil
}

func (o *Orchestrator) save(ctx context.Context, done *completion.Set, t *tensor.Tensor, out *Outcome) error {
	comm := o.rc.Comm

	ctx, span := o.rc.Tracer.Start(ctx, spanCheckpoint, trace.WithAttributes(
		attribute.Int("worker", comm.Rank()),
		attribute.Int("checkpoint.points", done.Len()),
	))
	defer span.End()

	runID := out.RunID
	if runID == "" {
		runID = o.rc.RunID
	}

	rec, err := checkpoint.NewRecord(runID, o.fingerprint, comm.Rank(), comm.Size(), done, t)
	if err != nil {
		return err
	}

	size, err := o.rc.Store.Save(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	out.Checkpoints++

	o.rc.Metrics.RecordCheckpoint(ctx, comm.Rank(), size)
	o.rc.Logger.DebugContext(ctx, "checkpoint saved",
		"worker", comm.Rank(), "points", done.Len(), "size", humanize.IBytes(uint64(size))) //nolint:gosec // size is a file length.

	return nil
}

func (o *Orchestrator) writeArtifact(ctx context.Context, total *tensor.Tensor, out *Outcome) error {
	s := o.rc.Settings

	artifact, err := result.New(out.RunID, o.rc.Now(), s.FermiEnergy, s.ContactID, o.rc.Space, total)
	if err != nil {
		return err
	}

	path := s.ArtifactPath()

	err = result.Save(path, artifact)
	if err != nil {
		return err
	}

	out.ArtifactPath = path

	o.rc.Logger.InfoContext(ctx, "artifact written", "path", path, "points", total.Shape().Points)

	return nil
}

// TransmissionLine formats the injecting contact's row as "T12=0.500 T13=0.250".
func TransmissionLine(m tensor.Matrix, contactID int) string {
	parts := make([]string, 0, len(m))

	for dst, v := range m[contactID] {
		if dst != contactID {
			parts = append(parts, fmt.Sprintf("%s=%.3f", result.ComponentName(contactID, dst), v))
		}
	}

	return strings.Join(parts, " ")
}
