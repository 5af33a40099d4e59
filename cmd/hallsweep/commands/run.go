// Package commands implements CLI command handlers for hallsweep.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/hallsweep/pkg/checkpoint"
	"github.com/Sumatoshi-tech/hallsweep/pkg/collective"
	"github.com/Sumatoshi-tech/hallsweep/pkg/config"
	"github.com/Sumatoshi-tech/hallsweep/pkg/oracle"
	"github.com/Sumatoshi-tech/hallsweep/pkg/persist"
	"github.com/Sumatoshi-tech/hallsweep/pkg/sweep"
)

// Calculation modes of the run command.
const (
	CalcOneTraj  = "onetraj"
	CalcAllTraj  = "alltraj"
	CalcOneTrans = "onetrans"
	CalcAllTrans = "alltrans"
)

// TrajectoriesFileName receives the output of the trajectory modes.
const TrajectoriesFileName = "trajectories.json"

var (
	// ErrUnknownCalc indicates an unsupported --calc value.
	ErrUnknownCalc = errors.New("unknown calculation mode; use onetraj, alltraj, onetrans or alltrans")
	// ErrSingleProcess indicates a single-point mode was started as part of a group.
	ErrSingleProcess = errors.New("single-point modes run in one process")
)

// oracleFactory builds the base solver of one worker.
type oracleFactory func(cfg *config.Config, logger *slog.Logger) (oracle.Oracle, error)

func execOracle(cfg *config.Config, logger *slog.Logger) (oracle.Oracle, error) {
	return oracle.NewExec(cfg.Oracle.Command, cfg.Oracle.Timeout, nil, logger)
}

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath  string
	calc        string
	clean       bool
	workers     int
	rank        int
	size        int
	coordinator string
	outputDir   string

	newOracle oracleFactory
	now       func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(execOracle, time.Now)
}

func newRunCommandWithDeps(newOracle oracleFactory, now func() time.Time) *cobra.Command {
	rc := &RunCommand{calc: CalcAllTrans, newOracle: newOracle, now: now}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute a transmission sweep",
		Long: `Compute the transmission tensor over every bias point of the configuration.

A run resumes from the checkpoints in <output_dir>/checkpoints unless --clean
is given. Workers run in this process (--workers) or as separate processes
joined through an HTTP coordinator (--rank, --size, --coordinator).

Calculation modes:
  alltrans  full sweep (default)
  onetrans  transmission at the first bias point only
  onetraj   the trajectory injected from the contact midpoint at the first bias point
  alltraj   every trajectory injected from the contact at the first bias point`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVarP(&rc.configPath, "config", "c", "", "Configuration file (default: ./"+config.DefaultFileName+" or $HOME/"+config.DefaultFileName+")")
	cmd.Flags().StringVar(&rc.calc, "calc", CalcAllTrans, "Calculation mode: onetraj, alltraj, onetrans, alltrans")
	cmd.Flags().BoolVar(&rc.clean, "clean", false, "Discard checkpoints and start over")
	cmd.Flags().IntVarP(&rc.workers, "workers", "w", 0, "Workers to run in this process (overrides cluster.local_workers)")
	cmd.Flags().IntVar(&rc.rank, "rank", 0, "Rank of this process in a multi-process group")
	cmd.Flags().IntVar(&rc.size, "size", 0, "Number of processes in the group")
	cmd.Flags().StringVar(&rc.coordinator, "coordinator", "", "Coordinator address host:port (rank 0 listens on it)")
	cmd.Flags().StringVarP(&rc.outputDir, "output", "o", "", "Output directory (overrides sweep.output_dir)")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	start := rc.now()

	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return err
	}

	rc.applyFlags(cmd, cfg)

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := startTelemetry(cfg)
	if err != nil {
		return err
	}
	defer tel.close()

	out := cmd.OutOrStdout()

	switch rc.calc {
	case CalcAllTrans:
		err = rc.sweep(cmd.Context(), cfg, tel, out)
	case CalcOneTrans:
		err = rc.oneTransmission(cmd.Context(), cfg, tel, out)
	case CalcOneTraj, CalcAllTraj:
		err = rc.trajectories(cmd.Context(), cfg, tel, out, rc.calc == CalcAllTraj)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCalc, rc.calc)
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(out, "***  RUNTIME: %d s.\n", int64(rc.now().Sub(start).Seconds()))

	return nil
}

// applyFlags lets explicitly set flags override the configuration.
func (rc *RunCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("clean") {
		cfg.Sweep.Clean = rc.clean
	}

	if flags.Changed("output") {
		cfg.Sweep.OutputDir = rc.outputDir
	}

	if flags.Changed("workers") {
		cfg.Cluster.LocalWorkers = rc.workers
	}

	if flags.Changed("rank") {
		cfg.Cluster.Rank = rc.rank
	}

	if flags.Changed("size") {
		cfg.Cluster.Size = rc.size
	}

	if flags.Changed("coordinator") {
		cfg.Cluster.Coordinator = rc.coordinator
	}
}

// workerOracle wraps the base solver with the cache and instrumentation.
func (rc *RunCommand) workerOracle(cfg *config.Config, rank int, tel *telemetry) (oracle.Oracle, error) {
	base, err := rc.newOracle(cfg, tel.Logger)
	if err != nil {
		return nil, err
	}

	if cfg.Oracle.CacheEntries > 0 {
		base = oracle.NewCached(base, cfg.Oracle.CacheEntries, tel.sweep)
	}

	return oracle.NewInstrumented(base, rank, tel.Tracer, tel.sweep), nil
}

// communicators returns the communicators of the workers this process runs.
func communicators(cfg *config.Config, tel *telemetry) ([]collective.Communicator, error) {
	cluster := cfg.Cluster

	if !cluster.Distributed() {
		group, err := collective.NewLocalGroup(cluster.LocalWorkers)
		if err != nil {
			return nil, err
		}

		comms := make([]collective.Communicator, len(group))
		for i, c := range group {
			comms[i] = c
		}

		return comms, nil
	}

	httpCfg := collective.HTTPConfig{Logger: tel.Logger, Tracer: tel.Tracer, Metrics: tel.red}

	if cluster.Rank == collective.Coordinator {
		coord, err := collective.NewHTTPCoordinator(cluster.Coordinator, cluster.Size, httpCfg)
		if err != nil {
			return nil, err
		}

		return []collective.Communicator{coord}, nil
	}

	worker, err := collective.NewHTTPWorker(cluster.Coordinator, cluster.Rank, cluster.Size, httpCfg)
	if err != nil {
		return nil, err
	}

	return []collective.Communicator{worker}, nil
}

func (rc *RunCommand) sweep(ctx context.Context, cfg *config.Config, tel *telemetry, out io.Writer) error {
	settings := cfg.SweepSettings()

	space, err := cfg.Space()
	if err != nil {
		return err
	}

	coordinatorProcess := !cfg.Cluster.Distributed() || cfg.Cluster.Rank == collective.Coordinator
	runID := uuid.NewString()

	if coordinatorProcess {
		path, writeErr := cfg.WriteResolved(settings.OutputDir)
		if writeErr != nil {
			return writeErr
		}

		tel.Logger.InfoContext(ctx, "configuration recorded", "path", path, "run_id", runID)
		fmt.Fprint(out, space.String())
	}

	comms, err := communicators(cfg, tel)
	if err != nil {
		return err
	}

	defer func() {
		for _, c := range comms {
			closeErr := c.Close()
			if closeErr != nil {
				tel.Logger.Warn("closing communicator", "rank", c.Rank(), "error", closeErr)
			}
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	outcomes := make([]*sweep.Outcome, len(comms))

	for i, comm := range comms {
		orc, orcErr := rc.workerOracle(cfg, comm.Rank(), tel)
		if orcErr != nil {
			return orcErr
		}

		orch, newErr := sweep.New(sweep.RunContext{
			Settings: settings,
			Space:    space,
			Oracle:   orc,
			Comm:     comm,
			Store:    checkpoint.NewStore(settings.CheckpointDir(), tel.Logger),
			RunID:    runID,
			Logger:   tel.Logger,
			Tracer:   tel.Tracer,
			Metrics:  tel.sweep,
		})
		if newErr != nil {
			return newErr
		}

		group.Go(func() error {
			outcome, runErr := orch.Run(groupCtx)
			outcomes[i] = outcome

			return runErr
		})
	}

	err = group.Wait()

	for i, outcome := range outcomes {
		switch {
		case outcome == nil:
		case comms[i].Rank() == collective.Coordinator:
			printSummary(out, outcome)
		case len(comms) == 1:
			fmt.Fprintf(out, "Worker %d computed %s bias points\n", comms[i].Rank(), humanize.Comma(int64(outcome.Computed)))
		}
	}

	return err
}

func printSummary(out io.Writer, o *sweep.Outcome) {
	fmt.Fprintf(out, "Out of %s bias points, %s are done\n", humanize.Comma(int64(o.Total)), humanize.Comma(int64(o.Resumed)))

	if len(o.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped %d unreadable checkpoint records\n", len(o.Skipped))
	}

	if o.ArtifactPath == "" {
		return
	}

	size := "?"

	info, err := os.Stat(o.ArtifactPath)
	if err == nil {
		size = humanize.IBytes(uint64(info.Size())) //nolint:gosec // file sizes are non-negative.
	}

	fmt.Fprintf(out, "Run %s: transmission written to %s (%s)\n", o.RunID, o.ArtifactPath, size)
}

// singlePoint returns the request for bias point 0 and its formatted values.
func singlePoint(cfg *config.Config) (oracle.Request, string, error) {
	if cfg.Cluster.Distributed() || cfg.Cluster.LocalWorkers > 1 {
		return oracle.Request{}, "", ErrSingleProcess
	}

	space, err := cfg.Space()
	if err != nil {
		return oracle.Request{}, "", err
	}

	field, voltage, err := space.Decode(0)
	if err != nil {
		return oracle.Request{}, "", err
	}

	point, err := space.Point(0)
	if err != nil {
		return oracle.Request{}, "", err
	}

	return cfg.SweepSettings().Request(field, voltage), point, nil
}

func (rc *RunCommand) oneTransmission(ctx context.Context, cfg *config.Config, tel *telemetry, out io.Writer) error {
	req, point, err := singlePoint(cfg)
	if err != nil {
		return err
	}

	orc, err := rc.workerOracle(cfg, collective.Coordinator, tel)
	if err != nil {
		return err
	}

	m, err := orc.Transmission(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", sweep.ErrOracleFailure, err)
	}

	fmt.Fprintf(out, "Bias# 0: %s ==> %s\n", point, sweep.TransmissionLine(m, req.ContactID))

	return nil
}

func (rc *RunCommand) trajectories(ctx context.Context, cfg *config.Config, tel *telemetry, out io.Writer, all bool) error {
	req, point, err := singlePoint(cfg)
	if err != nil {
		return err
	}

	orc, err := rc.workerOracle(cfg, collective.Coordinator, tel)
	if err != nil {
		return err
	}

	src, ok := orc.(oracle.TrajectorySource)
	if !ok {
		return oracle.ErrNoTrajectories
	}

	trajs, err := src.Trajectories(ctx, req, all)
	if err != nil {
		return fmt.Errorf("%w: %w", sweep.ErrOracleFailure, err)
	}

	path := filepath.Join(cfg.Sweep.OutputDir, TrajectoriesFileName)

	err = persist.SaveFile(path, persist.NewJSONCodec(), trajs)
	if err != nil {
		return fmt.Errorf("write trajectories: %w", err)
	}

	fmt.Fprintf(out, "Bias# 0: %s ==> %s written to %s\n", point, pluralTrajectories(len(trajs)), path)

	return nil
}

func pluralTrajectories(n int) string {
	if n == 1 {
		return "1 trajectory"
	}

	return humanize.Comma(int64(n)) + " trajectories"
}
