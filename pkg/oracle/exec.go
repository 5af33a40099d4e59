package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Modes sent to the external simulator.
const (
	modeTransmission    = "transmission"
	modeTrajectory      = "trajectory"
	modeAllTrajectories = "trajectories"

	// stderrTail bounds how much simulator stderr is quoted in errors.
	stderrTail = 512
)

type execRequest struct {
	Mode string `json:"mode"`
	Request
}

type execResponse struct {
	Transmission tensor.Matrix `json:"transmission,omitempty"`
	Trajectories []Trajectory  `json:"trajectories,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Exec runs an external simulator once per call. The request is written to
// stdin as one JSON object and the simulator answers with one JSON object on
// stdout:
//
//	{"transmission": [[...], ...]}            for mode "transmission"
//	{"trajectories": [{"occupation", "path"}]} for the trajectory modes
//	{"error": "..."}                           on failure
type Exec struct {
	argv    []string
	timeout time.Duration
	env     []string
	logger  *slog.Logger
}

// NewExec creates an oracle running argv. A positive timeout bounds each call.
// env entries ("KEY=value") are appended to the inherited environment.
func NewExec(argv []string, timeout time.Duration, env []string, logger *slog.Logger) (*Exec, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoCommand
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Exec{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		env:     append([]string(nil), env...),
		logger:  logger,
	}, nil
}

// Transmission implements Oracle.
func (e *Exec) Transmission(ctx context.Context, req Request) (tensor.Matrix, error) {
	resp, err := e.call(ctx, modeTransmission, req)
	if err != nil {
		return nil, err
	}

	err = CheckShape(resp.Transmission, req.Contacts)
	if err != nil {
		return nil, err
	}

	return resp.Transmission, nil
}

// Trajectories implements TrajectorySource.
func (e *Exec) Trajectories(ctx context.Context, req Request, all bool) ([]Trajectory, error) {
	mode := modeTrajectory
	if all {
		mode = modeAllTrajectories
	}

	resp, err := e.call(ctx, mode, req)
	if err != nil {
		return nil, err
	}

	return resp.Trajectories, nil
}

func (e *Exec) call(ctx context.Context, mode string, req Request) (*execResponse, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(execRequest{Mode: mode, Request: req})
	if err != nil {
		return nil, fmt.Errorf("encode oracle request: %w", err)
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...) //nolint:gosec // the simulator command is operator configuration.
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}

	start := time.Now()
	err = cmd.Run()

	e.logger.DebugContext(ctx, "oracle call", "mode", mode, "duration", time.Since(start), "error", err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCommand, e.argv[0], ctxErr)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrCommand, e.argv[0], err, tail(stderr.String()))
	}

	var resp execResponse

	err = json.Unmarshal(stdout.Bytes(), &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %w", ErrCommand, e.argv[0], err)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrCommand, e.argv[0], resp.Error)
	}

	return &resp, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}

	return s
}
