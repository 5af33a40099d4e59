// Package result holds the final artifact of a sweep: the reduced
// transmission tensor together with the bias space it was computed over.
// Reports and plots read artifacts only, never checkpoint records.
package result

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
	"github.com/Sumatoshi-tech/hallsweep/pkg/persist"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

// Version is the current artifact format version.
const Version = 1

// DefaultFileName is the artifact name used when none is configured.
const DefaultFileName = "transmission" + artifactExtension

const (
	artifactMagic     = "HSRS"
	artifactExtension = ".hsr"
)

// Sentinel errors for artifacts.
var (
	ErrPointMismatch = errors.New("tensor does not cover the bias space")
	ErrComponent     = errors.New("invalid transmission component")
)

// Artifact is the final output of a sweep.
type Artifact struct {
	Version   int             `json:"version"    yaml:"version"`
	RunID     string          `json:"run_id"     yaml:"run_id"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	Energy    float64         `json:"energy"     yaml:"energy"`
	Contacts  int             `json:"contacts"   yaml:"contacts"`
	ContactID int             `json:"contact_id" yaml:"contact_id"`
	Bias      bias.Definition `json:"bias"       yaml:"bias"`
	Values    tensor.Snapshot `json:"tensor"     yaml:"tensor"`
}

// New builds an artifact from a reduced tensor. The tensor must have one
// matrix per bias point.
func New(runID string, createdAt time.Time, energy float64, contactID int, space *bias.Space, t *tensor.Tensor) (*Artifact, error) {
	shape := t.Shape()
	if shape.Points != space.NumBiases() {
		return nil, fmt.Errorf("%w: %d points, %d biases", ErrPointMismatch, shape.Points, space.NumBiases())
	}

	return &Artifact{
		Version:   Version,
		RunID:     runID,
		CreatedAt: createdAt.UTC(),
		Energy:    energy,
		Contacts:  shape.Contacts,
		ContactID: contactID,
		Bias:      space.Definition(),
		Values:    t.Snapshot(),
	}, nil
}

func persister() *persist.Persister[Artifact] {
	codec := persist.NewEnvelopeCodec(artifactMagic, Version, artifactExtension,
		persist.NewLZ4Codec(persist.NewGobCodec()))

	return persist.NewPersister[Artifact](codec)
}

// Save atomically writes a to path, creating parent directories.
func Save(path string, a *Artifact) error {
	err := persister().Save(path, a)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	return nil
}

// Load reads and validates the artifact at path.
func Load(path string) (*Artifact, error) {
	a, err := persister().Load(path)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", path, err)
	}

	space, err := a.Space()
	if err != nil {
		return nil, err
	}

	t, err := a.Tensor()
	if err != nil {
		return nil, err
	}

	if t.Shape().Points != space.NumBiases() {
		return nil, fmt.Errorf("%w: %d points, %d biases", ErrPointMismatch, t.Shape().Points, space.NumBiases())
	}

	return a, nil
}

// Space rebuilds the bias space.
func (a *Artifact) Space() (*bias.Space, error) {
	space, err := bias.FromDefinition(a.Bias)
	if err != nil {
		return nil, fmt.Errorf("artifact bias space: %w", err)
	}

	return space, nil
}

// Tensor rebuilds the transmission tensor.
func (a *Artifact) Tensor() (*tensor.Tensor, error) {
	t, err := tensor.FromSnapshot(a.Values)
	if err != nil {
		return nil, fmt.Errorf("artifact tensor: %w", err)
	}

	return t, nil
}

// ComponentName labels the transmission from src to dst with 1-based contact
// numbers: T12 is contact 0 into contact 1. Numbers above 9 are separated by
// an underscore.
func ComponentName(src, dst int) string {
	if src < 9 && dst < 9 {
		return fmt.Sprintf("T%d%d", src+1, dst+1)
	}

	return fmt.Sprintf("T%d_%d", src+1, dst+1)
}

// ParseComponent is the inverse of ComponentName. It returns 0-based indices.
func ParseComponent(name string, contacts int) (src, dst int, err error) {
	body, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(name)), "T")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrComponent, name)
	}

	var srcStr, dstStr string

	if a, b, found := strings.Cut(body, "_"); found {
		srcStr, dstStr = a, b
	} else if len(body) == 2 {
		srcStr, dstStr = body[:1], body[1:]
	} else {
		return 0, 0, fmt.Errorf("%w: %q", ErrComponent, name)
	}

	s, err := strconv.Atoi(srcStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrComponent, name)
	}

	d, err := strconv.Atoi(dstStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrComponent, name)
	}

	if s < 1 || s > contacts || d < 1 || d > contacts {
		return 0, 0, fmt.Errorf("%w: %q outside %d contacts", ErrComponent, name, contacts)
	}

	return s - 1, d - 1, nil
}
