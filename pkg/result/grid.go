package result

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
)

// ErrGridAxes is returned when the grid axes are not two distinct variables.
var ErrGridAxes = errors.New("grid needs two distinct bias variables")

// Grid is one transmission component sampled over two bias variables, with
// every other variable pinned to a fixed level.
type Grid struct {
	XKey      string    `json:"x_key"     yaml:"x_key"`
	YKey      string    `json:"y_key"     yaml:"y_key"`
	Component string    `json:"component" yaml:"component"`
	X         []float64 `json:"x"         yaml:"x"`
	Y         []float64 `json:"y"         yaml:"y"`
	// Values is indexed [y][x].
	Values [][]float64 `json:"values" yaml:"values"`
}

// Grid extracts component (for example "T12") against xKey and yKey. fixed
// pins other variables to a level index; unpinned variables use level 0.
func (a *Artifact) Grid(xKey, yKey, component string, fixed map[string]int) (*Grid, error) {
	if xKey == yKey {
		return nil, fmt.Errorf("%w: %q twice", ErrGridAxes, xKey)
	}

	space, err := a.Space()
	if err != nil {
		return nil, err
	}

	t, err := a.Tensor()
	if err != nil {
		return nil, err
	}

	src, dst, err := ParseComponent(component, t.Shape().Contacts)
	if err != nil {
		return nil, err
	}

	vars := space.Variables()
	xPos, yPos := -1, -1
	levels := make([]int, len(vars))

	for i, v := range vars {
		switch v.Key {
		case xKey:
			xPos = i
		case yKey:
			yPos = i
		default:
			level := fixed[v.Key]
			if level < 0 || level >= v.Size() {
				return nil, fmt.Errorf("%w: %s level %d not in [0, %d)", bias.ErrIndexOutOfRange, v.Key, level, v.Size())
			}

			levels[i] = level
		}
	}

	if xPos < 0 {
		return nil, fmt.Errorf("%w: %q", bias.ErrUnknownKey, xKey)
	}

	if yPos < 0 {
		return nil, fmt.Errorf("%w: %q", bias.ErrUnknownKey, yKey)
	}

	g := &Grid{
		XKey:      xKey,
		YKey:      yKey,
		Component: ComponentName(src, dst),
		X:         vars[xPos].Levels,
		Y:         vars[yPos].Levels,
		Values:    make([][]float64, vars[yPos].Size()),
	}

	for iy := range g.Values {
		g.Values[iy] = make([]float64, vars[xPos].Size())

		for ix := range g.Values[iy] {
			levels[xPos], levels[yPos] = ix, iy

			index, encErr := space.Encode(levels)
			if encErr != nil {
				return nil, encErr
			}

			g.Values[iy][ix] = t.At(index, src, dst)
		}
	}

	return g, nil
}
