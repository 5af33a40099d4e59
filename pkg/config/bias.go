package config

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
)

// Physical constants of the resonance rule.
const (
	fermiVelocity = 1e6  // m/s
	nanometre     = 1e-9 // m
)

// BiasConfig is one bias variable. Exactly one of Levels, a linspace
// (Start, Stop, Count) or Resonance gives its values.
type BiasConfig struct {
	Kind      string           `mapstructure:"kind"      yaml:"kind"`
	Levels    []float64        `mapstructure:"levels"    yaml:"levels,omitempty"`
	Start     *float64         `mapstructure:"start"     yaml:"start,omitempty"`
	Stop      *float64         `mapstructure:"stop"      yaml:"stop,omitempty"`
	Count     int              `mapstructure:"count"     yaml:"count,omitempty"`
	Resonance *ResonanceConfig `mapstructure:"resonance" yaml:"resonance,omitempty"`
}

// ResonanceConfig places a field variable on the cyclotron resonances of the
// contact geometry: B = m * 2|EF - V| / (vF * nm * dc).
type ResonanceConfig struct {
	// Harmonics lists the resonance orders m. Defaults to [1].
	Harmonics []float64 `mapstructure:"m"  yaml:"m,omitempty"`
	// ContactSeparation is dc in nm.
	ContactSeparation float64 `mapstructure:"dc" yaml:"dc,omitempty"`
}

// Linspace returns count evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, count int) []float64 {
	if count <= 0 {
		return nil
	}

	if count == 1 {
		return []float64{start}
	}

	step := (stop - start) / float64(count-1)
	out := make([]float64, count)

	for i := range out {
		out[i] = start + float64(i)*step
	}

	out[count-1] = stop

	return out
}

// ResonanceField is the field of the m-th resonance between contacts dc nm
// apart at Fermi energy ef and voltage v.
func ResonanceField(m, ef, v, dc float64) float64 {
	return m * 2 * math.Abs(ef-v) / (fermiVelocity * nanometre * dc)
}

// Space builds the bias space. Field and voltage variables are keyed in
// configuration order within their kind.
func (c *Config) Space() (*bias.Space, error) {
	if len(c.Bias) == 0 {
		return nil, ErrNoBias
	}

	kinds := make([]bias.Kind, len(c.Bias))
	levels := make([][]float64, len(c.Bias))
	firstVoltage := -1

	// Explicit variables first; resonance levels depend on the first voltage.
	for i, b := range c.Bias {
		kind, err := bias.ParseKind(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("bias[%d]: %w", i, err)
		}

		kinds[i] = kind

		if b.Resonance != nil {
			if kind != bias.KindField {
				return nil, fmt.Errorf("%w: bias[%d]: resonance applies to field variables only", ErrInvalidBias, i)
			}

			continue
		}

		levels[i], err = b.explicitLevels()
		if err != nil {
			return nil, fmt.Errorf("bias[%d]: %w", i, err)
		}

		if kind == bias.KindVoltage && firstVoltage < 0 {
			firstVoltage = i
		}
	}

	for i, b := range c.Bias {
		if b.Resonance == nil {
			continue
		}

		if firstVoltage < 0 {
			return nil, fmt.Errorf("%w: bias[%d]: resonance needs an explicit voltage variable", ErrInvalidBias, i)
		}

		levels[i] = b.Resonance.levels(c.Sweep.FermiEnergy, levels[firstVoltage][0])
	}

	space := bias.NewSpace()

	for i := range c.Bias {
		_, err := space.Append(levels[i], kinds[i])
		if err != nil {
			return nil, fmt.Errorf("bias[%d]: %w", i, err)
		}
	}

	return space, nil
}

func (b BiasConfig) explicitLevels() ([]float64, error) {
	linspace := b.Start != nil || b.Stop != nil || b.Count != 0

	switch {
	case len(b.Levels) > 0 && linspace:
		return nil, fmt.Errorf("%w: levels and start/stop/count are exclusive", ErrInvalidBias)
	case len(b.Levels) > 0:
		return b.Levels, nil
	case !linspace:
		return nil, bias.ErrEmptyLevels
	case b.Start == nil || b.Count < 1:
		return nil, fmt.Errorf("%w: linspace needs start and a positive count", ErrInvalidBias)
	case b.Stop == nil && b.Count > 1:
		return nil, fmt.Errorf("%w: linspace with %d points needs stop", ErrInvalidBias, b.Count)
	}

	stop := *b.Start
	if b.Stop != nil {
		stop = *b.Stop
	}

	return Linspace(*b.Start, stop, b.Count), nil
}

func (r *ResonanceConfig) levels(ef, v float64) []float64 {
	dc := r.ContactSeparation
	if dc <= 0 {
		dc = DefaultContactSeparation
	}

	harmonics := r.Harmonics
	if len(harmonics) == 0 {
		harmonics = []float64{1}
	}

	out := make([]float64, len(harmonics))
	for i, m := range harmonics {
		out[i] = ResonanceField(m, ef, v, dc)
	}

	return out
}
