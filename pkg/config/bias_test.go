package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
)

func ptr(f float64) *float64 { return &f }

func TestLinspace(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Linspace(0, 1, 0))
	assert.Equal(t, []float64{2}, Linspace(2, 5, 1))
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, Linspace(0, 1, 5))
	assert.Equal(t, []float64{1, 0}, Linspace(1, 0, 2))
}

func TestLinspace_EndpointsExact(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Float64Range(-10, 10).Draw(t, "start")
		stop := rapid.Float64Range(-10, 10).Draw(t, "stop")
		count := rapid.IntRange(2, 200).Draw(t, "count")

		out := Linspace(start, stop, count)

		if len(out) != count {
			t.Fatalf("len %d, want %d", len(out), count)
		}

		if out[0] != start || out[count-1] != stop {
			t.Fatalf("endpoints %g..%g, want %g..%g", out[0], out[count-1], start, stop)
		}
	})
}

func TestResonanceField(t *testing.T) {
	t.Parallel()

	// 2 * 0.05 / (1e6 * 1e-9 * 350)
	assert.InDelta(t, 0.2857142857, ResonanceField(1, 0.1, 0.15, 350), 1e-9)
	assert.InDelta(t, 2*ResonanceField(1, 0.1, 0.15, 350), ResonanceField(2, 0.1, 0.15, 350), 1e-12)
	assert.InDelta(t, ResonanceField(1, 0.15, 0.1, 350), ResonanceField(1, 0.1, 0.15, 350), 1e-12)
}

func TestSpace_Resonance(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Sweep: SweepConfig{FermiEnergy: 0.1},
		Bias: []BiasConfig{
			{Kind: "B", Resonance: &ResonanceConfig{Harmonics: []float64{1, 2}}},
			{Kind: "V", Levels: []float64{0.15, 0.2}},
		},
	}

	space, err := cfg.Space()
	require.NoError(t, err)

	b1, err := space.Variable("B1")
	require.NoError(t, err)

	want := []float64{
		ResonanceField(1, 0.1, 0.15, DefaultContactSeparation),
		ResonanceField(2, 0.1, 0.15, DefaultContactSeparation),
	}
	assert.Equal(t, want, b1.Levels)
	assert.Equal(t, bias.KindField, b1.Kind)
	assert.Equal(t, 4, space.NumBiases())
}

func TestSpace_ResonanceDefaultsToFirstHarmonic(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Bias: []BiasConfig{
			{Kind: "voltage", Start: ptr(0.2), Count: 1},
			{Kind: "field", Resonance: &ResonanceConfig{ContactSeparation: 100}},
		},
	}

	space, err := cfg.Space()
	require.NoError(t, err)

	b1, err := space.Variable("B1")
	require.NoError(t, err)
	assert.Equal(t, []float64{ResonanceField(1, 0, 0.2, 100)}, b1.Levels)
}

func TestSpace_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bias    []BiasConfig
		wantErr error
	}{
		{"empty", nil, ErrNoBias},
		{"bad_kind", []BiasConfig{{Kind: "X", Levels: []float64{1}}}, bias.ErrInvalidKind},
		{"no_levels", []BiasConfig{{Kind: "B"}}, bias.ErrEmptyLevels},
		{"levels_and_start", []BiasConfig{{Kind: "B", Levels: []float64{1}, Start: ptr(0)}}, ErrInvalidBias},
		{"no_count", []BiasConfig{{Kind: "B", Start: ptr(0), Stop: ptr(1)}}, ErrInvalidBias},
		{"no_stop", []BiasConfig{{Kind: "B", Start: ptr(0), Count: 3}}, ErrInvalidBias},
		{"no_start", []BiasConfig{{Kind: "B", Stop: ptr(1), Count: 3}}, ErrInvalidBias},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{Bias: tt.bias}

			_, err := cfg.Space()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
