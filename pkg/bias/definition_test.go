package bias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_RoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSpace()

	_, err := s.Append([]float64{1, 2}, KindField)
	require.NoError(t, err)
	_, err = s.Append([]float64{0.1, 0.15, 0.2}, KindVoltage)
	require.NoError(t, err)

	def := s.Definition()

	require.Len(t, def.Variables, 2)
	assert.Equal(t, "B1", def.Variables[0].Key)
	assert.Equal(t, "V1", def.Variables[1].Key)

	rebuilt, err := FromDefinition(def)

	require.NoError(t, err)
	assert.Equal(t, s.NumBiases(), rebuilt.NumBiases())

	for index := range s.NumBiases() {
		wantB, wantV, err := s.Decode(index)
		require.NoError(t, err)

		gotB, gotV, err := rebuilt.Decode(index)
		require.NoError(t, err)

		assert.Equal(t, wantB, gotB)
		assert.Equal(t, wantV, gotV)
	}
}

func TestFromDefinition_KeyMismatch(t *testing.T) {
	t.Parallel()

	def := Definition{Variables: []VariableDef{{Key: "B2", Kind: KindField, Levels: []float64{1}}}}

	_, err := FromDefinition(def)

	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestFromDefinition_InvalidKind(t *testing.T) {
	t.Parallel()

	def := Definition{Variables: []VariableDef{{Kind: "X", Levels: []float64{1}}}}

	_, err := FromDefinition(def)

	require.ErrorIs(t, err, ErrInvalidKind)
}
