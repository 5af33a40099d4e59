package persist

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifactState struct {
	RunID  string
	Points int
	Values []float64
}

func TestPersister_SaveLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codec Codec
		ext   string
	}{
		{"json", NewJSONCodec(), ".json"},
		{"gob", NewGobCodec(), ".gob"},
		{"compressed", NewLZ4Codec(NewGobCodec()), ".gob.lz4"},
		{"envelope", NewEnvelopeCodec("TEST", 1, ".bin", NewLZ4Codec(NewGobCodec())), ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewPersister[artifactState](tt.codec)
			assert.Equal(t, tt.ext, p.Extension())

			path := filepath.Join(t.TempDir(), "out", "transmission"+p.Extension())
			original := artifactState{RunID: "run-" + tt.name, Points: 3, Values: []float64{0.5, 1, 2}}

			require.NoError(t, p.Save(path, &original))

			restored, err := p.Load(path)
			require.NoError(t, err)
			assert.Equal(t, original, *restored)
		})
	}
}

func TestPersister_LoadMissing(t *testing.T) {
	t.Parallel()

	p := NewPersister[artifactState](NewGobCodec())

	restored, err := p.Load(filepath.Join(t.TempDir(), "absent.gob"))
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Nil(t, restored)
}
