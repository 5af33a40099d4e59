package result

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
	"github.com/Sumatoshi-tech/hallsweep/pkg/persist"
	"github.com/Sumatoshi-tech/hallsweep/pkg/tensor"
)

var testCreatedAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// testArtifact builds a 2x3 sweep (B1 in {1, 2}, V1 in {0.1, 0.2, 0.3}) over
// three contacts.
func testArtifact(t *testing.T) *Artifact {
	t.Helper()

	space := bias.NewSpace()

	_, err := space.Append([]float64{1, 2}, bias.KindField)
	require.NoError(t, err)
	_, err = space.Append([]float64{0.1, 0.2, 0.3}, bias.KindVoltage)
	require.NoError(t, err)

	return artifactFor(t, space, 3)
}

// artifactFor fills every matrix with T(src, dst) = 100*index + 10*src + dst.
func artifactFor(t *testing.T, space *bias.Space, contacts int) *Artifact {
	t.Helper()

	tn, err := tensor.New(tensor.Shape{Points: space.NumBiases(), Contacts: contacts})
	require.NoError(t, err)

	for index := range space.NumBiases() {
		m := tensor.NewMatrix(contacts)
		for src := range contacts {
			for dst := range contacts {
				m[src][dst] = float64(100*index + 10*src + dst)
			}
		}

		require.NoError(t, tn.Set(index, m))
	}

	a, err := New("run-1", testCreatedAt, 0.1, 0, space, tn)
	require.NoError(t, err)

	return a
}

func TestNew_PointMismatch(t *testing.T) {
	t.Parallel()

	space := bias.NewSpace()

	_, err := space.Append([]float64{1, 2}, bias.KindField)
	require.NoError(t, err)

	tn, err := tensor.New(tensor.Shape{Points: 3, Contacts: 2})
	require.NoError(t, err)

	_, err = New("run", testCreatedAt, 0, 0, space, tn)

	require.ErrorIs(t, err, ErrPointMismatch)
}

func TestArtifact_SaveLoad(t *testing.T) {
	t.Parallel()

	a := testArtifact(t)
	path := filepath.Join(t.TempDir(), "out", DefaultFileName)

	require.NoError(t, Save(path, a))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	space, err := got.Space()
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "V1"}, space.Keys())

	tn, err := got.Tensor()
	require.NoError(t, err)
	assert.InDelta(t, 512.0, tn.At(5, 1, 2), 0)
}

func TestArtifact_ValuesKeepTensorKey(t *testing.T) {
	t.Parallel()

	a := testArtifact(t)
	assert.Equal(t, tensor.Shape{Points: 6, Contacts: 3}, a.Values.Shape)

	var buf bytes.Buffer
	require.NoError(t, persist.NewJSONCodec().Encode(&buf, a))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "tensor")
	assert.NotContains(t, doc, "values")

	var back Artifact
	require.NoError(t, persist.NewJSONCodec().Decode(&buf, &back))

	tn, err := back.Tensor()
	require.NoError(t, err)
	assert.InDelta(t, 501.0, tn.At(5, 0, 1), 0)
}

func TestLoad_RejectsOtherFiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.hsr")
	require.NoError(t, os.WriteFile(path, []byte("HSCK\x00\x01junk"), 0o600))

	_, err := Load(path)

	require.ErrorIs(t, err, persist.ErrBadMagic)
}

func TestComponentName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "T12", ComponentName(0, 1))
	assert.Equal(t, "T31", ComponentName(2, 0))
	assert.Equal(t, "T1_12", ComponentName(0, 11))

	for _, tc := range [][2]int{{0, 1}, {2, 0}, {0, 11}, {10, 3}} {
		src, dst, err := ParseComponent(ComponentName(tc[0], tc[1]), 12)

		require.NoError(t, err)
		assert.Equal(t, tc, [2]int{src, dst})
	}
}

func TestParseComponent_Errors(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "12", "T", "T123", "Tab", "T1_x", "T04", "T13"} {
		_, _, err := ParseComponent(name, 2)

		require.ErrorIs(t, err, ErrComponent, name)
	}

	src, dst, err := ParseComponent(" t21 ", 2)

	require.NoError(t, err)
	assert.Equal(t, 1, src)
	assert.Equal(t, 0, dst)
}
