package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hallsweep/pkg/config"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	cfgPath, outDir := writeRunConfig(t)

	var buf bytes.Buffer

	require.NoError(t, runValidate(&buf, cfgPath))

	out := buf.String()
	assert.Contains(t, out, "Configuration is valid ("+cfgPath+")")
	assert.Contains(t, out, "2 bias points, 3 contacts, output in "+outDir)
}

func TestValidate_SchemaViolation(t *testing.T) {
	t.Parallel()

	path := writeYAML(t, `sweep:
  fermi_energy: 0.1
  contacts: 3
  colour: blue
bias:
  - kind: B
    levels: [1.0]
`)

	var buf bytes.Buffer

	err := runValidate(&buf, path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	out := buf.String()
	assert.Contains(t, out, "does not match the schema")
	assert.Contains(t, out, "sweep")
}

func TestValidate_Inconsistent(t *testing.T) {
	t.Parallel()

	path := writeYAML(t, `sweep:
  fermi_energy: 0.1
  contacts: 3
  contact_id: 3
bias:
  - kind: B
    levels: [1.0]
`)

	var buf bytes.Buffer

	err := runValidate(&buf, path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, buf.String(), "Configuration is inconsistent")
}

func TestValidate_NoBias(t *testing.T) {
	t.Parallel()

	path := writeYAML(t, `sweep:
  fermi_energy: 0.1
`)

	var buf bytes.Buffer

	err := runValidate(&buf, path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, config.ErrNoBias)
}

func TestValidateCommand_MissingFile(t *testing.T) {
	t.Parallel()

	cmd := NewValidateCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.yaml")})

	require.Error(t, cmd.Execute())
}
