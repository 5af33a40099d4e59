package result

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{
		"table": FormatTable, "JSON": FormatJSON, " yaml ": FormatYAML,
		"csv": FormatCSV, "md": FormatMarkdown, "markdown": FormatMarkdown,
	} {
		got, err := ParseFormat(in)

		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestArtifact_Report(t *testing.T) {
	t.Parallel()

	rep, err := testArtifact(t).Report()
	require.NoError(t, err)

	assert.Equal(t, []string{"T12", "T13", "T21", "T23", "T31", "T32"}, rep.Components)
	require.Len(t, rep.Points, 6)

	p := rep.Points[3]
	assert.Equal(t, map[string]float64{"B1": 2, "V1": 0.2}, p.Bias)
	assert.InDelta(t, 321.0, p.Transmission["T32"], 0)
	assert.NotContains(t, p.Transmission, "T11")
}

func TestReport_RenderJSON(t *testing.T) {
	t.Parallel()

	rep, err := testArtifact(t).Report()
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, rep.Render(&buf, FormatJSON))

	var got Report

	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, rep.Points, got.Points)
	assert.Equal(t, "run-1", got.RunID)
}

func TestReport_RenderYAML(t *testing.T) {
	t.Parallel()

	rep, err := testArtifact(t).Report()
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, rep.Render(&buf, FormatYAML))

	var got map[string]any

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Len(t, got["points"], 6)
}

func TestReport_RenderTableAndCSV(t *testing.T) {
	t.Parallel()

	rep, err := testArtifact(t).Report()
	require.NoError(t, err)

	var tbl bytes.Buffer

	require.NoError(t, rep.Render(&tbl, FormatTable))
	assert.Contains(t, tbl.String(), "T32")
	assert.Contains(t, tbl.String(), "0.200")
	assert.Contains(t, strings.ToLower(tbl.String()), "6 bias points")

	var csv bytes.Buffer

	require.NoError(t, rep.Render(&csv, FormatCSV))

	lines := strings.Split(strings.TrimSpace(csv.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "#,B1,V1,T12,T13,T21,T23,T31,T32", lines[0])
	assert.Equal(t, "3,2,0.2,301,302,310,312,320,321", lines[4])

	var md bytes.Buffer

	require.NoError(t, rep.Render(&md, FormatMarkdown))
	assert.True(t, strings.HasPrefix(md.String(), "| # |"))
}

func TestGrid_Render(t *testing.T) {
	t.Parallel()

	g, err := testArtifact(t).Grid("V1", "B1", "T12", nil)
	require.NoError(t, err)

	var csv bytes.Buffer

	require.NoError(t, g.Render(&csv, FormatCSV))

	lines := strings.Split(strings.TrimSpace(csv.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2,101,301,501", lines[2])

	var js bytes.Buffer

	require.NoError(t, g.Render(&js, FormatJSON))

	var got Grid

	require.NoError(t, json.Unmarshal(js.Bytes(), &got))
	assert.Equal(t, g, &got)

	assert.ErrorIs(t, g.Render(&js, Format("xml")), ErrUnknownFormat)
}
