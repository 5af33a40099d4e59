package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/hallsweep/pkg/bias"
)

// Format selects a report renderer.
type Format string

// Supported formats.
const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for an unsupported report format.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))

	switch f {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Point is one bias point of a report.
type Point struct {
	Index        int                `json:"index"        yaml:"index"`
	Bias         map[string]float64 `json:"bias"         yaml:"bias"`
	Transmission map[string]float64 `json:"transmission" yaml:"transmission"`
}

// Report is the per-point view of an artifact.
type Report struct {
	RunID      string             `json:"run_id"     yaml:"run_id"`
	CreatedAt  time.Time          `json:"created_at" yaml:"created_at"`
	Energy     float64            `json:"energy"     yaml:"energy"`
	Contacts   int                `json:"contacts"   yaml:"contacts"`
	ContactID  int                `json:"contact_id" yaml:"contact_id"`
	Variables  []bias.VariableDef `json:"variables"  yaml:"variables"`
	Components []string           `json:"components" yaml:"components"`
	Points     []Point            `json:"points"     yaml:"points"`
}

// Report expands the artifact into one entry per bias point carrying every
// off-diagonal transmission component.
func (a *Artifact) Report() (*Report, error) {
	space, err := a.Space()
	if err != nil {
		return nil, err
	}

	t, err := a.Tensor()
	if err != nil {
		return nil, err
	}

	contacts := t.Shape().Contacts
	vars := space.Variables()

	rep := &Report{
		RunID:     a.RunID,
		CreatedAt: a.CreatedAt,
		Energy:    a.Energy,
		Contacts:  contacts,
		ContactID: a.ContactID,
		Variables: a.Bias.Variables,
		Points:    make([]Point, 0, space.NumBiases()),
	}

	for src := range contacts {
		for dst := range contacts {
			if src != dst {
				rep.Components = append(rep.Components, ComponentName(src, dst))
			}
		}
	}

	for index := range space.NumBiases() {
		levels, decErr := space.DecodeLevels(index)
		if decErr != nil {
			return nil, decErr
		}

		p := Point{
			Index:        index,
			Bias:         make(map[string]float64, len(vars)),
			Transmission: make(map[string]float64, len(rep.Components)),
		}

		for i, v := range vars {
			p.Bias[v.Key] = v.Levels[levels[i]]
		}

		for src := range contacts {
			for dst := range contacts {
				if src != dst {
					p.Transmission[ComponentName(src, dst)] = t.At(index, src, dst)
				}
			}
		}

		rep.Points = append(rep.Points, p)
	}

	return rep, nil
}

// Render writes the report in the requested format.
func (r *Report) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, r)
	case FormatYAML:
		return renderYAML(w, r)
	case FormatTable, FormatCSV, FormatMarkdown:
		header := table.Row{"#"}
		for _, v := range r.Variables {
			header = append(header, v.Key)
		}

		for _, c := range r.Components {
			header = append(header, c)
		}

		rows := make([]table.Row, 0, len(r.Points))

		for _, p := range r.Points {
			row := table.Row{p.Index}
			for _, v := range r.Variables {
				row = append(row, formatValue(p.Bias[v.Key], format))
			}

			for _, c := range r.Components {
				row = append(row, formatValue(p.Transmission[c], format))
			}

			rows = append(rows, row)
		}

		footer := fmt.Sprintf("%d bias points, EF=%s", len(r.Points), formatValue(r.Energy, format))

		return renderTable(w, format, header, rows, footer)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Render writes the grid in the requested format. Rows are Y levels and
// columns X levels.
func (g *Grid) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, g)
	case FormatYAML:
		return renderYAML(w, g)
	case FormatTable, FormatCSV, FormatMarkdown:
		header := table.Row{g.YKey + `\` + g.XKey}
		for _, x := range g.X {
			header = append(header, formatValue(x, format))
		}

		rows := make([]table.Row, 0, len(g.Y))

		for iy, y := range g.Y {
			row := table.Row{formatValue(y, format)}
			for _, v := range g.Values[iy] {
				row = append(row, formatValue(v, format))
			}

			rows = append(rows, row)
		}

		return renderTable(w, format, header, rows, g.Component)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderTable(w io.Writer, format Format, header table.Row, rows []table.Row, footer string) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(header)
	tbl.AppendRows(rows)

	var out string

	switch format {
	case FormatCSV:
		out = tbl.RenderCSV()
	case FormatMarkdown:
		out = tbl.RenderMarkdown()
	default:
		tbl.AppendFooter(table.Row{footer})
		out = tbl.Render()
	}

	_, err := io.WriteString(w, out+"\n")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}

	return nil
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	return nil
}

// formatValue keeps full precision for machine-readable output and three
// decimals for tables, matching the run's progress lines.
func formatValue(v float64, format Format) string {
	if format == FormatCSV {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	return strconv.FormatFloat(v, 'f', 3, 64)
}
