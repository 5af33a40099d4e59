package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hallsweep/pkg/result"
)

// ErrGridFlags indicates an incomplete --grid/--component combination.
var ErrGridFlags = errors.New("--grid needs two variable keys (e.g. B1,V1) and --component")

// ReportCommand holds configuration for the report command.
type ReportCommand struct {
	format    string
	grid      []string
	component string
	fixed     map[string]int
	noColor   bool
}

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	rc := &ReportCommand{}

	cmd := &cobra.Command{
		Use:   "report <artifact>",
		Short: "Render a finished sweep artifact",
		Long: `Render the transmission artifact written by a completed run.

Without --grid every bias point is listed with all transmission components.
With --grid X,Y and --component Tij a two-dimensional map of one component is
extracted; variables other than X and Y stay at their first level unless
pinned with --fix KEY=LEVEL.

Examples:
  hallsweep report out/transmission.hsr
  hallsweep report out/transmission.hsr --format csv
  hallsweep report out/transmission.hsr --grid B1,V1 --component T12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.run(cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().StringVarP(&rc.format, "format", "f", string(result.FormatTable), "Output format: table, json, yaml, csv, markdown")
	cmd.Flags().StringSliceVar(&rc.grid, "grid", nil, "Two variable keys spanning the map columns and rows (e.g. B1,V1)")
	cmd.Flags().StringVar(&rc.component, "component", "", "Transmission component of the map (e.g. T12)")
	cmd.Flags().StringToIntVar(&rc.fixed, "fix", nil, "Pin other variables to a level index (e.g. V2=3)")
	cmd.Flags().BoolVar(&rc.noColor, "no-color", false, "Disable colored summary")

	return cmd
}

func (rc *ReportCommand) run(out io.Writer, path string) error {
	if rc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	format, err := result.ParseFormat(rc.format)
	if err != nil {
		return err
	}

	artifact, err := result.Load(path)
	if err != nil {
		return err
	}

	if format == result.FormatTable {
		printArtifactHeader(out, path, artifact)
	}

	if len(rc.grid) == 0 && rc.component == "" {
		report, reportErr := artifact.Report()
		if reportErr != nil {
			return reportErr
		}

		return report.Render(out, format)
	}

	if len(rc.grid) != 2 || rc.component == "" {
		return ErrGridFlags
	}

	grid, err := artifact.Grid(strings.TrimSpace(rc.grid[0]), strings.TrimSpace(rc.grid[1]), rc.component, rc.fixed)
	if err != nil {
		return err
	}

	return grid.Render(out, format)
}

func printArtifactHeader(out io.Writer, path string, a *result.Artifact) {
	size := ""

	info, err := os.Stat(path)
	if err == nil {
		size = ", " + humanize.IBytes(uint64(info.Size())) //nolint:gosec // file sizes are non-negative.
	}

	keys := make([]string, 0, len(a.Bias.Variables))
	for _, v := range a.Bias.Variables {
		keys = append(keys, fmt.Sprintf("%s(%d)", v.Key, len(v.Levels)))
	}

	color.New(color.FgCyan, color.Bold).Fprintf(out, "Run %s%s\n", a.RunID, size)
	fmt.Fprintf(out, "  created %s, EF=%g, %d contacts, injecting from contact %d\n",
		humanize.Time(a.CreatedAt), a.Energy, a.Contacts, a.ContactID+1)
	fmt.Fprintf(out, "  %s bias points over %s\n\n",
		humanize.Comma(int64(a.Values.Shape.Points)), strings.Join(keys, " x "))
}
