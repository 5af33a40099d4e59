package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hallsweep/pkg/config"
)

// ErrInvalidConfig is returned when validation finds problems.
var ErrInvalidConfig = errors.New("configuration is invalid")

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var colorize, nocolor bool

	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a configuration file",
		Long: `Validate a hallsweep configuration file against the embedded schema, then
check the constraints between fields (contact ids, bias levels, cluster layout).

Examples:
  hallsweep validate .hallsweep.yaml
  hallsweep validate --no-color sweep.yaml
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if nocolor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			} else if colorize {
				color.NoColor = false //nolint:reassign // intentional override of library global
			}

			return runValidate(cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().BoolVar(&colorize, "color", false, "force colored output")
	cmd.Flags().BoolVar(&nocolor, "no-color", false, "disable colored output")

	return cmd
}

func runValidate(out io.Writer, path string) error {
	issues, err := config.ValidateFile(path)
	if err != nil {
		return err
	}

	if len(issues) > 0 {
		color.New(color.FgRed).Fprintf(out, "Configuration does not match the schema (%s)\n", path)
		fmt.Fprintf(out, "\nErrors:\n")

		for _, issue := range issues {
			color.New(color.FgRed).Fprintf(out, "  - %s\n", issue)
		}

		return fmt.Errorf("%w: %d schema errors", ErrInvalidConfig, len(issues))
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		color.New(color.FgRed).Fprintf(out, "Configuration is inconsistent (%s)\n", path)
		color.New(color.FgRed).Fprintf(out, "  - %v\n", err)

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	space, err := cfg.Space()
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(out, "Configuration is valid (%s)\n", path)
	fmt.Fprintf(out, "  %d bias points, %d contacts, output in %s\n",
		space.NumBiases(), cfg.Sweep.Contacts, cfg.Sweep.OutputDir)

	return nil
}
