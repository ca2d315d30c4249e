package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/meridian-quant/flowcore/pipeline/config"
)

// NewValidateCommand builds the validate subcommand.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a pipeline configuration file",
		Long: `Load and validate the pipeline configuration, checking the wiring
table, the specialist confidence gates, the urgency bands and the
translator environment.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "flowcore.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			return validateConfig(path, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

func validateConfig(path string, output io.Writer) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cfg, err := config.Load(path)
	if err != nil {
		red.Fprintf(output, "✗ %s: %v\n", path, err)
		return err
	}

	warnings, err := cfg.Validate()
	if err != nil {
		red.Fprintf(output, "✗ %s: %v\n", path, err)
		return err
	}

	for _, warning := range warnings {
		yellow.Fprintf(output, "⚠ %s\n", warning)
	}

	green.Fprintf(output, "✓ %s is valid\n", path)
	fmt.Fprintf(output, "  environment:    %s\n", cfg.Environment)
	fmt.Fprintf(output, "  queue capacity: %d\n", cfg.Coordinator.QueueCapacity)
	fmt.Fprintf(output, "  flow timeout:   %s\n", cfg.Coordinator.FlowTimeout)
	fmt.Fprintf(output, "  wiring routes:  %d\n", len(cfg.Wiring.Routes))
	return nil
}
