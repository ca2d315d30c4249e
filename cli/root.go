package cli

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand builds the flowcore command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowcore",
		Short: "Event lifecycle coordinator for trading decision flows",
		Long: `Flowcore runs the decision pipeline: external stimuli are queued by
priority, admitted one at a time, planned in parallel by entry, size and
exit specialists, shaped into an execution intent, and translated for the
configured execution environment.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())

	return cmd
}
