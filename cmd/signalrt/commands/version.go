// Package commands implements CLI command handlers for signalrt.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/signalrt/pkg/version"
)

// NewVersionCommand builds the version subcommand.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "signalrt %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
