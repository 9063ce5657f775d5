// Package main provides the entry point for the signalrt CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/signalrt/cmd/signalrt/commands"
	"github.com/Sumatoshi-tech/signalrt/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "signalrt",
		Short: "Signalrt - a distributed functional-reactive signal runtime",
		Long: `Signalrt runs a graph of signal actors that publish and react to value
changes over a pub/sub bus, with glitch-free propagation across diamond
dependencies.

Commands:
  run        Execute a script of signal commands against one in-process bus
  mcp        Start an MCP server exposing the command layer as tools
  version    Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
