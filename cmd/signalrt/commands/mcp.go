package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	busmemory "github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
	"github.com/Sumatoshi-tech/signalrt/internal/command"
	cfgpkg "github.com/Sumatoshi-tech/signalrt/internal/config"
	"github.com/Sumatoshi-tech/signalrt/internal/graph"
	"github.com/Sumatoshi-tech/signalrt/internal/graphcache"
	"github.com/Sumatoshi-tech/signalrt/internal/mcpserver"
	"github.com/Sumatoshi-tech/signalrt/internal/observability"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
	"github.com/Sumatoshi-tech/signalrt/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		debug           bool
		configPath      string
		diagnosticsAddr string
		printConfig     bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the signal command layer as tools that AI agents
can discover and invoke:
  - signalrt_create: spawn a leaf signal
  - signalrt_map: spawn a pass-through signal
  - signalrt_combine: spawn a combine signal (ADD, SUB, MUL, DIV)
  - signalrt_increment: increment a signal
  - signalrt_block / signalrt_glitches: toggle blocking and glitch avoidance
  - signalrt_print / signalrt_print_graph: inspect a signal's state and graph`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}

			if printConfig {
				rendered, yamlErr := cfg.YAML()
				if yamlErr != nil {
					return yamlErr
				}

				fmt.Fprint(cobraCmd.OutOrStdout(), rendered)

				return nil
			}

			providers, err := initMCPObservability(debug, cfg)
			if err != nil {
				return err
			}

			defer func() {
				if shutdownErr := providers.Shutdown(context.Background()); shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			if diagnosticsAddr != "" {
				diag, diagErr := observability.NewDiagnosticsServer(
					diagnosticsAddr, providers.Meter, providers.Tracer, providers.Logger)
				if diagErr != nil {
					return diagErr
				}
				defer diag.Close()
			}

			red, redErr := observability.NewREDMetrics(providers.Meter)
			if redErr != nil {
				return redErr
			}

			signalMetrics, smErr := observability.NewSignalMetrics(providers.Meter)
			if smErr != nil {
				return smErr
			}

			b := busmemory.NewWithChannelSize(cfg.Bus.SubscriberChannelSize)
			graphCache := graphcache.New[string, *graph.SignalGraph](cfg.Dependency.GraphCacheSize)

			cmds := command.New(b, signal.Deps{
				Logger:        providers.Logger,
				Metrics:       signalMetrics,
				Tracer:        providers.Tracer,
				GraphCache:    graphCache,
				GatherTimeout: time.Duration(cfg.Dependency.GatherTimeoutSec) * time.Second,
			})

			deps := mcpserver.ServerDeps{Logger: providers.Logger, Metrics: red, Tracer: providers.Tracer}

			srv := mcpserver.NewServer(cmds, deps)

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a signalrt config file")
	cmd.Flags().StringVar(&diagnosticsAddr, "diagnostics-addr", "",
		"Address for the /healthz, /readyz, and /metrics endpoints (disabled if empty)")
	cmd.Flags().BoolVar(&printConfig, "print-config", false,
		"Print the effective configuration as YAML and exit")

	return cmd
}

func initMCPObservability(debug bool, cfg *cfgpkg.Config) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.Mode = observability.ModeMCP
	obsCfg.LogJSON = cfg.Telemetry.LogJSON

	if debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	return observability.Init(obsCfg)
}
