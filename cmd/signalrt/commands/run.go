package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	busmemory "github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
	"github.com/Sumatoshi-tech/signalrt/internal/command"
	cfgpkg "github.com/Sumatoshi-tech/signalrt/internal/config"
	"github.com/Sumatoshi-tech/signalrt/internal/graph"
	"github.com/Sumatoshi-tech/signalrt/internal/graphcache"
	"github.com/Sumatoshi-tech/signalrt/internal/observability"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
	"github.com/Sumatoshi-tech/signalrt/pkg/version"
)

// ErrUnknownDirective is returned when a script line's first token does not
// name a recognized command.
var ErrUnknownDirective = errors.New("run: unknown directive")

// ErrBadDirective is returned when a recognized directive has the wrong
// number or shape of arguments.
var ErrBadDirective = errors.New("run: malformed directive")

const readyPollInterval = 5 * time.Millisecond

// NewRunCommand builds the run subcommand, which executes a newline-delimited
// script of signal commands against one in-process bus and command layer.
//
// Recognized directives, one per line (blank lines and lines starting with #
// are ignored):
//
//	create <id> [initial]
//	map <id> <source>
//	combine <id> <left> <right> <ADD|SUB|MUL|DIV>
//	increment <id>
//	block <id> <true|false>
//	glitches <id> <true|false>
//	print <id>
//	print-graph <id>
//	print-history <id> <output.html>
//	spawn <json-document>
//	wait <id>
//	sleep <duration>
func NewRunCommand() *cobra.Command {
	var (
		debug           bool
		configPath      string
		diagnosticsAddr string
		printConfig     bool
	)

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a script of signal commands against one in-process bus",
		Args:  cobra.ExactArgs(1),

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
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

			providers, err := initRunObservability(debug, cfg)
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

			file, openErr := os.Open(args[0])
			if openErr != nil {
				return fmt.Errorf("run: open script: %w", openErr)
			}
			defer file.Close()

			return runScript(cobraCmd.Context(), cobraCmd.OutOrStdout(), cmds, file)
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

func initRunObservability(debug bool, cfg *cfgpkg.Config) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.Mode = observability.ModeCLI
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

func runScript(ctx context.Context, w io.Writer, cmds *command.Commands, r io.Reader) error {
	scanner := bufio.NewScanner(r)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "spawn "); ok {
			if err := cmds.SpawnFromDocument(ctx, []byte(strings.TrimSpace(rest))); err != nil {
				return fmt.Errorf("run: line %d: %w", lineNo, err)
			}

			continue
		}

		if err := execDirective(ctx, w, cmds, strings.Fields(line)); err != nil {
			return fmt.Errorf("run: line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("run: read script: %w", err)
	}

	return nil
}

//nolint:gocognit // one dispatch table over a small fixed directive set.
func execDirective(ctx context.Context, w io.Writer, cmds *command.Commands, fields []string) error {
	switch fields[0] {
	case "create":
		return execCreate(ctx, cmds, fields)
	case "map":
		if len(fields) != 3 {
			return fmt.Errorf("%w: map <id> <source>", ErrBadDirective)
		}

		return cmds.MapSignal(ctx, fields[1], fields[2])
	case "combine":
		return execCombine(ctx, cmds, fields)
	case "increment":
		if len(fields) != 2 {
			return fmt.Errorf("%w: increment <id>", ErrBadDirective)
		}

		return cmds.Increment(ctx, fields[1])
	case "block":
		return execBool(ctx, fields, cmds.BlockSignal)
	case "glitches":
		return execBool(ctx, fields, cmds.GlitchSignal)
	case "print":
		return execPrint(w, cmds, fields)
	case "print-graph":
		return execPrintGraph(ctx, w, cmds, fields)
	case "print-history":
		return execPrintHistory(cmds, fields)
	case "wait":
		return execWait(ctx, cmds, fields)
	case "sleep":
		return execSleep(fields)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirective, fields[0])
	}
}

func execCreate(ctx context.Context, cmds *command.Commands, fields []string) error {
	if len(fields) < 2 || len(fields) > 3 {
		return fmt.Errorf("%w: create <id> [initial]", ErrBadDirective)
	}

	var initial int64

	if len(fields) == 3 {
		parsed, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: initial value: %w", ErrBadDirective, err)
		}

		initial = parsed
	}

	return cmds.CreateSignal(ctx, fields[1], initial)
}

func execCombine(ctx context.Context, cmds *command.Commands, fields []string) error {
	if len(fields) != 5 {
		return fmt.Errorf("%w: combine <id> <left> <right> <op>", ErrBadDirective)
	}

	op, err := signal.ParseCombineOp(fields[4])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadDirective, err)
	}

	return cmds.CombineSymbols(ctx, fields[1], fields[2], fields[3], op)
}

func execBool(
	ctx context.Context, fields []string, fn func(context.Context, string, bool) error,
) error {
	if len(fields) != 3 {
		return fmt.Errorf("%w: <id> <true|false>", ErrBadDirective)
	}

	value, err := strconv.ParseBool(fields[2])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadDirective, err)
	}

	return fn(ctx, fields[1], value)
}

func execPrint(w io.Writer, cmds *command.Commands, fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("%w: print <id>", ErrBadDirective)
	}

	s, ok := cmds.Get(fields[1])
	if !ok {
		return fmt.Errorf("%w: %s", command.ErrUnknownSignal, fields[1])
	}

	fmt.Fprintln(w, command.FormatValue(s.ID(), s.Value(), s.Blocked()))

	return nil
}

func execPrintGraph(ctx context.Context, w io.Writer, cmds *command.Commands, fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("%w: print-graph <id>", ErrBadDirective)
	}

	g, err := cmds.GetGraph(ctx, fields[1], command.DefaultSendGraphTimeout)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, command.RenderGraph(g))

	return nil
}

func execPrintHistory(cmds *command.Commands, fields []string) error {
	if len(fields) != 3 {
		return fmt.Errorf("%w: print-history <id> <output.html>", ErrBadDirective)
	}

	chart, err := cmds.RenderHistoryChart(fields[1])
	if err != nil {
		return err
	}

	if err := os.WriteFile(fields[2], []byte(chart), 0o600); err != nil {
		return fmt.Errorf("run: write history chart: %w", err)
	}

	return nil
}

func execWait(ctx context.Context, cmds *command.Commands, fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("%w: wait <id>", ErrBadDirective)
	}

	for {
		if s, ok := cmds.Get(fields[1]); ok && s.State() == signal.Ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("run: wait %s: %w", fields[1], ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

func execSleep(fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("%w: sleep <duration>", ErrBadDirective)
	}

	d, err := time.ParseDuration(fields[1])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadDirective, err)
	}

	time.Sleep(d)

	return nil
}
