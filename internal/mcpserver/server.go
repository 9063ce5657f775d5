// Package mcpserver exposes the command layer as a Model Context Protocol
// server: each tool is a thin wrapper around one Commands method, so an MCP
// client drives the same signal graph a CLI operator would.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/signalrt/internal/command"
	"github.com/Sumatoshi-tech/signalrt/internal/observability"
)

const (
	serverName    = "signalrt"
	serverVersion = "1.0.0"

	toolCount = 10
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with signal command tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	mu      sync.RWMutex
	tools   []string
	metrics *observability.REDMetrics
	tracer  trace.Tracer
}

// NewServer creates an MCP server whose tools operate on cmds.
func NewServer(cmds *command.Commands, deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		opts,
	)

	srv := &Server{
		inner:   inner,
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}

	srv.registerTools(cmds)

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	if err := s.inner.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	if err := s.inner.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools(cmds *command.Commands) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameCreate,
		Description: "Create a new leaf signal with an id and optional initial value.",
	}, withMetrics(s.metrics, ToolNameCreate, withTracing(s.tracer, ToolNameCreate, handleCreate(cmds))))
	s.trackTool(ToolNameCreate)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameMap,
		Description: "Spawn a signal that republishes another signal's value unchanged.",
	}, withMetrics(s.metrics, ToolNameMap, withTracing(s.tracer, ToolNameMap, handleMap(cmds))))
	s.trackTool(ToolNameMap)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameCombine,
		Description: "Spawn a signal combining two dependencies with ADD, SUB, MUL, or DIV.",
	}, withMetrics(s.metrics, ToolNameCombine, withTracing(s.tracer, ToolNameCombine, handleCombine(cmds))))
	s.trackTool(ToolNameCombine)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameSpawn,
		Description: "Spawn a signal from a raw JSON spawn config document.",
	}, withMetrics(s.metrics, ToolNameSpawn, withTracing(s.tracer, ToolNameSpawn, handleSpawn(cmds))))
	s.trackTool(ToolNameSpawn)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameIncrement,
		Description: "Increment a signal's value by one.",
	}, withMetrics(s.metrics, ToolNameIncrement, withTracing(s.tracer, ToolNameIncrement, handleIncrement(cmds))))
	s.trackTool(ToolNameIncrement)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameBlock,
		Description: "Block or unblock a signal's publication of new values.",
	}, withMetrics(s.metrics, ToolNameBlock, withTracing(s.tracer, ToolNameBlock, handleBlock(cmds))))
	s.trackTool(ToolNameBlock)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameGlitches,
		Description: "Enable or disable glitch avoidance on a signal.",
	}, withMetrics(s.metrics, ToolNameGlitches, withTracing(s.tracer, ToolNameGlitches, handleGlitches(cmds))))
	s.trackTool(ToolNameGlitches)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNamePrint,
		Description: "Print a signal's current state and value.",
	}, withMetrics(s.metrics, ToolNamePrint, withTracing(s.tracer, ToolNamePrint, handlePrint(cmds))))
	s.trackTool(ToolNamePrint)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNamePrintGraph,
		Description: "Print a signal's resolved dependency graph.",
	}, withMetrics(s.metrics, ToolNamePrintGraph, withTracing(s.tracer, ToolNamePrintGraph, handlePrintGraph(cmds))))
	s.trackTool(ToolNamePrintGraph)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNamePrintHistory,
		Description: "Render a signal's observed value history as a self-contained HTML line chart.",
	}, withMetrics(s.metrics, ToolNamePrintHistory, withTracing(s.tracer, ToolNamePrintHistory, handlePrintHistory(cmds))))
	s.trackTool(ToolNamePrintHistory)
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

const mcpSpanPrefix = "mcp."

const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		if err != nil {
			observability.RecordSpanError(span, err, observability.ErrTypeValidation, observability.ErrSourceClient)
		} else if result != nil && result.IsError {
			toolErr := errors.New(toolName + ": tool reported an error result")
			observability.RecordSpanError(span, toolErr, observability.ErrTypeInternal, observability.ErrSourceServer)
		}

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, mcpSpanPrefix+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, mcpSpanPrefix+toolName, status, time.Since(start))

		return result, output, err
	}
}
