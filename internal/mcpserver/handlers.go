package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/signalrt/internal/command"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
)

func handleCreate(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, CreateInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input CreateInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if err := cmds.CreateSignal(ctx, input.ID, input.InitialValue); err != nil {
			return errorResult(fmt.Errorf("create %s: %w", input.ID, err))
		}

		status, _ := statusOf(cmds, input.ID)

		return jsonResult(status)
	}
}

func handleMap(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, MapInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input MapInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if input.SourceID == "" {
			return errorResult(ErrEmptySource)
		}

		if err := cmds.MapSignal(ctx, input.ID, input.SourceID); err != nil {
			return errorResult(fmt.Errorf("map %s from %s: %w", input.ID, input.SourceID, err))
		}

		return okResult(fmt.Sprintf("%s mapped from %s", input.ID, input.SourceID))
	}
}

func handleCombine(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, CombineInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input CombineInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if input.LeftID == "" {
			return errorResult(ErrEmptyLeft)
		}

		if input.RightID == "" {
			return errorResult(ErrEmptyRight)
		}

		op, err := signal.ParseCombineOp(input.Operator)
		if err != nil {
			return errorResult(fmt.Errorf("combine %s: %w", input.ID, err))
		}

		if err := cmds.CombineSymbols(ctx, input.ID, input.LeftID, input.RightID, op); err != nil {
			return errorResult(fmt.Errorf("combine %s: %w", input.ID, err))
		}

		return okResult(fmt.Sprintf("%s = %s %s %s", input.ID, input.LeftID, input.Operator, input.RightID))
	}
}

func handleSpawn(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, DocumentInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input DocumentInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if err := cmds.SpawnFromDocument(ctx, []byte(input.Document)); err != nil {
			return errorResult(fmt.Errorf("spawn: %w", err))
		}

		var doc struct {
			ID string `json:"id"`
		}

		if err := json.Unmarshal([]byte(input.Document), &doc); err != nil {
			return errorResult(fmt.Errorf("spawn: %w", err))
		}

		status, _ := statusOf(cmds, doc.ID)

		return jsonResult(status)
	}
}

func handleIncrement(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, IDInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input IDInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if err := cmds.Increment(ctx, input.ID); err != nil {
			return errorResult(fmt.Errorf("increment %s: %w", input.ID, err))
		}

		return okResult(fmt.Sprintf("%s incremented", input.ID))
	}
}

func handleBlock(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, BlockInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input BlockInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if err := cmds.BlockSignal(ctx, input.ID, input.Blocked); err != nil {
			return errorResult(fmt.Errorf("block %s: %w", input.ID, err))
		}

		return okResult(fmt.Sprintf("%s blocked=%t", input.ID, input.Blocked))
	}
}

func handleGlitches(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, GlitchesInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input GlitchesInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if err := cmds.GlitchSignal(ctx, input.ID, input.Enabled); err != nil {
			return errorResult(fmt.Errorf("glitches %s: %w", input.ID, err))
		}

		return okResult(fmt.Sprintf("%s glitch avoidance enabled=%t", input.ID, input.Enabled))
	}
}

func handlePrint(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, IDInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input IDInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if err := cmds.PrintSignal(ctx, input.ID); err != nil {
			return errorResult(fmt.Errorf("print %s: %w", input.ID, err))
		}

		status, ok := statusOf(cmds, input.ID)
		if !ok {
			return errorResult(fmt.Errorf("%w: %s", command.ErrUnknownSignal, input.ID))
		}

		return jsonResult(status)
	}
}

func handlePrintHistory(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, IDInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		_ context.Context, _ *mcpsdk.CallToolRequest, input IDInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		chart, err := cmds.RenderHistoryChart(input.ID)
		if err != nil {
			return errorResult(fmt.Errorf("print_history %s: %w", input.ID, err))
		}

		return okResult(chart)
	}
}

func handlePrintGraph(
	cmds *command.Commands,
) func(context.Context, *mcpsdk.CallToolRequest, IDInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return func(
		ctx context.Context, _ *mcpsdk.CallToolRequest, input IDInput,
	) (*mcpsdk.CallToolResult, ToolOutput, error) {
		if input.ID == "" {
			return errorResult(ErrEmptyID)
		}

		if err := cmds.PrintGraphControl(ctx, input.ID); err != nil {
			return errorResult(fmt.Errorf("print_graph %s: %w", input.ID, err))
		}

		g, err := cmds.GetGraph(ctx, input.ID, DefaultGraphTimeout)
		if err != nil {
			return errorResult(err)
		}

		return okResult(command.RenderGraph(g))
	}
}
