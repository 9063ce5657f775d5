package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/signalrt/internal/command"
)

// Tool name constants.
const (
	ToolNameCreate       = "signalrt_create"
	ToolNameMap          = "signalrt_map"
	ToolNameCombine      = "signalrt_combine"
	ToolNameSpawn        = "signalrt_spawn"
	ToolNameIncrement    = "signalrt_increment"
	ToolNameBlock        = "signalrt_block"
	ToolNameGlitches     = "signalrt_glitches"
	ToolNamePrint        = "signalrt_print"
	ToolNamePrintGraph   = "signalrt_print_graph"
	ToolNamePrintHistory = "signalrt_print_history"
)

// DefaultGraphTimeout bounds how long the print_graph tool waits for a
// sendGraph reply before failing.
const DefaultGraphTimeout = 5 * time.Second

// Sentinel errors for tool input validation.
var (
	ErrEmptyID     = errors.New("id parameter is required and must not be empty")
	ErrEmptySource = errors.New("source_id parameter is required and must not be empty")
	ErrEmptyLeft   = errors.New("left_id parameter is required and must not be empty")
	ErrEmptyRight  = errors.New("right_id parameter is required and must not be empty")
)

// CreateInput is the input schema for the signalrt_create tool.
type CreateInput struct {
	ID           string `json:"id"                      jsonschema:"id of the new leaf signal"`
	InitialValue int64  `json:"initial_value,omitempty" jsonschema:"starting value, default 0"`
}

// MapInput is the input schema for the signalrt_map tool.
type MapInput struct {
	ID       string `json:"id"        jsonschema:"id of the new mapped signal"`
	SourceID string `json:"source_id" jsonschema:"id of the upstream signal to mirror"`
}

// CombineInput is the input schema for the signalrt_combine tool.
type CombineInput struct {
	ID       string `json:"id"       jsonschema:"id of the new combine signal"`
	LeftID   string `json:"left_id"  jsonschema:"id of the first dependency"`
	RightID  string `json:"right_id" jsonschema:"id of the second dependency"`
	Operator string `json:"operator" jsonschema:"one of ADD, SUB, MUL, DIV"`
}

// IDInput addresses a single existing signal by id, used by increment, print,
// print_graph, and print_history.
type IDInput struct {
	ID string `json:"id" jsonschema:"signal id"`
}

// DocumentInput is the input schema for the signalrt_spawn tool.
type DocumentInput struct {
	Document string `json:"document" jsonschema:"raw signal spawn config JSON document: {id, initialValue?, operator?, dependencies?}"`
}

// BlockInput is the input schema for the signalrt_block tool.
type BlockInput struct {
	ID      string `json:"id"      jsonschema:"signal id"`
	Blocked bool   `json:"blocked" jsonschema:"true suppresses publication, false resumes it"`
}

// GlitchesInput is the input schema for the signalrt_glitches tool.
type GlitchesInput struct {
	ID      string `json:"id"      jsonschema:"signal id"`
	Enabled bool   `json:"enabled" jsonschema:"true enables glitch avoidance, false disables it"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func okResult(message string) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: message},
		},
	}, ToolOutput{Data: message}, nil
}

// signalStatus is the JSON shape returned by tools that report a signal's
// observable state (print, create, and spawn; the other mutating tools
// acknowledge with a plain text message).
type signalStatus struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Value   int64  `json:"value"`
	Blocked bool   `json:"blocked,omitempty"`
}

func statusOf(cmds *command.Commands, id string) (signalStatus, bool) {
	s, ok := cmds.Get(id)
	if !ok {
		return signalStatus{}, false
	}

	return signalStatus{ID: s.ID(), State: s.State().String(), Value: s.Value(), Blocked: s.Blocked()}, true
}
