package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/signalrt/internal/signal"
)

// configSchema is the JSON Schema for the signal spawn config wire shape:
// {"id":string,"initialValue"?:int64,"operator"?:string,"dependencies"?:[string,...]}.
const configSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "initialValue": {"type": "integer"},
    "operator": {"type": "string", "enum": ["ADD", "SUB", "MUL", "DIV"]},
    "dependencies": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "maxItems": 2
    }
  },
  "required": ["id"],
  "additionalProperties": false
}`

var configSchemaLoader = gojsonschema.NewStringLoader(configSchema)

// ErrInvalidConfig is the configuration error raised when a raw spawn config
// document fails schema validation, surfaced synchronously to the spawner
// before any actor is started.
var ErrInvalidConfig = errors.New("command: spawn config failed schema validation")

// ValidateConfigDocument validates a raw signal spawn config document
// against the wire schema, for callers (CLI flags assembled as JSON, MCP
// tool input) that accept a signal config as a JSON document rather than
// building one through CreateSignal/MapSignal/CombineSymbols directly.
func ValidateConfigDocument(document []byte) error {
	if !json.Valid(document) {
		return fmt.Errorf("%w: not valid JSON", ErrInvalidConfig)
	}

	result, err := gojsonschema.Validate(configSchemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		messages = append(messages, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
}

// spawnDocument is the decoded shape of a document that has already passed
// ValidateConfigDocument.
type spawnDocument struct {
	ID           string   `json:"id"`
	InitialValue *int64   `json:"initialValue,omitempty"`
	Operator     string   `json:"operator,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// SpawnFromDocument validates document against the wire schema, then spawns
// the signal it describes as a leaf, map, or combine depending on how many
// dependencies it names — for callers that assemble a signal config as JSON
// rather than calling CreateSignal/MapSignal/CombineSymbols directly (a CLI
// spawn directive taking a raw document, or an MCP tool accepting one).
func (c *Commands) SpawnFromDocument(ctx context.Context, document []byte) error {
	if err := ValidateConfigDocument(document); err != nil {
		return err
	}

	var doc spawnDocument
	if err := json.Unmarshal(document, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch len(doc.Dependencies) {
	case 0:
		var initial int64
		if doc.InitialValue != nil {
			initial = *doc.InitialValue
		}

		return c.CreateSignal(ctx, doc.ID, initial)
	case 1:
		return c.MapSignal(ctx, doc.ID, doc.Dependencies[0])
	default:
		op, err := signal.ParseCombineOp(doc.Operator)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		return c.CombineSymbols(ctx, doc.ID, doc.Dependencies[0], doc.Dependencies[1], op)
	}
}
