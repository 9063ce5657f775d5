// Package command implements the thin request-builder layer: each command
// either spawns a Signal actor with a config or sends a control message on
// the bus. Spawning additionally rejects duplicate ids and dependency
// cycles before any actor starts.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/signalrt/internal/bus"
	"github.com/Sumatoshi-tech/signalrt/internal/graph"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
	"github.com/Sumatoshi-tech/signalrt/internal/topic"
	"github.com/Sumatoshi-tech/signalrt/pkg/toposort"
)

// ErrCycle is a configuration error: spawning the given signal would close a
// cycle in the declared dependency graph.
var ErrCycle = errors.New("command: dependency cycle detected")

// ErrUnknownSignal is returned by commands that address a signal this
// process never spawned.
var ErrUnknownSignal = errors.New("command: unknown signal id")

// ErrSendGraphTimeout is returned by GetGraph when the target signal never
// answers its sendGraph request.
var ErrSendGraphTimeout = errors.New("command: sendGraph request timed out")

// DefaultSendGraphTimeout bounds how long GetGraph waits for a reply when
// called with a non-positive timeout.
const DefaultSendGraphTimeout = 5 * time.Second

// Commands is the command layer: it owns the set of signals this process
// has spawned, the declared-dependency graph used for cycle rejection, and
// issues requests over the bus for signals it does not own directly.
type Commands struct {
	b    bus.Bus
	deps signal.Deps

	mu       sync.Mutex
	declared *toposort.Graph
	spawned  map[string]*signal.Signal
}

// New constructs a Commands layer sharing b and deps with every signal it
// spawns.
func New(b bus.Bus, deps signal.Deps) *Commands {
	deps.Bus = b

	return &Commands{
		b:        b,
		deps:     deps,
		declared: toposort.NewGraph(),
		spawned:  make(map[string]*signal.Signal),
	}
}

// CreateSignal spawns a leaf signal with id and initial value.
func (c *Commands) CreateSignal(ctx context.Context, id string, initial int64) error {
	return c.spawn(ctx, signal.Config{ID: id, InitialValue: &initial}, nil)
}

// MapSignal spawns newID as a pure pass-through of srcID's value.
func (c *Commands) MapSignal(ctx context.Context, newID, srcID string) error {
	return c.spawn(ctx, signal.Config{ID: newID, Dependencies: []string{srcID}}, []string{srcID})
}

// CombineSymbols spawns newID as op applied to leftID and rightID, in that
// declared order.
func (c *Commands) CombineSymbols(ctx context.Context, newID, leftID, rightID string, op signal.CombineOp) error {
	cfg := signal.Config{ID: newID, Dependencies: []string{leftID, rightID}, Operator: &op}

	return c.spawn(ctx, cfg, []string{leftID, rightID})
}

// Increment sends the .increment control message to id.
func (c *Commands) Increment(ctx context.Context, id string) error {
	return c.publish(ctx, id, topic.Increment, []byte("true"))
}

// BlockSignal sends the .block control message to id.
func (c *Commands) BlockSignal(ctx context.Context, id string, blocked bool) error {
	body, err := json.Marshal(blocked)
	if err != nil {
		return fmt.Errorf("command: marshal block body: %w", err)
	}

	return c.publish(ctx, id, topic.Block, body)
}

// GlitchSignal sends the .glitches control message to id.
func (c *Commands) GlitchSignal(ctx context.Context, id string, enabled bool) error {
	body, err := json.Marshal(enabled)
	if err != nil {
		return fmt.Errorf("command: marshal glitches body: %w", err)
	}

	return c.publish(ctx, id, topic.Glitches, body)
}

// PrintSignal sends the .print control message to id.
func (c *Commands) PrintSignal(ctx context.Context, id string) error {
	return c.publish(ctx, id, topic.Print, []byte("true"))
}

// PrintGraphControl sends the .print.graph control message to id, asking the
// actor to log its own graph. Use GetGraph to retrieve the graph value
// itself (e.g. for rendering in a CLI or MCP tool response).
func (c *Commands) PrintGraphControl(ctx context.Context, id string) error {
	return c.publish(ctx, id, topic.PrintGraph, []byte("true"))
}

// GetGraph requests id's SignalGraph via sendGraph and returns it. Returns
// ErrSendGraphTimeout if id never answers within timeout.
func (c *Commands) GetGraph(ctx context.Context, id string, timeout time.Duration) (*graph.SignalGraph, error) {
	if timeout <= 0 {
		timeout = DefaultSendGraphTimeout
	}

	reply, err := c.b.Request(ctx, topic.For(id, topic.SendGraph), nil, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSendGraphTimeout, id, err)
	}

	if len(reply) == 0 || string(reply) == "null" {
		return nil, fmt.Errorf("command: %q has no graph yet", id)
	}

	g, err := graph.FromJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("command: decode graph for %q: %w", id, err)
	}

	return g, nil
}

// History returns id's recorded value samples as ValueSamples, suitable for
// RenderValueHistoryChart.
func (c *Commands) History(id string) ([]ValueSample, error) {
	s, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, id)
	}

	entries := s.History()
	samples := make([]ValueSample, len(entries))

	for i, e := range entries {
		samples[i] = ValueSample{EventCounter: e.EventCounter, Value: e.Value}
	}

	return samples, nil
}

// RenderHistoryChart renders id's recorded value history as a self-contained
// HTML line chart.
func (c *Commands) RenderHistoryChart(id string) (string, error) {
	samples, err := c.History(id)
	if err != nil {
		return "", err
	}

	return RenderValueHistoryChart(id, samples)
}

func (c *Commands) publish(ctx context.Context, id, channel string, body []byte) error {
	if err := c.b.Publish(ctx, topic.For(id, channel), body); err != nil {
		return fmt.Errorf("command: publish %s.%s: %w", id, channel, err)
	}

	return nil
}

// spawn validates cfg, rejects duplicate ids and dependency cycles, then
// starts the actor's Run loop on its own goroutine.
func (c *Commands) spawn(ctx context.Context, cfg signal.Config, dependencies []string) error {
	c.mu.Lock()

	if _, exists := c.spawned[cfg.ID]; exists {
		c.mu.Unlock()

		return fmt.Errorf("%w: %q", signal.ErrDuplicateID, cfg.ID)
	}

	trial := c.declared.Copy()
	trial.AddNode(cfg.ID)

	for _, dep := range dependencies {
		trial.AddNode(dep)
		trial.AddEdge(dep, cfg.ID)
	}

	if cycle := trial.FindCycle(cfg.ID); len(cycle) > 0 {
		c.mu.Unlock()

		return fmt.Errorf("%w: %v", ErrCycle, cycle)
	}

	s, err := signal.New(cfg, c.deps)
	if err != nil {
		c.mu.Unlock()

		return err
	}

	c.declared = trial
	c.spawned[cfg.ID] = s
	c.mu.Unlock()

	go func() {
		_ = s.Run(ctx)
	}()

	return nil
}

// Get returns the locally spawned signal for id, if this process owns it.
func (c *Commands) Get(id string) (*signal.Signal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.spawned[id]

	return s, ok
}

// ListIDs returns the ids of every signal this process has spawned.
func (c *Commands) ListIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.spawned))
	for id := range c.spawned {
		ids = append(ids, id)
	}

	return ids
}
