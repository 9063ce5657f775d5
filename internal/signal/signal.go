// Package signal implements the Signal actor: the central component that
// owns a value, subscribes to zero or more upstream signals, runs the
// glitch-avoidance check on fan-in, and republishes value updates.
package signal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/signalrt/internal/bus"
	"github.com/Sumatoshi-tech/signalrt/internal/chain"
	"github.com/Sumatoshi-tech/signalrt/internal/dependency"
	"github.com/Sumatoshi-tech/signalrt/internal/graph"
	"github.com/Sumatoshi-tech/signalrt/internal/observability"
	"github.com/Sumatoshi-tech/signalrt/internal/topic"
)

// inboxSize bounds the actor's inbound event queue. The bus itself already
// buffers per-subscriber; this is a second cushion so a slow handler
// doesn't make Publish block the forwarding goroutines.
const inboxSize = 128

// maxHistorySamples bounds how many value samples History retains; once
// full, the oldest sample is dropped to make room for the newest.
const maxHistorySamples = 256

// HistoryEntry is one observed (eventCounter, value) pair recorded every
// time the actor computes a new value, including values that are never
// published because the signal is blocked or not yet Ready — an operator
// diagnosing a pre-convergence glitch needs to see those too.
type HistoryEntry struct {
	EventCounter int
	Value        int64
}

// State is the actor's lifecycle state.
type State int

// Lifecycle states. There is no terminal state: the actor lives until its
// context is canceled.
const (
	Initializing State = iota
	AwaitingDeps
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case AwaitingDeps:
		return "awaiting_deps"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

type lastValue struct {
	chain *chain.SignalChain
	value int64
}

type eventKind int

const (
	evDepsReady eventKind = iota
	evDepsFailed
	evControl
	evUpstreamValue
)

type inboundEvent struct {
	kind       eventKind
	channel    string
	upstreamID string
	payload    []byte
	err        error
	graph      *graph.SignalGraph
}

// Signal is one actor: a single goroutine owning its state exclusively,
// driven by Run.
type Signal struct {
	id      string
	b       bus.Bus
	logger  *slog.Logger
	metrics *observability.SignalMetrics
	tracer  trace.Tracer

	tracker *dependency.Tracker
	inbound chan inboundEvent

	// Actor-owned state. Only the Run goroutine touches these after
	// construction; no locking is needed because no two handlers ever run
	// concurrently. value, blocked, and glitchAvoidance are atomics solely
	// so their accessors can be read from other goroutines (tests, CLI
	// print).
	value           atomic.Int64
	blocked         atomic.Bool
	glitchAvoidance atomic.Bool
	eventCounter    int
	operator        *CombineOp
	lastValues      map[string]lastValue

	stateMu sync.RWMutex
	state   State

	historyMu sync.RWMutex
	history   []HistoryEntry

	unsubscribe []func()
}

// Deps bundles a Signal's process-global collaborators.
type Deps struct {
	Bus           bus.Bus
	Logger        *slog.Logger
	Metrics       *observability.SignalMetrics
	Tracer        trace.Tracer
	GraphCache    *dependency.GraphCache
	GatherTimeout time.Duration
}

// New validates cfg and constructs a Signal ready to Run. It does not spawn
// any goroutine or touch the bus; that happens in Run.
func New(cfg Config, deps Deps) (*Signal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var initial int64
	if cfg.InitialValue != nil {
		initial = *cfg.InitialValue
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Signal{
		id:         cfg.ID,
		b:          deps.Bus,
		logger:     logger.With("signal_id", cfg.ID),
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		operator:   cfg.Operator,
		lastValues: make(map[string]lastValue),
		inbound:    make(chan inboundEvent, inboxSize),
		state:      Initializing,
	}
	s.value.Store(initial)
	s.glitchAvoidance.Store(true)

	s.tracker = dependency.New(cfg.ID, cfg.Dependencies, deps.Bus, deps.GatherTimeout, deps.GraphCache, deps.Metrics)

	return s, nil
}

// ID returns the signal's id.
func (s *Signal) ID() string { return s.id }

// State returns the actor's current lifecycle state.
func (s *Signal) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	return s.state
}

func (s *Signal) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Value returns the signal's current value. Safe to call from any
// goroutine; intended for tests and diagnostics.
func (s *Signal) Value() int64 {
	return s.value.Load()
}

// Blocked reports whether publication is currently suppressed. Safe to call
// from any goroutine.
func (s *Signal) Blocked() bool {
	return s.blocked.Load()
}

// GlitchAvoidance reports whether the fan-in glitch check is enabled. Safe
// to call from any goroutine.
func (s *Signal) GlitchAvoidance() bool {
	return s.glitchAvoidance.Load()
}

// History returns a snapshot of the value samples recorded so far, oldest
// first. Safe to call from any goroutine.
func (s *Signal) History() []HistoryEntry {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)

	return out
}

func (s *Signal) recordHistory(value int64) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append(s.history, HistoryEntry{EventCounter: s.eventCounter, Value: value})

	if len(s.history) > maxHistorySamples {
		s.history = s.history[len(s.history)-maxHistorySamples:]
	}
}

// Run installs the control-topic handlers, starts dependency gathering, and
// processes inbound events until ctx is canceled. It returns ctx.Err() on
// cancellation.
func (s *Signal) Run(ctx context.Context) error {
	if err := s.installControlHandlers(ctx); err != nil {
		return err
	}

	s.setState(AwaitingDeps)

	go s.tracker.GatherDependencies(ctx, func(g *graph.SignalGraph, err error) {
		if err != nil {
			s.push(ctx, inboundEvent{kind: evDepsFailed, err: err})

			return
		}

		s.push(ctx, inboundEvent{kind: evDepsReady, graph: g})
	})

	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // ctx.Err() is a well-known sentinel, wrapping adds no value
		case ev := <-s.inbound:
			s.handle(ctx, ev)
		}
	}
}

func (s *Signal) push(ctx context.Context, ev inboundEvent) {
	select {
	case s.inbound <- ev:
	case <-ctx.Done():
	}
}

func (s *Signal) teardown() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
}

func (s *Signal) installControlHandlers(ctx context.Context) error {
	controlChannels := []string{topic.Increment, topic.Block, topic.Glitches, topic.Print, topic.PrintGraph}

	for _, ch := range controlChannels {
		sub, unsubscribe, err := s.b.Subscribe(ctx, topic.For(s.id, ch))
		if err != nil {
			return err //nolint:wrapcheck // bus errors are already descriptive
		}

		s.unsubscribe = append(s.unsubscribe, unsubscribe)

		go s.forwardControl(ctx, ch, sub)
	}

	unregister, err := s.b.HandleRequests(ctx, topic.For(s.id, topic.SendGraph), s.handleSendGraph)
	if err != nil {
		return err //nolint:wrapcheck
	}

	s.unsubscribe = append(s.unsubscribe, unregister)

	return nil
}

func (s *Signal) forwardControl(ctx context.Context, channel string, sub <-chan bus.Message) {
	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}

			s.push(ctx, inboundEvent{kind: evControl, channel: channel, payload: msg.Payload})
		case <-ctx.Done():
			return
		}
	}
}

func (s *Signal) forwardUpstreamValue(ctx context.Context, upstreamID string, sub <-chan bus.Message) {
	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}

			s.push(ctx, inboundEvent{kind: evUpstreamValue, upstreamID: upstreamID, payload: msg.Payload})
		case <-ctx.Done():
			return
		}
	}
}

func (s *Signal) handleSendGraph(_ context.Context, _ []byte) ([]byte, error) {
	g := s.tracker.GetGraph()
	if g == nil {
		return []byte("null"), nil
	}

	return g.ToJSON() //nolint:wrapcheck
}

func (s *Signal) handle(ctx context.Context, ev inboundEvent) {
	switch ev.kind {
	case evDepsReady:
		s.onDepsReady(ctx, ev.graph)
	case evDepsFailed:
		s.logger.Warn("dependency gathering failed; signal will not become ready", "err", ev.err)
	case evControl:
		s.handleControl(ctx, ev.channel, ev.payload)
	case evUpstreamValue:
		s.handleUpstreamValue(ctx, ev.upstreamID, ev.payload)
	}
}

// onDepsReady subscribes to each direct upstream's value topic.
// Subscription registration is deferred until this point: any value
// updates a fast-starting upstream publishes before this runs are simply
// not seen, matching "no retry, holds its last value" semantics elsewhere.
func (s *Signal) onDepsReady(ctx context.Context, _ *graph.SignalGraph) {
	for _, upID := range s.tracker.GetDependencies() {
		sub, unsubscribe, err := s.b.Subscribe(ctx, topic.For(upID, topic.Value))
		if err != nil {
			s.logger.Warn("failed to subscribe to upstream", "upstream", upID, "err", err)

			continue
		}

		s.unsubscribe = append(s.unsubscribe, unsubscribe)

		go s.forwardUpstreamValue(ctx, upID, sub)
	}

	s.setState(Ready)
}

func (s *Signal) handleControl(ctx context.Context, channel string, payload []byte) {
	switch channel {
	case topic.Increment:
		s.updateValue(ctx, s.value.Load()+1, nil)
	case topic.Block:
		b, err := decodeBool(payload)
		if err != nil {
			s.logger.Warn("malformed block message", "err", err)

			return
		}

		s.blocked.Store(b)
	case topic.Glitches:
		b, err := decodeBool(payload)
		if err != nil {
			s.logger.Warn("malformed glitches message", "err", err)

			return
		}

		s.glitchAvoidance.Store(b)
	case topic.Print:
		s.logger.Info("signal value", "value", s.value.Load())
	case topic.PrintGraph:
		g := s.tracker.GetGraph()
		if g == nil {
			s.logger.Info("signal graph", "graph", nil)

			return
		}

		data, err := g.ToJSON()
		if err != nil {
			s.logger.Warn("failed to serialize graph for print", "err", err)

			return
		}

		s.logger.Info("signal graph", "graph", string(data))
	}
}

func (s *Signal) handleUpstreamValue(ctx context.Context, upstreamID string, payload []byte) {
	value, incomingChain, err := decodeValueMessage(payload)
	if err != nil {
		s.logger.Warn("malformed upstream value message", "upstream", upstreamID, "err", err)

		return
	}

	s.lastValues[upstreamID] = lastValue{chain: incomingChain, value: value}

	numDeps := s.tracker.GetNumberOfDependencies()

	if numDeps == 1 {
		s.updateValue(ctx, value, incomingChain)

		return
	}

	if len(s.lastValues) != numDeps {
		return
	}

	conflicts := 0
	if s.glitchAvoidance.Load() {
		var glitch bool

		glitch, conflicts = s.checkGlitch()
		if glitch {
			if s.metrics != nil {
				s.metrics.RecordUpdate(ctx, observability.UpdateStats{SignalID: s.id, Glitch: true, Conflicts: conflicts})
			}

			return
		}
	}

	result, ok := s.applyOperator()
	if !ok {
		return
	}

	s.updateValue(ctx, result, incomingChain)
}

func (s *Signal) applyOperator() (int64, bool) {
	if s.operator == nil {
		s.logger.Warn("fan-in update with no operator configured; treating as misconfiguration")

		return 0, false
	}

	deps := s.tracker.GetDependencies()
	if len(deps) < 2 {
		return 0, false
	}

	left := s.lastValues[deps[0]].value
	right := s.lastValues[deps[1]].value

	result, err := s.operator.Apply(left, right)
	if err != nil {
		s.logger.Warn("combine operator error", "operator", string(*s.operator), "err", err)

		return 0, false
	}

	return result, true
}

// checkGlitch runs the glitch-avoidance algorithm: it finds the diamond
// apexes in this signal's own graph, then checks whether any apex was
// observed by two upstreams at different event counters.
func (s *Signal) checkGlitch() (glitch bool, conflictsObserved int) {
	g := s.tracker.GetGraph()
	if g == nil {
		return false, 0
	}

	apexes := conflictApexes(g.AllPaths())
	seenCounter := make(map[string]int, len(apexes))

	for _, lv := range s.lastValues {
		for _, apex := range apexes {
			if !lv.chain.Contains(apex) {
				continue
			}

			counter := lv.chain.GetEventCounterFor(apex)

			prev, ok := seenCounter[apex]
			if !ok {
				seenCounter[apex] = counter

				continue
			}

			if prev != counter {
				glitch = true
				conflictsObserved++
			}
		}
	}

	return glitch, conflictsObserved
}

// conflictApexes returns the set of ids where two distinct root-to-leaf
// paths through a graph diverge: C = { id | exists p,q in P, p != q,
// id in p.GetConflicts(q) }.
func conflictApexes(paths []*chain.SignalChain) []string {
	seen := make(map[string]bool)

	for i, p := range paths {
		for j, q := range paths {
			if i == j {
				continue
			}

			for _, id := range p.GetConflicts(q) {
				seen[id] = true
			}
		}
	}

	apexes := make([]string, 0, len(seen))
	for id := range seen {
		apexes = append(apexes, id)
	}

	return apexes
}

// updateValue sets the value, logs it, and — unless blocked or not yet
// Ready — bumps the event counter and publishes a fresh (or extended) chain.
func (s *Signal) updateValue(ctx context.Context, newValue int64, incomingChain *chain.SignalChain) {
	start := time.Now()
	s.value.Store(newValue)
	s.recordHistory(newValue)

	s.logger.Info("value updated", "value", newValue)

	published := false

	defer func() {
		if s.metrics != nil {
			s.metrics.RecordUpdate(ctx, observability.UpdateStats{
				SignalID:  s.id,
				Duration:  time.Since(start),
				Published: published,
			})
		}
	}()

	if s.blocked.Load() || s.tracker.GetGraph() == nil {
		return
	}

	ctx, span := s.startSpan(ctx, "publish")
	defer span.End()

	s.eventCounter++

	var outChain *chain.SignalChain
	if incomingChain == nil {
		outChain = chain.New().Chain(s.id, s.eventCounter)
	} else {
		outChain = incomingChain.Clone().Chain(s.id, s.eventCounter)
	}

	data, err := encodeValueMessage(newValue, outChain)
	if err != nil {
		s.logger.Error("failed to encode value message", "err", err)
		observability.RecordSpanError(span, err, observability.ErrTypeInternal, observability.ErrSourceServer)

		return
	}

	if err := s.b.Publish(ctx, topic.For(s.id, topic.Value), data); err != nil {
		s.logger.Error("failed to publish value", "err", err)
		observability.RecordSpanError(span, err, observability.ErrTypeDependencyUnavailable, observability.ErrSourceDependency)

		return
	}

	published = true
}

func (s *Signal) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, "signal."+op, trace.WithAttributes(attribute.String("signal.id", s.id)))
}
