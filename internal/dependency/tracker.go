// Package dependency implements DependencyTracker, the per-signal helper
// that resolves a signal's SignalGraph by asking each declared upstream for
// its own graph over the bus.
package dependency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/signalrt/internal/bus"
	"github.com/Sumatoshi-tech/signalrt/internal/graph"
	"github.com/Sumatoshi-tech/signalrt/internal/graphcache"
	"github.com/Sumatoshi-tech/signalrt/internal/observability"
	"github.com/Sumatoshi-tech/signalrt/internal/topic"
)

// DefaultGatherTimeout is the default per-upstream reply deadline used when
// a tracker is not configured with one.
const DefaultGatherTimeout = 5 * time.Second

// GraphCache is the shared, optional cache of resolved upstream SignalGraphs
// keyed by upstream id. A nil cache disables caching.
type GraphCache = graphcache.Cache[string, *graph.SignalGraph]

// Tracker gathers a signal's upstream SignalGraphs and assembles this
// signal's own SignalGraph in declared dependency order.
type Tracker struct {
	id           string
	dependencies []string
	b            bus.Bus
	timeout      time.Duration
	cache        *GraphCache
	metrics      *observability.SignalMetrics

	mu    sync.RWMutex
	graph *graph.SignalGraph
}

// New constructs a Tracker for signal id with the declared upstream ids in
// dependencies (possibly empty). cache and metrics may be nil.
func New(id string, dependencies []string, b bus.Bus, timeout time.Duration, cache *GraphCache, metrics *observability.SignalMetrics) *Tracker {
	if timeout <= 0 {
		timeout = DefaultGatherTimeout
	}

	deps := make([]string, len(dependencies))
	copy(deps, dependencies)

	return &Tracker{
		id:           id,
		dependencies: deps,
		b:            b,
		timeout:      timeout,
		cache:        cache,
		metrics:      metrics,
	}
}

// GetDependencies returns the direct upstream ids in declared order.
func (t *Tracker) GetDependencies() []string {
	return t.dependencies
}

// GetNumberOfDependencies returns len(GetDependencies()).
func (t *Tracker) GetNumberOfDependencies() int {
	return len(t.dependencies)
}

// GetGraph returns this signal's resolved SignalGraph, or nil if
// GatherDependencies has not yet completed successfully.
func (t *Tracker) GetGraph() *graph.SignalGraph {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.graph
}

type upstreamResult struct {
	index int
	g     *graph.SignalGraph
	err   error
}

// GatherDependencies resolves every declared upstream's SignalGraph via
// request/reply on signals.<upId>.sendGraph, assembles this signal's graph
// with upstreams placed in declared order (not reply arrival order), and
// invokes onDone with the result. If dependencies is empty, it builds the
// leaf graph immediately. Any upstream failing to reply within the
// configured timeout causes onDone to be invoked with an error and no
// partial graph is ever exposed via GetGraph.
func (t *Tracker) GatherDependencies(ctx context.Context, onDone func(*graph.SignalGraph, error)) {
	if len(t.dependencies) == 0 {
		leaf, err := graph.New(t.id)
		if err == nil {
			t.mu.Lock()
			t.graph = leaf
			t.mu.Unlock()
		}

		onDone(leaf, err)

		return
	}

	results := make([]*graph.SignalGraph, len(t.dependencies))

	resultCh := make(chan upstreamResult, len(t.dependencies))

	for i, upID := range t.dependencies {
		go t.resolveUpstream(ctx, i, upID, resultCh)
	}

	for range t.dependencies {
		res := <-resultCh
		if res.err != nil {
			onDone(nil, res.err)

			return
		}

		results[res.index] = res.g
	}

	assembled, err := graph.New(t.id, results...)
	if err != nil {
		onDone(nil, err)

		return
	}

	t.mu.Lock()
	t.graph = assembled
	t.mu.Unlock()

	onDone(assembled, nil)
}

func (t *Tracker) resolveUpstream(ctx context.Context, index int, upID string, resultCh chan<- upstreamResult) {
	if t.cache != nil {
		if cached, ok := t.cache.Get(upID); ok {
			t.metrics.RecordGraphCacheHit(ctx, upID)
			resultCh <- upstreamResult{index: index, g: cached}

			return
		}

		t.metrics.RecordGraphCacheMiss(ctx, upID)
	}

	reply, err := t.b.Request(ctx, topic.For(upID, topic.SendGraph), nil, t.timeout)
	if err != nil {
		resultCh <- upstreamResult{index: index, err: fmt.Errorf("dependency: gather %q: %w", upID, err)}

		return
	}

	if len(reply) == 0 || string(reply) == "null" {
		resultCh <- upstreamResult{index: index, err: fmt.Errorf("dependency: gather %q: upstream not ready", upID)}

		return
	}

	g, err := graph.FromJSON(reply)
	if err != nil {
		resultCh <- upstreamResult{index: index, err: fmt.Errorf("dependency: gather %q: %w", upID, err)}

		return
	}

	if t.cache != nil {
		t.cache.Put(upID, g)
	}

	resultCh <- upstreamResult{index: index, g: g}
}
