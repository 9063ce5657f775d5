package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricUpdatesTotal     = "signalrt.signal.updates.total"
	metricPublishesTotal   = "signalrt.signal.publishes.total"
	metricGlitchesTotal    = "signalrt.signal.glitches_detected.total"
	metricConflictsTotal   = "signalrt.signal.conflicts_observed.total"
	metricUpdateDuration   = "signalrt.signal.update.duration.seconds"
	metricGraphCacheHits   = "signalrt.graph.cache.hits.total"
	metricGraphCacheMisses = "signalrt.graph.cache.misses.total"

	attrSignalID = "signal_id"
)

// SignalMetrics holds OTel instruments describing a Signal actor's steady-state
// behavior: how often it updates, how often the glitch check vetoes a fan-in,
// and how its dependency graph cache performs.
type SignalMetrics struct {
	updatesTotal     metric.Int64Counter
	publishesTotal   metric.Int64Counter
	glitchesTotal    metric.Int64Counter
	conflictsTotal   metric.Int64Counter
	updateDuration   metric.Float64Histogram
	graphCacheHits   metric.Int64Counter
	graphCacheMisses metric.Int64Counter
}

// UpdateStats describes a single handled value update, reported after the
// glitch check and (if applicable) publication have completed.
type UpdateStats struct {
	SignalID  string
	Duration  time.Duration
	Published bool
	Glitch    bool
	Conflicts int
}

// NewSignalMetrics creates signal metric instruments from the given meter.
func NewSignalMetrics(mt metric.Meter) (*SignalMetrics, error) {
	b := newMetricBuilder(mt)

	sm := &SignalMetrics{
		updatesTotal:     b.counter(metricUpdatesTotal, "Total upstream updates handled", "{update}"),
		publishesTotal:   b.counter(metricPublishesTotal, "Total value broadcasts published", "{publish}"),
		glitchesTotal:    b.counter(metricGlitchesTotal, "Total fan-in updates vetoed by the glitch check", "{glitch}"),
		conflictsTotal:   b.counter(metricConflictsTotal, "Total diamond-apex conflicts observed across upstream chains", "{conflict}"),
		updateDuration:   b.histogram(metricUpdateDuration, "Time to handle one upstream update", "s", durationBucketBoundaries...),
		graphCacheHits:   b.counter(metricGraphCacheHits, "SignalGraph cache hits during dependency gathering", "{hit}"),
		graphCacheMisses: b.counter(metricGraphCacheMisses, "SignalGraph cache misses during dependency gathering", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return sm, nil
}

// RecordUpdate records one handled upstream update. Safe to call on a nil receiver.
func (sm *SignalMetrics) RecordUpdate(ctx context.Context, stats UpdateStats) {
	if sm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrSignalID, stats.SignalID))

	sm.updatesTotal.Add(ctx, 1, attrs)
	sm.updateDuration.Record(ctx, stats.Duration.Seconds(), attrs)

	if stats.Published {
		sm.publishesTotal.Add(ctx, 1, attrs)
	}

	if stats.Glitch {
		sm.glitchesTotal.Add(ctx, 1, attrs)
	}

	if stats.Conflicts > 0 {
		sm.conflictsTotal.Add(ctx, int64(stats.Conflicts), attrs)
	}
}

// RecordGraphCacheHit records a SignalGraph cache hit for signalID. Safe on nil.
func (sm *SignalMetrics) RecordGraphCacheHit(ctx context.Context, signalID string) {
	if sm == nil {
		return
	}

	sm.graphCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSignalID, signalID)))
}

// RecordGraphCacheMiss records a SignalGraph cache miss for signalID. Safe on nil.
func (sm *SignalMetrics) RecordGraphCacheMiss(ctx context.Context, signalID string) {
	if sm == nil {
		return
	}

	sm.graphCacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSignalID, signalID)))
}
