package signal_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busmemory "github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
	"github.com/Sumatoshi-tech/signalrt/internal/topic"
)

const waitTimeout = 2 * time.Second

type harness struct {
	t   *testing.T
	bus *busmemory.Bus
	ctx context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &harness{t: t, bus: busmemory.New(), ctx: ctx}
}

// spawn starts a signal with cfg and blocks until it reaches Ready.
func (h *harness) spawn(cfg signal.Config) *signal.Signal {
	h.t.Helper()

	s, err := signal.New(cfg, signal.Deps{Bus: h.bus})
	require.NoError(h.t, err)

	go func() {
		_ = s.Run(h.ctx)
	}()

	require.Eventually(h.t, func() bool {
		return s.State() == signal.Ready
	}, waitTimeout, time.Millisecond)

	return s
}

// subscribeValues returns a channel of decoded (value, lastID) pairs
// published on the given signal's value topic.
func (h *harness) subscribeValues(id string) <-chan valueMsg {
	h.t.Helper()

	ch, _, err := h.bus.Subscribe(h.ctx, topic.For(id, topic.Value))
	require.NoError(h.t, err)

	out := make(chan valueMsg, 64)

	go func() {
		for msg := range ch {
			var vm valueMsg

			require.NoError(h.t, json.Unmarshal(msg.Payload, &vm))
			out <- vm
		}
	}()

	return out
}

type valueMsg struct {
	Value int64 `json:"value"`
	Chain struct {
		Entries []struct {
			ID      string `json:"id"`
			Counter int    `json:"counter"`
		} `json:"entries"`
	} `json:"chain"`
}

func (v valueMsg) lastID() string {
	if len(v.Chain.Entries) == 0 {
		return ""
	}

	return v.Chain.Entries[len(v.Chain.Entries)-1].ID
}

func (h *harness) increment(id string) {
	h.t.Helper()

	require.NoError(h.t, h.bus.Publish(h.ctx, topic.For(id, topic.Increment), []byte("true")))
}

func (h *harness) block(id string, blocked bool) {
	h.t.Helper()

	body, err := json.Marshal(blocked)
	require.NoError(h.t, err)
	require.NoError(h.t, h.bus.Publish(h.ctx, topic.For(id, topic.Block), body))
}

func (h *harness) setGlitchAvoidance(id string, enabled bool) {
	h.t.Helper()

	body, err := json.Marshal(enabled)
	require.NoError(h.t, err)
	require.NoError(h.t, h.bus.Publish(h.ctx, topic.For(id, topic.Glitches), body))
}

func recvValue(t *testing.T, ch <-chan valueMsg) valueMsg {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for value")

		return valueMsg{}
	}
}

// Scenario 1: single increment.
func TestSingleIncrement(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.spawn(signal.Config{ID: "x"})

	values := h.subscribeValues("x")
	h.increment("x")

	v := recvValue(t, values)
	assert.Equal(t, int64(1), v.Value)
	assert.Equal(t, "x", v.lastID())
}

// Scenario 2: map propagation.
func TestMapPropagation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.spawn(signal.Config{ID: "x"})
	h.spawn(signal.Config{ID: "y", Dependencies: []string{"x"}})

	yValues := h.subscribeValues("y")
	h.increment("x")

	v := recvValue(t, yValues)
	assert.Equal(t, int64(1), v.Value)
}

// Scenario 3: simple combine. A combine signal only emits once it has
// received at least one update from every direct upstream; two independent
// leaves (no shared apex) each need one increment before the fan-in
// threshold is first met.
func TestSimpleCombine(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	initY := int64(1)
	op := signal.OpAdd

	h.spawn(signal.Config{ID: "x"})
	h.spawn(signal.Config{ID: "y", InitialValue: &initY})
	h.spawn(signal.Config{ID: "z", Dependencies: []string{"x", "y"}, Operator: &op})

	zValues := h.subscribeValues("z")
	h.increment("x")
	h.increment("y")

	v := recvValue(t, zValues)
	assert.Equal(t, int64(3), v.Value)
}

// Scenario 4: glitch-free diamond.
func TestGlitchFreeDiamond(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	op := signal.OpAdd

	h.spawn(signal.Config{ID: "x"})
	h.spawn(signal.Config{ID: "y", Dependencies: []string{"x"}})
	h.spawn(signal.Config{ID: "z", Dependencies: []string{"x", "y"}, Operator: &op})

	zValues := h.subscribeValues("z")

	// Let each increment propagate through both arms before sending the
	// next, so every round yields exactly one fan-in publication.
	for _, want := range []int64{2, 4, 6} {
		h.increment("x")

		v := recvValue(t, zValues)
		assert.Equal(t, want, v.Value)
	}
}

// Property: glitch-free sum — every value on z is even when avoidance is on.
func TestGlitchFreeSumAlwaysEven(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	op := signal.OpAdd

	h.spawn(signal.Config{ID: "x"})
	h.spawn(signal.Config{ID: "y", Dependencies: []string{"x"}})
	h.spawn(signal.Config{ID: "z", Dependencies: []string{"x", "y"}, Operator: &op})

	zValues := h.subscribeValues("z")

	for range 5 {
		h.increment("x")
	}

	// Under a racy schedule z may coalesce rounds whose counters never
	// align, but every value it does publish must be even, and the final
	// round always converges to 10.
	for {
		v := recvValue(t, zValues)
		assert.Zero(t, v.Value%2, "expected even value, got %d", v.Value)

		if v.Value == 10 {
			break
		}
	}
}

// Scenario 6: block.
func TestBlockSuppressesPublication(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.spawn(signal.Config{ID: "x"})

	values := h.subscribeValues("x")

	// block and increment travel on different topics with no cross-topic
	// ordering guarantee, so settle the block before incrementing.
	h.block("x", true)
	require.Eventually(t, s.Blocked, waitTimeout, time.Millisecond)

	h.increment("x")
	h.increment("x")

	initY := int64(1)
	h.spawn(signal.Config{ID: "y", InitialValue: &initY})

	select {
	case v := <-values:
		t.Fatalf("expected no value published after block, got %+v", v)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHistoryRecordsEveryComputedValue(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.spawn(signal.Config{ID: "x"})

	values := h.subscribeValues("x")

	h.increment("x")
	recvValue(t, values)

	h.block("x", true)
	require.Eventually(t, s.Blocked, waitTimeout, time.Millisecond)

	h.increment("x")

	require.Eventually(t, func() bool {
		return len(s.History()) == 2
	}, waitTimeout, time.Millisecond)

	history := s.History()
	assert.Equal(t, int64(1), history[0].Value)
	assert.Equal(t, int64(2), history[1].Value, "blocked update still computes and is recorded")
}

// Without avoidance: glitches can surface an odd value before convergence.
// This schedules updates with no settling time between them so the
// combine signal has a high chance of observing a stale pairing.
func TestWithoutAvoidanceCanSurfaceOddValue(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	op := signal.OpAdd

	h.spawn(signal.Config{ID: "x"})
	h.spawn(signal.Config{ID: "y", Dependencies: []string{"x"}})
	z := h.spawn(signal.Config{ID: "z", Dependencies: []string{"x", "y"}, Operator: &op})

	h.setGlitchAvoidance("z", false)
	require.Eventually(t, func() bool { return !z.GlitchAvoidance() }, waitTimeout, time.Millisecond)

	zValues := h.subscribeValues("z")

	for range 3 {
		h.increment("x")
	}

	sawOdd := false
	sawSix := false

	for !sawSix {
		v := recvValue(t, zValues)
		if v.Value%2 != 0 {
			sawOdd = true
		}

		if v.Value == 6 {
			sawSix = true
		}
	}

	// This is a liveness property of a racy schedule without glitch avoidance:
	// it is not guaranteed on every run because goroutine scheduling may
	// happen to fully settle x before y or z observe anything. The
	// glitch-free variant above is the safety property this test's sibling
	// exercises unconditionally.
	_ = sawOdd
}

func TestChainAppendMonotonic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.spawn(signal.Config{ID: "x"})

	values := h.subscribeValues("x")

	h.increment("x")
	h.increment("x")

	first := recvValue(t, values)
	second := recvValue(t, values)

	assert.Equal(t, "x", first.lastID())
	assert.Equal(t, "x", second.lastID())
	assert.Less(t, first.Chain.Entries[len(first.Chain.Entries)-1].Counter,
		second.Chain.Entries[len(second.Chain.Entries)-1].Counter)
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := signal.New(signal.Config{}, signal.Deps{})
	require.ErrorIs(t, err, signal.ErrEmptyID)

	_, err = signal.New(signal.Config{ID: "x", Dependencies: []string{"a", "b", "c"}}, signal.Deps{})
	require.ErrorIs(t, err, signal.ErrTooManyDependencies)

	_, err = signal.New(signal.Config{ID: "x", Dependencies: []string{"a", "b"}}, signal.Deps{})
	require.ErrorIs(t, err, signal.ErrMissingOperator)

	badOp := signal.CombineOp("MOD")
	_, err = signal.New(signal.Config{ID: "x", Dependencies: []string{"a", "b"}, Operator: &badOp}, signal.Deps{})
	require.ErrorIs(t, err, signal.ErrUnknownOperator)

	op := signal.OpAdd
	_, err = signal.New(signal.Config{ID: "x", Dependencies: []string{"a", "a"}, Operator: &op}, signal.Deps{})
	require.ErrorIs(t, err, signal.ErrDuplicateDependency)
}

func TestDivByZeroIsRuntimeSoft(t *testing.T) {
	t.Parallel()

	_, err := signal.OpDiv.Apply(4, 0)
	require.ErrorIs(t, err, signal.ErrDivByZero)
}
