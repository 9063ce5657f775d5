package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/signalrt/internal/chain"
)

func TestChainAppendAndQueries(t *testing.T) {
	t.Parallel()

	c := chain.New().Chain("x", 1).Chain("y", 2).Chain("z", 3)

	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Contains("y"))
	assert.False(t, c.Contains("q"))
	assert.Equal(t, "z", c.GetLast())
	assert.Equal(t, 2, c.GetEventCounterFor("y"))
	assert.Equal(t, chain.UnsetCounter, c.GetEventCounterFor("missing"))

	next, ok := c.NextSignal("x")
	require.True(t, ok)
	assert.Equal(t, "y", next)

	_, ok = c.NextSignal("z")
	assert.False(t, ok)

	_, ok = c.NextSignal("missing")
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	original := chain.New().Chain("x", 1)
	clone := original.Clone()
	clone.Chain("y", 2)

	assert.Equal(t, 1, original.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestGetConflictsSymmetricAndCorrect(t *testing.T) {
	t.Parallel()

	// Diamond: x -> y -> z and x -> z directly.
	// Path through y: x, y, z. Path direct: x, z.
	// At x: next is y on one chain, z on the other -> conflict at x.
	// z has no successor on either -> not a conflict.
	a := chain.New().Chain("x", 1).Chain("y", 1).Chain("z", 1)
	b := chain.New().Chain("x", 1).Chain("z", 1)

	confAB := a.GetConflicts(b)
	confBA := b.GetConflicts(a)

	assert.ElementsMatch(t, confAB, confBA)
	assert.ElementsMatch(t, []string{"x"}, confAB)
}

func TestGetConflictsAgreeingSuccessorsNotAConflict(t *testing.T) {
	t.Parallel()

	a := chain.New().Chain("x", 1).Chain("y", 1)
	b := chain.New().Chain("x", 2).Chain("y", 5)

	// Counters differ but GetConflicts ignores counters; successors of x
	// agree (both "y"), so there is no conflict.
	assert.Empty(t, a.GetConflicts(b))
}

func TestChainJSONRoundTrip(t *testing.T) {
	t.Parallel()

	original := chain.New().Chain("x", 1).Chain("y", -1)

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := chain.FromJSON(data)
	require.NoError(t, err)

	assert.True(t, original.Equal(restored))
}

func TestEmptyChainJSONRoundTrip(t *testing.T) {
	t.Parallel()

	original := chain.New()

	data, err := original.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":[]}`, string(data))

	restored, err := chain.FromJSON(data)
	require.NoError(t, err)
	assert.True(t, original.Equal(restored))
}
