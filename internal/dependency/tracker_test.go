package dependency_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busmemory "github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
	"github.com/Sumatoshi-tech/signalrt/internal/dependency"
	"github.com/Sumatoshi-tech/signalrt/internal/graph"
	"github.com/Sumatoshi-tech/signalrt/internal/topic"
)

func TestGatherDependenciesLeaf(t *testing.T) {
	t.Parallel()

	b := busmemory.New()
	tr := dependency.New("x", nil, b, 0, nil, nil)

	var got *graph.SignalGraph

	var gotErr error

	done := make(chan struct{})

	tr.GatherDependencies(context.Background(), func(g *graph.SignalGraph, err error) {
		got, gotErr = g, err
		close(done)
	})

	<-done

	require.NoError(t, gotErr)
	assert.Equal(t, "x", got.ID())
	assert.True(t, got.IsLeaf())
	assert.Same(t, got, tr.GetGraph())
}

func TestGatherDependenciesDeclaredOrder(t *testing.T) {
	t.Parallel()

	b := busmemory.New()
	ctx := context.Background()

	registerLeafGraph(t, b, "left")
	registerLeafGraph(t, b, "right")

	tr := dependency.New("z", []string{"right", "left"}, b, time.Second, nil, nil)

	var got *graph.SignalGraph

	done := make(chan struct{})

	tr.GatherDependencies(ctx, func(g *graph.SignalGraph, err error) {
		require.NoError(t, err)
		got = g
		close(done)
	})

	<-done

	require.Len(t, got.Dependencies(), 2)
	assert.Equal(t, "right", got.Dependencies()[0].ID())
	assert.Equal(t, "left", got.Dependencies()[1].ID())
}

func TestGatherDependenciesTimesOutWithoutUpstream(t *testing.T) {
	t.Parallel()

	b := busmemory.New()
	tr := dependency.New("z", []string{"ghost"}, b, 20*time.Millisecond, nil, nil)

	var gotErr error

	done := make(chan struct{})

	tr.GatherDependencies(context.Background(), func(_ *graph.SignalGraph, err error) {
		gotErr = err
		close(done)
	})

	<-done

	require.Error(t, gotErr)
	assert.Nil(t, tr.GetGraph())
}

func registerLeafGraph(t *testing.T, b *busmemory.Bus, id string) {
	t.Helper()

	g := graph.MustNew(id)

	data, err := g.ToJSON()
	require.NoError(t, err)

	_, err = b.HandleRequests(context.Background(), topic.For(id, topic.SendGraph), func(_ context.Context, _ []byte) ([]byte, error) {
		return data, nil
	})
	require.NoError(t, err)
}
