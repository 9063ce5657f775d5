package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/signalrt/internal/bus"
	"github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
)

func TestPublishSubscribeFIFO(t *testing.T) {
	t.Parallel()

	b := memory.New()
	ctx := context.Background()

	ch, unsubscribe, err := b.Subscribe(ctx, "signals.x.value")
	require.NoError(t, err)

	defer unsubscribe()

	for i := range 5 {
		require.NoError(t, b.Publish(ctx, "signals.x.value", []byte{byte(i)}))
	}

	for i := range 5 {
		select {
		case msg := <-ch:
			assert.Equal(t, []byte{byte(i)}, msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestRequestReply(t *testing.T) {
	t.Parallel()

	b := memory.New()
	ctx := context.Background()

	unregister, err := b.HandleRequests(ctx, "signals.x.sendGraph", func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte(`{"id":"x","dependencies":[]}`), nil
	})
	require.NoError(t, err)

	defer unregister()

	reply, err := b.Request(ctx, "signals.x.sendGraph", nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","dependencies":[]}`, string(reply))
}

func TestRequestTimeoutWithNoHandler(t *testing.T) {
	t.Parallel()

	b := memory.New()
	ctx := context.Background()

	_, err := b.Request(ctx, "signals.ghost.sendGraph", nil, 10*time.Millisecond)
	require.ErrorIs(t, err, bus.ErrRequestTimeout)
}

func TestRequestWaitsForLateHandlerRegistration(t *testing.T) {
	t.Parallel()

	b := memory.New()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)

		_, err := b.HandleRequests(ctx, "signals.x.sendGraph", func(_ context.Context, _ []byte) ([]byte, error) {
			return []byte(`{"id":"x","dependencies":[]}`), nil
		})
		assert.NoError(t, err)
	}()

	reply, err := b.Request(ctx, "signals.x.sendGraph", nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","dependencies":[]}`, string(reply))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := memory.New()
	ctx := context.Background()

	ch, unsubscribe, err := b.Subscribe(ctx, "signals.x.value")
	require.NoError(t, err)

	unsubscribe()

	require.NoError(t, b.Publish(ctx, "signals.x.value", []byte("ignored")))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
