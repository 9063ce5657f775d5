package mcpserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	busmemory "github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
	"github.com/Sumatoshi-tech/signalrt/internal/command"
	"github.com/Sumatoshi-tech/signalrt/internal/mcpserver"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
)

func TestServer_ListToolNames(t *testing.T) {
	t.Parallel()

	cmds := command.New(busmemory.New(), signal.Deps{})
	srv := mcpserver.NewServer(cmds, mcpserver.ServerDeps{})

	names := srv.ListToolNames()
	assert.Len(t, names, 10)
	assert.Contains(t, names, mcpserver.ToolNameCreate)
	assert.Contains(t, names, mcpserver.ToolNameIncrement)
	assert.Contains(t, names, mcpserver.ToolNamePrintGraph)
	assert.Contains(t, names, mcpserver.ToolNameSpawn)
	assert.Contains(t, names, mcpserver.ToolNamePrintHistory)
}

func TestServer_InMemoryTransport_CreateAndIncrement(t *testing.T) {
	t.Parallel()

	cmds := command.New(busmemory.New(), signal.Deps{})
	srv := mcpserver.NewServer(cmds, mcpserver.ServerDeps{})

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	defer func() {
		_ = session.Close()
	}()

	createResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolNameCreate,
		Arguments: map[string]any{"id": "x", "initial_value": int64(0)},
	})
	require.NoError(t, err)
	require.False(t, createResult.IsError, "create tool call failed: %v", createResult.Content)

	incResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolNameIncrement,
		Arguments: map[string]any{"id": "x"},
	})
	require.NoError(t, err)
	require.False(t, incResult.IsError, "increment tool call failed: %v", incResult.Content)

	cancel()
	<-serverDone
}

func TestServer_InMemoryTransport_SpawnAndPrintHistory(t *testing.T) {
	t.Parallel()

	cmds := command.New(busmemory.New(), signal.Deps{})
	srv := mcpserver.NewServer(cmds, mcpserver.ServerDeps{})

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	defer func() {
		_ = session.Close()
	}()

	spawnResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolNameSpawn,
		Arguments: map[string]any{"document": `{"id":"x","initialValue":1}`},
	})
	require.NoError(t, err)
	require.False(t, spawnResult.IsError, "spawn tool call failed: %v", spawnResult.Content)

	incResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolNameIncrement,
		Arguments: map[string]any{"id": "x"},
	})
	require.NoError(t, err)
	require.False(t, incResult.IsError, "increment tool call failed: %v", incResult.Content)

	historyResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcpserver.ToolNamePrintHistory,
		Arguments: map[string]any{"id": "x"},
	})
	require.NoError(t, err)
	require.False(t, historyResult.IsError, "print_history tool call failed: %v", historyResult.Content)

	cancel()
	<-serverDone
}
