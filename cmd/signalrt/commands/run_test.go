package commands

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busmemory "github.com/Sumatoshi-tech/signalrt/internal/bus/memory"
	"github.com/Sumatoshi-tech/signalrt/internal/command"
	"github.com/Sumatoshi-tech/signalrt/internal/signal"
)

func TestRunScript_CreateIncrementPrint(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	cmds := command.New(busmemory.New(), signal.Deps{})

	script := strings.NewReader(strings.Join([]string{
		"# comment lines and blanks are ignored",
		"",
		"create x 0",
		"wait x",
		"increment x",
		"sleep 20ms",
		"print x",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, runScript(ctx, &out, cmds, script))
	assert.Contains(t, out.String(), "x = 1")
}

func TestRunScript_CombineDiamond(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	cmds := command.New(busmemory.New(), signal.Deps{})

	script := strings.NewReader(strings.Join([]string{
		"create x 0",
		"map y x",
		"combine z x y ADD",
		"wait z",
		"increment x",
		"sleep 50ms",
		"print z",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, runScript(ctx, &out, cmds, script))
	assert.Contains(t, out.String(), "z = 2")
}

func TestRunScript_SpawnDocument(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	cmds := command.New(busmemory.New(), signal.Deps{})

	script := strings.NewReader(strings.Join([]string{
		`spawn {"id":"x","initialValue":3}`,
		"wait x",
		"print x",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, runScript(ctx, &out, cmds, script))
	assert.Contains(t, out.String(), "x = 3")
}

func TestRunScript_PrintHistory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	cmds := command.New(busmemory.New(), signal.Deps{})

	outFile := t.TempDir() + "/history.html"

	script := strings.NewReader(strings.Join([]string{
		"create x 0",
		"wait x",
		"increment x",
		"sleep 20ms",
		"print-history x " + outFile,
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, runScript(ctx, &out, cmds, script))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "x value history")
}

func TestRunScript_UnknownDirective(t *testing.T) {
	t.Parallel()

	cmds := command.New(busmemory.New(), signal.Deps{})
	script := strings.NewReader("bogus x")

	var out bytes.Buffer
	err := runScript(context.Background(), &out, cmds, script)
	require.ErrorIs(t, err, ErrUnknownDirective)
}

func TestRunScript_MalformedDirective(t *testing.T) {
	t.Parallel()

	cmds := command.New(busmemory.New(), signal.Deps{})
	script := strings.NewReader("create")

	var out bytes.Buffer
	err := runScript(context.Background(), &out, cmds, script)
	require.ErrorIs(t, err, ErrBadDirective)
}

func TestRunCommand_PrintConfig(t *testing.T) {
	t.Parallel()

	scriptFile := t.TempDir() + "/empty.signalrt"
	require.NoError(t, os.WriteFile(scriptFile, []byte("\n"), 0o600))

	cmd := NewRunCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--print-config", scriptFile})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "gather_timeout_sec:")
	assert.Contains(t, out.String(), "subscriber_channel_size:")
}

func TestRunScript_PrintGraph(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	cmds := command.New(busmemory.New(), signal.Deps{})

	script := strings.NewReader(strings.Join([]string{
		"create x 0",
		"map y x",
		"wait y",
		"print-graph y",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, runScript(ctx, &out, cmds, script))
	assert.Contains(t, out.String(), "y")
	assert.Contains(t, out.String(), "x")
}
