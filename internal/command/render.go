package command

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/signalrt/internal/graph"
)

// FormatValue renders a signal's printed value for a terminal, coloring it
// red when the signal is blocked (the update still computes but is
// suppressed from publication) and green otherwise.
func FormatValue(id string, value int64, blocked bool) string {
	c := color.New(color.FgGreen)
	if blocked {
		c = color.New(color.FgRed)
	}

	return c.Sprintf("%s = %s", id, humanize.Comma(value))
}

// RenderGraph renders a SignalGraph as an indented ASCII tree, matching the
// .print.graph control topic's intent ("log the current graph") for the CLI
// and MCP print-graph tool.
func RenderGraph(g *graph.SignalGraph) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"depth", "signal"})

	appendGraphRows(tbl, g, 0)

	return tbl.Render()
}

func appendGraphRows(tbl table.Writer, g *graph.SignalGraph, depth int) {
	indent := ""
	for range depth {
		indent += "  "
	}

	tbl.AppendRow(table.Row{depth, indent + g.ID()})

	for _, dep := range g.Dependencies() {
		appendGraphRows(tbl, dep, depth+1)
	}
}

// ValueSample is one observed (eventCounter, value) pair for a signal,
// suitable for charting its history.
type ValueSample struct {
	EventCounter int
	Value        int64
}

// RenderValueHistoryChart renders samples as a self-contained HTML line
// chart, an operator-facing aid for diagnosing pre-convergence glitches
// (odd values that appear and disappear before a combine signal settles).
func RenderValueHistoryChart(id string, samples []ValueSample) (string, error) {
	labels := make([]string, len(samples))
	data := make([]opts.LineData, len(samples))

	for i, s := range samples {
		labels[i] = strconv.Itoa(s.EventCounter)
		data[i] = opts.LineData{Value: s.Value}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s value history", id)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(labels).AddSeries("value", data)

	var buf bytes.Buffer

	if err := line.Render(&buf); err != nil {
		return "", fmt.Errorf("command: render value history chart: %w", err)
	}

	return buf.String(), nil
}
