package telemetry

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// ConsoleSink renders each Progress as a single-row table, grounded on the
// teacher's core.PrintState table rendering (core/util.go) — a fresh
// table.Writer per report rather than one long-lived table that gets
// mutated, matching the teacher's own per-call construction.
type ConsoleSink struct {
	w table.Writer
}

// NewConsoleSink constructs a ConsoleSink writing to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Report implements Sink.
func (c *ConsoleSink) Report(p Progress) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetTitle("hipims progress")
	w.AppendHeader(table.Row{
		"sim time", "sim length", "wall time", "eta", "cells/s", "queue", "ok", "skipped",
	})
	w.AppendRow(table.Row{
		fmt.Sprintf("%.2f", p.SimulationTime),
		fmt.Sprintf("%.2f", p.SimulationLength),
		p.ProcessingTime.Round(1e6),
		p.ETA.Round(1e6),
		fmt.Sprintf("%.1f", p.CellsPerSecond),
		p.QueueAmount,
		p.BatchSuccessful,
		p.BatchSkipped,
	})
	fmt.Println(w.Render())
}
