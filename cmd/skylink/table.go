package main

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"skylink/internal/ipc"
)

// Protocol commands can carry long chat bodies; the status table clips them.
const pendingTextWidth = 48

// renderPendingTable lists in-flight commands oldest first, with their age
// relative to now.
func renderPendingTable(pending []ipc.PendingCommand, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Command", "Mode", "Age"})
	for _, p := range pending {
		mode := "posted"
		if p.Blocking {
			mode = "waiting"
		}
		age := "-"
		if !p.Since.IsZero() {
			age = now.Sub(p.Since).Round(time.Millisecond).String()
		}
		tw.AppendRow(table.Row{strconv.Itoa(p.ID), p.Text, mode, age})
	}
	tw.SortBy([]table.SortBy{{Name: "ID", Mode: table.AscNumeric}})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ID", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "Command", WidthMax: pendingTextWidth, WidthMaxEnforcer: text.Trim},
		{Name: "Age", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
