package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/schaermu/cadsync/internal/eventlog"
	"github.com/schaermu/cadsync/internal/index"
	"github.com/schaermu/cadsync/internal/office"
	"github.com/schaermu/cadsync/internal/sync"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Row = text.Colors{text.Reset}
	return t
}

// printCompareTable renders pending and total files per category
func printCompareTable(w io.Writer, e *sync.Engine, res sync.CompareResult) {
	fmt.Fprintln(w, res.Message)
	if res.Fallback {
		fmt.Fprintln(w, text.FgYellow.Sprint("Central standards unreachable, compared against the local snapshot"))
	}

	t := newTable(w)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.AppendHeader(table.Row{text.Bold.Sprint("Category"), text.Bold.Sprint("Pending / Total"), text.Bold.Sprint("Up to date")})

	for _, cat := range index.Categories() {
		ratio := fmt.Sprintf("%.0f%%", e.Ratio(cat)*100)
		if e.Ratio(cat) < 1 {
			ratio = text.FgYellow.Sprint(ratio)
		}
		t.AppendRow(table.Row{cat.String(), e.FileCount(cat), ratio})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d files", res.Stats.Files), fmt.Sprintf("%d dirs failed", res.Stats.FailedDirs)})
	t.Render()
}

// printReport renders the outcome of a copy pass. Only skipped files are
// listed individually.
func printReport(w io.Writer, r *sync.Report) {
	fmt.Fprintf(w, "Copied %d files, skipped %d (%s)\n",
		r.Copied(), r.Skipped(), r.Finished.Sub(r.Started).Round(time.Millisecond))
	if r.Canceled {
		fmt.Fprintln(w, text.FgYellow.Sprint("Update canceled"))
	}
	if r.Skipped() == 0 {
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{text.Bold.Sprint("Skipped file"), text.Bold.Sprint("Reason")})
	for _, o := range r.Outcomes {
		if o.Result != sync.Skipped {
			continue
		}
		t.AppendRow(table.Row{o.Record.TargetPath, o.Reason})
	}
	t.Render()
}

// printOfficesTable renders the office list, marking the active office
func printOfficesTable(w io.Writer, list office.List, activeID string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"", text.Bold.Sprint("ID"), text.Bold.Sprint("Region"), text.Bold.Sprint("Office")})
	for _, o := range list {
		marker := ""
		if o.ID == activeID {
			marker = text.FgGreen.Sprint("*")
		}
		t.AppendRow(table.Row{marker, o.ID, o.Region.DisplayName, o.DisplayName})
	}
	t.Render()
}

// printEvents lists the warnings and errors raised during a pass
func printEvents(w io.Writer, rec *eventlog.Recorder) {
	if rec == nil {
		return
	}
	warnings, errs := rec.Count(eventlog.Warning), rec.Count(eventlog.Error)
	if warnings+errs == 0 {
		return
	}
	fmt.Fprintf(w, "%d warnings, %d errors\n", warnings, errs)
	for _, e := range rec.Entries() {
		switch e.Severity {
		case eventlog.Warning:
			fmt.Fprintln(w, text.FgYellow.Sprint("  "+e.Message))
		case eventlog.Error:
			fmt.Fprintln(w, text.FgRed.Sprint("  "+e.Message))
		}
	}
}
