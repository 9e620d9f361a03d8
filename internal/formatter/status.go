package formatter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/joshbrooks/viewedmodels/internal/runner"
)

// StatusFormatter renders view statuses as a table
type StatusFormatter struct {
	writer io.Writer
	now    time.Time
}

// NewStatusFormatter creates a status table writer. Ages are relative to now.
func NewStatusFormatter(w io.Writer, now time.Time) *StatusFormatter {
	return &StatusFormatter{writer: w, now: now}
}

// Format writes one row per view and a footer with totals
func (f *StatusFormatter) Format(statuses []runner.ViewStatus) error {
	t := table.NewWriter()
	t.SetOutputMirror(f.writer)
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)

	t.AppendHeader(table.Row{"#", "View", "Kind", "App", "State", "Missing Fields", "Last Updated"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignCenter},
	})

	current := 0
	for i, st := range statuses {
		kind := "view"
		if st.Materialized {
			kind = "materialized"
		}

		state := stateOf(st)
		if state == "current" {
			current++
		}

		updated := "-"
		if !st.LastUpdated.IsZero() {
			updated = humanize.RelTime(st.LastUpdated, f.now, "ago", "from now")
		}

		t.AppendRow(table.Row{i + 1, st.Name, kind, st.App, state, strings.Join(st.MissingFields, ", "), updated})
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d views", len(statuses)), "", "",
		fmt.Sprintf("%d current", current), "", ""})

	t.Render()
	return nil
}

func stateOf(st runner.ViewStatus) string {
	switch {
	case !st.Exists:
		return "missing"
	case !st.KindMatches:
		return "wrong kind"
	case len(st.MissingFields) > 0:
		return "drifted"
	case st.Current:
		return "current"
	case st.LastUpdated.IsZero():
		return "unstamped"
	default:
		return "stale"
	}
}
