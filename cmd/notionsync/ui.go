package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	notionsync "github.com/notionsync/notionsync/internal/sync"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true).Width(18)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func renderAccent(s string) string { return accentStyle.Render(s) }
func renderPass(s string) string   { return passStyle.Render(s) }
func renderWarn(s string) string   { return warnStyle.Render(s) }
func renderFail(s string) string   { return failStyle.Render(s) }

// row is one label/value line of a box.
type row struct {
	label string
	value string
}

func renderBox(title string, rows []row) string {
	var b strings.Builder
	b.WriteString(renderAccent(title))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r.label), r.value))
	}
	return boxStyle.Render(b.String())
}

// printSummary renders the outcome of one pass.
func printSummary(w io.Writer, sum *notionsync.Summary) {
	title := "Sync pass"
	if sum.DryRun {
		title = "Sync pass (dry run)"
	}

	errored := fmt.Sprint(sum.Errored)
	if sum.Errored > 0 {
		errored = renderFail(errored)
	}
	cursor := "unchanged"
	if sum.CursorAdvanced {
		cursor = renderPass(sum.Cursor.Format(time.RFC3339))
	} else if !sum.Cursor.IsZero() {
		cursor = "unchanged (" + sum.Cursor.Format(time.RFC3339) + ")"
	}

	rows := []row{
		{"Pass", sum.PassID},
		{"Since", sum.Since.Format(time.RFC3339)},
		{"Fetched", fmt.Sprint(sum.Fetched)},
		{"Created", fmt.Sprint(sum.Created)},
		{"Updated", fmt.Sprint(sum.Updated)},
		{"Skipped unchanged", fmt.Sprint(sum.SkippedUnchanged)},
		{"Skipped missing", fmt.Sprint(sum.SkippedMissing)},
	}
	if sum.DryRun {
		rows = append(rows, row{"Planned", fmt.Sprint(sum.Planned)})
	}
	rows = append(rows,
		row{"Errors", errored},
		row{"Cursor", cursor},
		row{"Duration", sum.Duration.Round(time.Millisecond).String()},
	)
	fmt.Fprintln(w, renderBox(title, rows))
}
