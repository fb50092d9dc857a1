package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Jayphen/fragsync/internal/tui"
	"github.com/Jayphen/fragsync/internal/types"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(tui.ColorGreen)
	errorStyle   = lipgloss.NewStyle().Foreground(tui.ColorRed).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorGray)
	labelStyle   = tui.DimStyle.Width(12)
)

const titleWidth = 48

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, successStyle.Render("✓ ")+fmt.Sprintf(format, args...))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTaskTable prints one row per task.
func printTaskTable(w io.Writer, tasks []types.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, tui.DimStyle.Render("No tasks"))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-38s %-12s %-8s %-12s %s", "ID", "STATUS", "PRIORITY", "TRACKER", "TITLE")))
	for _, t := range tasks {
		status := tui.GetStatusStyle(t.Status).Render(fmt.Sprintf("%-12s", t.Status))
		priority := tui.GetPriorityStyle(t.Priority).Render(fmt.Sprintf("%-8s", t.Priority))
		tracker := tui.TrackerKeyStyle.Render(fmt.Sprintf("%-12s", t.TrackerKey))
		fmt.Fprintf(w, "%-38s %s %s %s %s\n", t.ID, status, priority, tracker, ansi.Truncate(t.Title, titleWidth, "…"))
	}
}

// printTask prints every field of a task.
func printTask(w io.Writer, t types.Task) {
	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintln(w, labelStyle.Render(label)+value)
	}

	fmt.Fprintln(w, tui.TitleStyle.Render(t.Title))
	row("ID", t.ID)
	row("Status", tui.GetStatusStyle(t.Status).Render(string(t.Status)))
	row("Priority", string(t.Priority))
	if t.IsLinked() {
		row("Tracker", tui.TrackerKeyStyle.Render(t.TrackerKey)+" "+t.TrackerURL)
	}
	row("Projects", strings.Join(t.Projects, ", "))
	row("Tags", strings.Join(t.Tags, ", "))
	row("Assignee", t.AssigneeID)
	if t.StartDate != nil {
		row("Start", t.StartDate.Format(dateLayout))
	}
	if t.EndDate != nil {
		row("End", t.EndDate.Format(dateLayout))
	}
	if !t.CreatedAt.IsZero() {
		row("Created", t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if !t.UpdatedAt.IsZero() {
		row("Updated", t.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}

	if t.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, t.Description)
	}

	if len(t.Comments) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Comments (%d)", len(t.Comments))))
		for _, c := range t.Comments {
			author := c.Author
			if author == "" {
				author = "unknown"
			}
			fmt.Fprintf(w, "  %s %s\n", tui.DimStyle.Render(c.CreatedAt.Local().Format("2006-01-02 15:04")+" "+author), c.Body)
		}
	}
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func maskSecret(val string) string {
	if val == "" {
		return "(not set)"
	}
	if len(val) <= 8 {
		return "***"
	}
	return val[:4] + "..." + val[len(val)-4:]
}
