package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Jayphen/fragsync/internal/types"
)

const (
	defaultWidth   = 100
	minColumnWidth = 18
	columnGap      = 2
)

// renderHeader renders the application header.
func (m Model) renderHeader() string {
	title := TitleStyle.Render("Fragsync Board")
	version := ""
	if m.version != "" {
		version = " " + SubtitleStyle.Render("v"+m.version)
	}
	subtitle := SubtitleStyle.Render("Workspace " + m.workspace)
	if m.workspace == "" {
		subtitle = SubtitleStyle.Render("No workspace configured")
	}

	return title + version + "\n" + subtitle
}

// renderImportPrompt renders the issue key input dialog.
func (m Model) renderImportPrompt() string {
	var b strings.Builder

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorCyan).
		Padding(1, 2)

	titleStyle := lipgloss.NewStyle().Foreground(ColorCyan)
	b.WriteString(titleStyle.Render("Import a tracker issue"))
	b.WriteString("\n\n")
	b.WriteString(DimStyle.Render("Key: "))
	b.WriteString(m.importInput.View())
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("Enter to import, Esc to cancel"))

	return style.Render(b.String())
}

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	// Padding(1) on both sides
	if w := m.width - 2; w > 0 {
		return w
	}
	return m.width
}

func (m Model) columnWidth() int {
	n := len(m.columnStatuses())
	w := (m.contentWidth() - columnGap*(n-1)) / n
	if w < minColumnWidth {
		w = minColumnWidth
	}
	return w
}

// renderBoard renders one column per status.
func (m Model) renderBoard() string {
	if m.loading && len(m.tasks) == 0 {
		return m.spinner.View() + " Loading tasks..."
	}

	if len(m.tasks) == 0 {
		style := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(1, 2).
			Foreground(ColorGray)
		return style.Render("No tasks in this workspace. Press i to import an issue.")
	}

	selected, _ := m.selectedTask()
	width := m.columnWidth()
	gap := strings.Repeat(" ", columnGap)

	var cols []string
	for i, status := range m.columnStatuses() {
		if i > 0 {
			cols = append(cols, gap)
		}
		cols = append(cols, m.renderColumn(status, width, selected.ID))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m Model) renderColumn(status types.Status, width int, selectedID string) string {
	tasks := m.column(status)

	var b strings.Builder
	header := fmt.Sprintf("%s (%d)", strings.ToUpper(string(status)), len(tasks))
	b.WriteString(GetStatusStyle(status).Render(header))
	b.WriteString("\n")
	b.WriteString(DimStyle.Render(strings.Repeat("─", width)))

	for _, t := range tasks {
		b.WriteString("\n")
		b.WriteString(renderCard(t, width, t.ID == selectedID))
	}

	return lipgloss.NewStyle().Width(width).Render(b.String())
}

// renderCard renders a task as two lines: title, then priority and tracker key.
func renderCard(t types.Task, width int, selected bool) string {
	prefix := "  "
	if selected {
		prefix = SelectedStyle.Render(IndicatorSelected) + " "
	}

	title := ansi.Truncate(t.Title, width-2, "…")
	if selected {
		title = SelectedStyle.Render(title)
	}

	meta := GetPriorityStyle(t.Priority).Render(IndicatorPriority) + " " + DimStyle.Render(string(t.Priority))
	if t.IsLinked() {
		meta += " " + TrackerKeyStyle.Render(IndicatorLinked+" "+t.TrackerKey)
	}

	return prefix + title + "\n  " + meta
}

// renderTaskDetail renders the selected task's fields below the board.
func (m Model) renderTaskDetail() string {
	t, ok := m.selectedTask()
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderDetailRow("Title", t.Title))
	b.WriteString(m.renderDetailRow("Status", string(t.Status)))
	b.WriteString(m.renderDetailRow("Priority", string(t.Priority)))
	if t.IsLinked() {
		b.WriteString(m.renderDetailRow("Tracker", TrackerKeyStyle.Render(t.TrackerKey)+" "+DimStyle.Render(t.TrackerURL)))
	}
	if len(t.Projects) > 0 {
		b.WriteString(m.renderDetailRow("Projects", strings.Join(t.Projects, ", ")))
	}
	if len(t.Tags) > 0 {
		b.WriteString(m.renderDetailRow("Tags", strings.Join(t.Tags, ", ")))
	}
	if t.AssigneeID != "" {
		b.WriteString(m.renderDetailRow("Assignee", t.AssigneeID))
	}
	if !t.UpdatedAt.IsZero() {
		b.WriteString(m.renderDetailRow("Updated", formatAge(t.UpdatedAt)))
	}

	return BoxStyle.Width(m.contentWidth() - 2).Render(strings.TrimRight(b.String(), "\n"))
}

// renderDetailRow renders a label: value row in the detail panel.
func (m Model) renderDetailRow(label, value string) string {
	labelStyle := DimStyle.Width(12)
	return labelStyle.Render(label) + value + "\n"
}

// renderStatusBar renders the bottom status bar.
func (m Model) renderStatusBar() string {
	linked := 0
	for _, t := range m.tasks {
		if t.IsLinked() {
			linked++
		}
	}
	counts := DimStyle.Render(fmt.Sprintf("%d tasks, %d linked", len(m.tasks), linked))

	help := []string{
		HelpKeyStyle.Render("↑↓/jk") + " nav",
		HelpKeyStyle.Render("←→/hl") + " move",
		HelpKeyStyle.Render("i") + " import",
		HelpKeyStyle.Render("a") + " archived",
		HelpKeyStyle.Render("r") + " refresh",
		HelpKeyStyle.Render("q") + " quit",
	}
	helpLine := DimStyle.Render(strings.Join(help, "  "))

	sep := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(ColorGray).
		PaddingTop(1)

	spacing := 30 - lipgloss.Width(counts)
	if spacing < 2 {
		spacing = 2
	}

	var b strings.Builder
	if m.statusMessage != "" {
		b.WriteString(StatusMsgStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}
	b.WriteString(counts)
	b.WriteString(strings.Repeat(" ", spacing))
	b.WriteString(helpLine)

	return sep.Render(b.String())
}

// formatAge formats a time as a human-readable age string.
func formatAge(t time.Time) string {
	d := time.Since(t)

	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
