// Package tui implements the watch board using Bubbletea.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Jayphen/fragsync/internal/types"
)

// Color palette
var (
	ColorCyan    = lipgloss.Color("86")
	ColorGreen   = lipgloss.Color("78")
	ColorYellow  = lipgloss.Color("221")
	ColorRed     = lipgloss.Color("196")
	ColorMagenta = lipgloss.Color("213")
	ColorBlue    = lipgloss.Color("111")
	ColorGray    = lipgloss.Color("245")
	ColorDimGray = lipgloss.Color("239")
)

// Column header colors per status
var StatusColors = map[types.Status]lipgloss.Color{
	types.StatusTodo:       ColorBlue,
	types.StatusInProgress: ColorYellow,
	types.StatusDone:       ColorGreen,
	types.StatusArchived:   ColorGray,
}

// Priority marker colors
var PriorityColors = map[types.Priority]lipgloss.Color{
	types.PriorityLow:    ColorDimGray,
	types.PriorityMedium: ColorGray,
	types.PriorityHigh:   ColorYellow,
	types.PriorityUrgent: ColorRed,
}

// Common styles
var (
	// Title style
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	// Subtitle/dim text
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	// Selected item style
	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	// Dim text style
	DimStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	// Border box style
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(1, 2)

	// Tracker key on a card
	TrackerKeyStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	StatusMsgStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)
)

// Card indicators
const (
	IndicatorSelected = "❯"
	IndicatorPriority = "●"
	IndicatorLinked   = "⇄"
)

// GetStatusStyle returns the column header style for a status.
func GetStatusStyle(status types.Status) lipgloss.Style {
	color, ok := StatusColors[status]
	if !ok {
		color = ColorGray
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

// GetPriorityStyle returns the marker style for a priority.
func GetPriorityStyle(priority types.Priority) lipgloss.Style {
	color, ok := PriorityColors[priority]
	if !ok {
		color = ColorGray
	}
	return lipgloss.NewStyle().Foreground(color)
}
