package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Jayphen/fragsync/internal/types"
)

const (
	refreshInterval = 30 * time.Second
	requestTimeout  = 15 * time.Second
)

// Backend is the task service the board reads from and writes through.
type Backend interface {
	ListTasks(ctx context.Context) ([]types.Task, error)
	ImportIssue(ctx context.Context, key string) (types.Task, error)
	MoveTask(ctx context.Context, id string, status types.Status, boardOrder float64) (types.Task, error)
}

// Model is the Bubbletea model for the watch board.
type Model struct {
	// Data
	tasks         []types.Task
	selectedIndex int
	selectedID    string

	// UI state
	loading       bool
	err           error
	statusMessage string
	statusExpiry  time.Time
	importMode    bool
	importInput   textinput.Model
	importing     bool
	showArchived  bool
	width, height int
	version       string
	workspace     string

	// Components
	spinner spinner.Model

	// Dependencies
	backend Backend
	changes <-chan types.Change
}

// Messages
type (
	tasksMsg      []types.Task
	errMsg        error
	tickMsg       time.Time
	changeMsg     types.Change
	importDoneMsg struct {
		task types.Task
		err  error
	}
	moveDoneMsg struct {
		task types.Task
		err  error
	}
)

// NewModel creates a board over backend. changes, when non-nil, delivers
// change notifications that trigger a reload.
func NewModel(version, workspace string, backend Backend, changes <-chan types.Change) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorCyan)

	ti := textinput.New()
	ti.Placeholder = "PROJ-123"
	ti.CharLimit = 64
	ti.Width = 24

	return Model{
		version:     version,
		workspace:   workspace,
		loading:     true,
		spinner:     s,
		importInput: ti,
		backend:     backend,
		changes:     changes,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchTasks,
		m.tick(),
		m.waitForChange(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksMsg:
		m.tasks = msg
		m.loading = false
		m.err = nil
		m.restoreSelection()
		return m, nil

	case errMsg:
		m.err = msg
		m.loading = false
		return m, nil

	case changeMsg:
		return m, tea.Batch(m.fetchTasks, m.waitForChange())

	case tickMsg:
		if !m.statusExpiry.IsZero() && time.Now().After(m.statusExpiry) {
			m.statusMessage = ""
		}
		return m, tea.Batch(m.fetchTasks, m.tick())

	case importDoneMsg:
		m.importing = false
		if msg.err != nil {
			m.setStatus(describeError("Import failed", msg.err))
			return m, nil
		}
		m.selectedID = msg.task.ID
		m.setStatus(fmt.Sprintf("Imported %s", msg.task.Title))
		return m, m.fetchTasks

	case moveDoneMsg:
		if msg.err != nil {
			m.setStatus(describeError("Move failed", msg.err))
			return m, m.fetchTasks
		}
		m.selectedID = msg.task.ID
		m.setStatus(fmt.Sprintf("Moved to %s", msg.task.Status))
		return m, m.fetchTasks

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.importMode {
		var cmd tea.Cmd
		m.importInput, cmd = m.importInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.importMode {
		switch msg.String() {
		case "esc":
			m.importMode = false
			m.importInput.SetValue("")
			m.setStatus("Import cancelled")
			return m, nil
		case "enter":
			key := strings.ToUpper(strings.TrimSpace(m.importInput.Value()))
			m.importMode = false
			m.importInput.SetValue("")
			if key == "" {
				m.setStatus("Import cancelled")
				return m, nil
			}
			m.importing = true
			m.setStatus(fmt.Sprintf("Importing %s...", key))
			return m, m.importIssue(key)
		}
		var cmd tea.Cmd
		m.importInput, cmd = m.importInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
		m.rememberSelection()
		return m, nil

	case "down", "j":
		if m.selectedIndex < len(m.visibleTasks())-1 {
			m.selectedIndex++
		}
		m.rememberSelection()
		return m, nil

	case "right", "l":
		return m.moveSelected(1)

	case "left", "h":
		return m.moveSelected(-1)

	case "i":
		if m.importing {
			m.setStatus("Import already in progress")
			return m, nil
		}
		m.importMode = true
		m.importInput.Focus()
		return m, textinput.Blink

	case "a":
		m.showArchived = !m.showArchived
		m.restoreSelection()
		return m, nil

	case "r":
		return m, m.fetchTasks
	}

	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.importMode {
		b.WriteString(m.renderImportPrompt())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderBoard())
	b.WriteString("\n")
	b.WriteString(m.renderTaskDetail())

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return lipgloss.NewStyle().Padding(1).Render(b.String())
}

// Helper methods

func (m *Model) setStatus(msg string) {
	m.statusMessage = msg
	m.statusExpiry = time.Now().Add(5 * time.Second)
}

// columnStatuses returns the statuses shown as board columns.
func (m Model) columnStatuses() []types.Status {
	if m.showArchived {
		return types.ValidStatuses
	}
	out := make([]types.Status, 0, len(types.ValidStatuses))
	for _, s := range types.ValidStatuses {
		if s != types.StatusArchived {
			out = append(out, s)
		}
	}
	return out
}

// column returns the tasks with the given status in board order.
func (m Model) column(status types.Status) []types.Task {
	var out []types.Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BoardOrder != out[j].BoardOrder {
			return out[i].BoardOrder < out[j].BoardOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// visibleTasks returns the visible tasks column by column, the order j/k walks.
func (m Model) visibleTasks() []types.Task {
	var out []types.Task
	for _, s := range m.columnStatuses() {
		out = append(out, m.column(s)...)
	}
	return out
}

func (m Model) selectedTask() (types.Task, bool) {
	visible := m.visibleTasks()
	if m.selectedIndex >= 0 && m.selectedIndex < len(visible) {
		return visible[m.selectedIndex], true
	}
	return types.Task{}, false
}

func (m *Model) rememberSelection() {
	if t, ok := m.selectedTask(); ok {
		m.selectedID = t.ID
	}
}

// restoreSelection keeps the cursor on the same task across reloads.
func (m *Model) restoreSelection() {
	visible := m.visibleTasks()
	if m.selectedID != "" {
		for i, t := range visible {
			if t.ID == m.selectedID {
				m.selectedIndex = i
				return
			}
		}
	}
	if m.selectedIndex >= len(visible) {
		m.selectedIndex = len(visible) - 1
	}
	if m.selectedIndex < 0 {
		m.selectedIndex = 0
	}
	m.rememberSelection()
}

// moveSelected shifts the selected task delta columns along the status order,
// placing it at the bottom of the target column.
func (m Model) moveSelected(delta int) (tea.Model, tea.Cmd) {
	task, ok := m.selectedTask()
	if !ok {
		return m, nil
	}

	idx := statusIndex(task.Status) + delta
	if idx < 0 || idx >= len(types.ValidStatuses) {
		m.setStatus("Cannot move further")
		return m, nil
	}
	target := types.ValidStatuses[idx]
	if target == types.StatusArchived && !m.showArchived {
		m.showArchived = true
	}

	order := float64(len(m.column(target)))
	m.selectedID = task.ID
	return m, m.moveTask(task.ID, target, order)
}

func statusIndex(s types.Status) int {
	for i, v := range types.ValidStatuses {
		if v == s {
			return i
		}
	}
	return 0
}

// describeError turns a failed operation into a status line, with a hint
// for missing configuration.
func describeError(prefix string, err error) string {
	if errors.Is(err, types.ErrNotConfigured) {
		return prefix + ": not configured (run 'fragsync tracker login' or 'fragsync config init')"
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}

// Commands

func (m Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	changes := m.changes
	return func() tea.Msg {
		change, ok := <-changes
		if !ok {
			return nil
		}
		return changeMsg(change)
	}
}

func (m Model) fetchTasks() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tasks, err := m.backend.ListTasks(ctx)
	if err != nil {
		return errMsg(err)
	}
	return tasksMsg(tasks)
}

func (m Model) importIssue(key string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		task, err := backend.ImportIssue(ctx, key)
		return importDoneMsg{task: task, err: err}
	}
}

func (m Model) moveTask(id string, status types.Status, order float64) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		task, err := backend.MoveTask(ctx, id, status, order)
		return moveDoneMsg{task: task, err: err}
	}
}
