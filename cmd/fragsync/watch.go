package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Jayphen/fragsync/internal/config"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/tui"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the live task board",
		Long: `Open an interactive board of the workspace's tasks.

The board reloads whenever tasks change, in this process or, with
redis_url configured, in any other fragsync process.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !hasTTY() {
		return fmt.Errorf("watch needs an interactive terminal")
	}

	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Console logs would draw over the board.
	if cfg.Logging.File == "" {
		logging.SetGlobal(logging.Nop())
	}

	a, err := newApp(commandContext(cmd), cfg, appOptions{subscribe: true})
	if err != nil {
		return err
	}
	defer a.Close()

	changes, unsubscribe := a.cache.Subscribe()
	defer unsubscribe()

	model := tui.NewModel(Version, a.workspace.ID, a.svc, changes)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running board: %w", err)
	}

	return nil
}

func hasTTY() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
