// Package main is the entry point for the fragsync CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jayphen/fragsync/internal/config"
	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

// Version is set at build time.
var Version = "dev"

func main() {
	// Initialize logging from config
	initLogging()

	if err := newRootCmd().Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fragsync",
		Short: "Keep workspace tasks in sync with your issue tracker",
		Long: `Fragsync manages the tasks stored as fragments in a workspace backend.

It imports Jira issues as tasks, lets you edit and move tasks locally, and
pushes status changes of linked tasks back to the tracker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newImportCmd(),
		newTasksCmd(),
		newTrackerCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// initLogging initializes the logger from config.
func initLogging() {
	cfg, err := config.Get()
	if err != nil {
		// If config fails, use defaults (console output)
		_ = logging.Init(nil)
		return
	}

	if err := logging.InitFromLogConfig(cfg.LogConfig()); err != nil {
		// Fall back to defaults on error
		_ = logging.Init(nil)
	}
}

// printError prints err to stderr, with a setup hint for missing configuration.
func printError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
	if errors.Is(err, types.ErrNotConfigured) {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "  Workspace settings: run 'fragsync config init' and edit the file")
		fmt.Fprintln(os.Stderr, "  Tracker credentials: run 'fragsync tracker login'")
	}
}
