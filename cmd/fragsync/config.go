package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Jayphen/fragsync/internal/config"
	"github.com/Jayphen/fragsync/internal/redis"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Manage fragsync configuration files.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  `Display the current configuration values from all sources.`,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create example configuration file",
		Long: `Create an example configuration file at ~/.config/fragsync/config.yaml.

The generated file contains all available options with their default values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Long:  `Display the paths where configuration files are searched.`,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Workspace:")
	fmt.Fprintf(out, "    backend_url:        %s\n", valueOrDefault(cfg.Workspace.BackendURL, "(not set)"))
	fmt.Fprintf(out, "    api_token:          %s\n", maskSecret(cfg.Workspace.APIToken))
	fmt.Fprintf(out, "    id:                 %s\n", valueOrDefault(cfg.Workspace.ID, "(not set)"))
	fmt.Fprintf(out, "    task_fragment_type: %s\n", valueOrDefault(cfg.Workspace.TaskFragmentType, "(not set)"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  redis_url:           %s%s\n", valueOrDefault(cfg.RedisURL, "(not set)"), redisState(cfg.RedisURL))
	fmt.Fprintf(out, "  request_timeout:     %s\n", cfg.RequestTimeout)
	fmt.Fprintf(out, "  propagation_timeout: %s\n", cfg.PropagationTimeout)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Logging:")
	fmt.Fprintf(out, "    level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "    file:  %s\n", valueOrDefault(cfg.Logging.File, "(stderr)"))
	fmt.Fprintf(out, "    json:  %t\n", cfg.Logging.JSON)

	return nil
}

func redisState(url string) string {
	if url == "" {
		return ""
	}
	if redis.IsAvailable(url) {
		return " " + successStyle.Render("(reachable)")
	}
	return " " + errorStyle.Render("(unreachable)")
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	dir := config.Dir()
	if dir == "" {
		return fmt.Errorf("failed to get home directory")
	}

	configPath := filepath.Join(dir, "config.yaml")

	// Check if file exists
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.WriteExample(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at: %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Set workspace.backend_url and workspace.id, then run 'fragsync tasks list'.")
	fmt.Fprintln(out, "Run 'fragsync config show' to see current values.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration file search paths (in priority order):")
	fmt.Fprintln(out)

	paths := append(config.ConfigPaths(), config.TrackerCredentialsPath())
	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		if i == len(paths)-1 {
			fmt.Fprintf(out, "\nTracker credentials: %s (%s)\n", p, exists)
			continue
		}
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, p, exists)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Environment variables can override file settings.")
	fmt.Fprintln(out, "Supported env vars:")
	for _, v := range []string{
		"FRAGSYNC_BACKEND_URL",
		"FRAGSYNC_API_TOKEN",
		"FRAGSYNC_WORKSPACE",
		"FRAGSYNC_TASK_TYPE",
		"FRAGSYNC_REDIS_URL (or REDIS_URL)",
		"FRAGSYNC_REQUEST_TIMEOUT",
		"FRAGSYNC_PROPAGATION_TIMEOUT",
		"FRAGSYNC_LOG_LEVEL",
		"FRAGSYNC_LOG_FILE",
		"FRAGSYNC_JIRA_SITE",
		"FRAGSYNC_JIRA_EMAIL",
		"FRAGSYNC_JIRA_API_TOKEN",
	} {
		fmt.Fprintf(out, "  %s\n", v)
	}

	return nil
}
