package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Jayphen/fragsync/internal/config"
	"github.com/Jayphen/fragsync/internal/jira"
	"github.com/Jayphen/fragsync/internal/statusmap"
	"github.com/Jayphen/fragsync/internal/types"
)

func newTrackerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Manage the issue tracker connection",
		Long:  `Store, inspect and remove the Jira credentials used for imports and status updates.`,
	}

	cmd.AddCommand(
		newTrackerLoginCmd(),
		newTrackerLogoutCmd(),
		newTrackerStatusCmd(),
		newTrackerTransitionsCmd(),
	)

	return cmd
}

func newTrackerLoginCmd() *cobra.Command {
	var creds config.TrackerCredentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store tracker credentials",
		Long: `Store the Jira site, account email and API token.

Values not given as flags are prompted for. The token is read without echo
when stdin is a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var err error
			if creds.Site == "" {
				if creds.Site, err = prompt(in, out, "Jira site (e.g. acme or acme.atlassian.net): "); err != nil {
					return err
				}
			}
			if creds.Email == "" {
				if creds.Email, err = prompt(in, out, "Account email: "); err != nil {
					return err
				}
			}
			if creds.APIToken == "" {
				if creds.APIToken, err = promptSecret(in, out, "API token: "); err != nil {
					return err
				}
			}

			creds.Site = strings.TrimSpace(creds.Site)
			creds.Email = strings.TrimSpace(creds.Email)
			if !creds.IsComplete() {
				return fmt.Errorf("site, email and API token are all required")
			}

			if err := config.SaveTrackerCredentials(creds); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			site := jira.Config{Site: creds.Site}.BaseURL()
			printSuccess(out, "Logged in to %s as %s", site, creds.Email)
			fmt.Fprintf(out, "  Credentials stored in %s\n", config.TrackerCredentialsPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.Site, "site", "", "Jira site name, host or URL")
	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.APIToken, "token", "", "API token")

	return cmd
}

func newTrackerLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tracker credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearTrackerCredentials(); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			printSuccess(cmd.OutOrStdout(), "Tracker credentials removed")
			return nil
		},
	}
}

func newTrackerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tracker connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := config.LoadTrackerCredentials()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			state := successStyle.Render("configured")
			if !creds.IsComplete() {
				state = errorStyle.Render("not configured")
			}
			fmt.Fprintf(out, "Tracker: %s\n\n", state)

			site := "(not set)"
			if creds.Site != "" {
				site = jira.Config{Site: creds.Site}.BaseURL()
			}
			fmt.Fprintf(out, "  site:      %s\n", site)
			fmt.Fprintf(out, "  email:     %s\n", valueOrDefault(creds.Email, "(not set)"))
			fmt.Fprintf(out, "  api_token: %s\n", maskSecret(creds.APIToken))
			fmt.Fprintf(out, "  file:      %s\n", config.TrackerCredentialsPath())
			return nil
		},
	}
}

func newTrackerTransitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions KEY",
		Short: "Show the transitions of an issue and how statuses map to them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Get()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			client, err := newTrackerClient(cfg)
			if err != nil {
				return err
			}

			key := strings.ToUpper(strings.TrimSpace(args[0]))
			transitions, err := client.ListTransitions(commandContext(cmd), key)
			if err != nil {
				return err
			}

			printTransitions(cmd.OutOrStdout(), key, transitions)
			return nil
		},
	}
}

// printTransitions lists the transitions and which one each task status would use.
func printTransitions(w io.Writer, key string, transitions []types.Transition) {
	fmt.Fprintf(w, "Transitions for %s:\n", key)
	if len(transitions) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, t := range transitions {
		fmt.Fprintf(w, "  %-6s %-24s → %s\n", t.ID, t.Name, t.TargetName())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Status mapping:")
	for _, s := range types.ValidStatuses {
		target := errorStyle.Render("no match")
		if t, ok := statusmap.SelectTransition(s, transitions); ok {
			target = fmt.Sprintf("%s (%s)", t.TargetName(), t.ID)
		}
		fmt.Fprintf(w, "  %-12s %s\n", s, target)
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptSecret(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, out, label)
	}
	fmt.Fprint(out, label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
