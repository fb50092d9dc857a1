package main

import (
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import KEY",
		Short: "Import a tracker issue as a task",
		Long: `Import a Jira issue into the active workspace as a task.

Importing the same issue again returns the existing task instead of
creating a duplicate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(commandContext(cmd))
			defer cancel()

			task, err := a.svc.ImportIssue(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), task)
			}
			printSuccess(cmd.OutOrStdout(), "%s (%s)", task.Title, task.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}
