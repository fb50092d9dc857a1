package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jayphen/fragsync/internal/tasksync"
	"github.com/Jayphen/fragsync/internal/types"
)

const dateLayout = "2006-01-02"

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and edit workspace tasks",
		Long:  `List, show, create, update, move and delete the tasks of the active workspace.`,
	}

	cmd.AddCommand(
		newTasksListCmd(),
		newTasksShowCmd(),
		newTasksAddCmd(),
		newTasksUpdateCmd(),
		newTasksMoveCmd(),
		newTasksDeleteCmd(),
	)

	return cmd
}

func newTasksListCmd() *cobra.Command {
	var (
		asJSON bool
		status string
		tag    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want types.Status
			if status != "" {
				s, err := parseStatus(status)
				if err != nil {
					return err
				}
				want = s
			}

			a, err := openApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(commandContext(cmd))
			defer cancel()

			tasks, err := a.svc.ListTasks(ctx)
			if err != nil {
				return err
			}
			tasks = filterTasks(tasks, want, tag)

			if asJSON {
				return printJSON(cmd.OutOrStdout(), tasks)
			}
			printTaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status (todo, in-progress, done, archived)")
	cmd.Flags().StringVar(&tag, "tag", "", "Only tasks with this tag")

	return cmd
}

func newTasksShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(commandContext(cmd))
			defer cancel()

			task, err := a.svc.GetTask(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), task)
			}
			printTask(cmd.OutOrStdout(), task)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}

func newTasksAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd, err := buildUpdate(cmd)
			if err != nil {
				return err
			}
			draft := types.Task{Title: strings.Join(args, " ")}
			applyDraft(&draft, upd)

			a, err := openApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(commandContext(cmd))
			defer cancel()

			task, err := a.svc.CreateTask(ctx, draft)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Created %s (%s)", task.Title, task.ID)
			return nil
		},
	}

	addTaskFlags(cmd)

	return cmd
}

func newTasksUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a task",
		Long: `Update fields of a task. Only the flags given are changed.

Changing the status of a task linked to the tracker also moves the
tracker issue to a matching status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd, err := buildUpdate(cmd)
			if err != nil {
				return err
			}
			return runUpdate(cmd, args[0], upd)
		},
	}

	addTaskFlags(cmd)
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("comment", "", "Append a comment")

	return cmd
}

func newTasksMoveCmd() *cobra.Command {
	var order float64

	cmd := &cobra.Command{
		Use:   "move ID STATUS",
		Short: "Move a task to another status column",
		Long: `Move a task to another status column, at the end of the column unless
--order is given. Linked tasks are moved on the tracker too.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatus(args[1])
			if err != nil {
				return err
			}

			a, err := openApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(commandContext(cmd))
			defer cancel()

			if !cmd.Flags().Changed("order") {
				tasks, err := a.svc.ListTasks(ctx)
				if err != nil {
					return err
				}
				order = float64(len(filterTasks(tasks, status, "")))
			}

			task, err := a.svc.MoveTask(ctx, args[0], status, order)
			if err != nil {
				return err
			}
			reportStatusChange(cmd, task)
			return nil
		},
	}

	cmd.Flags().Float64Var(&order, "order", 0, "Position within the target column")

	return cmd
}

func newTasksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(commandContext(cmd))
			defer cancel()

			if err := a.svc.DeleteTask(ctx, args[0]); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Deleted %s", args[0])
			return nil
		},
	}
}

func runUpdate(cmd *cobra.Command, id string, upd tasksync.TaskUpdate) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.requestContext(commandContext(cmd))
	defer cancel()

	task, err := a.svc.UpdateTask(ctx, id, upd)
	if err != nil {
		return err
	}
	if upd.Status != nil {
		reportStatusChange(cmd, task)
		return nil
	}
	printSuccess(cmd.OutOrStdout(), "Updated %s", task.Title)
	return nil
}

// reportStatusChange tells the user about the move; the tracker update
// finishes while the app shuts down.
func reportStatusChange(cmd *cobra.Command, task types.Task) {
	printSuccess(cmd.OutOrStdout(), "%s is now %s", task.Title, task.Status)
	if task.IsLinked() {
		fmt.Fprintf(cmd.OutOrStdout(), "  Updating %s on the tracker...\n", task.TrackerKey)
	}
}

func addTaskFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("description", "d", "", "Description")
	f.String("status", "", "Status (todo, in-progress, done, archived)")
	f.StringP("priority", "p", "", "Priority (low, medium, high, urgent)")
	f.StringSlice("tag", nil, "Tags (repeatable)")
	f.StringSlice("project", nil, "Projects (repeatable)")
	f.String("assignee", "", "Assignee user id")
	f.String("start", "", "Start date (YYYY-MM-DD)")
	f.String("end", "", "End date (YYYY-MM-DD)")
}

// buildUpdate turns the flags that were set on cmd into a TaskUpdate.
func buildUpdate(cmd *cobra.Command) (tasksync.TaskUpdate, error) {
	var upd tasksync.TaskUpdate
	f := cmd.Flags()

	str := func(name string) (*string, bool) {
		if f.Lookup(name) == nil || !f.Changed(name) {
			return nil, false
		}
		v, _ := f.GetString(name)
		return &v, true
	}
	slice := func(name string) *[]string {
		if f.Lookup(name) == nil || !f.Changed(name) {
			return nil
		}
		v, _ := f.GetStringSlice(name)
		return &v
	}

	upd.Title, _ = str("title")
	upd.Description, _ = str("description")
	upd.AssigneeID, _ = str("assignee")
	upd.Tags = slice("tag")
	upd.Projects = slice("project")

	if v, ok := str("status"); ok {
		s, err := parseStatus(*v)
		if err != nil {
			return upd, err
		}
		upd.Status = &s
	}
	if v, ok := str("priority"); ok {
		p, err := parsePriority(*v)
		if err != nil {
			return upd, err
		}
		upd.Priority = &p
	}
	if v, ok := str("start"); ok {
		d, err := parseDate(*v)
		if err != nil {
			return upd, fmt.Errorf("invalid --start: %w", err)
		}
		upd.StartDate = &d
	}
	if v, ok := str("end"); ok {
		d, err := parseDate(*v)
		if err != nil {
			return upd, fmt.Errorf("invalid --end: %w", err)
		}
		upd.EndDate = &d
	}
	if v, ok := str("comment"); ok && strings.TrimSpace(*v) != "" {
		upd.Comment = &types.Comment{Body: strings.TrimSpace(*v)}
	}

	return upd, nil
}

// applyDraft copies the fields of upd that a new task can carry.
func applyDraft(t *types.Task, upd tasksync.TaskUpdate) {
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.Tags != nil {
		t.Tags = *upd.Tags
	}
	if upd.Projects != nil {
		t.Projects = *upd.Projects
	}
	if upd.AssigneeID != nil {
		t.AssigneeID = *upd.AssigneeID
	}
	t.StartDate = upd.StartDate
	t.EndDate = upd.EndDate
}

func filterTasks(tasks []types.Task, status types.Status, tag string) []types.Task {
	var out []types.Task
	for _, t := range tasks {
		if status != "" && t.Status != status {
			continue
		}
		if tag != "" && !hasTag(t, tag) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func hasTag(t types.Task, tag string) bool {
	for _, v := range t.Tags {
		if strings.EqualFold(v, tag) {
			return true
		}
	}
	return false
}

// parseStatus accepts a status name in any case, with a space or no
// separator in place of the hyphen.
func parseStatus(s string) (types.Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "-")
	if norm == "inprogress" {
		norm = string(types.StatusInProgress)
	}
	status := types.Status(norm)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown status %q (want one of %s)", s, joinStatuses())
	}
	return status, nil
}

func parsePriority(s string) (types.Priority, error) {
	p := types.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown priority %q (want low, medium, high or urgent)", s)
	}
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
}

func joinStatuses() string {
	names := make([]string, len(types.ValidStatuses))
	for i, s := range types.ValidStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
