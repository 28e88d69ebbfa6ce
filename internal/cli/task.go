package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/core"
	"github.com/valter-silva-au/agentjobs/pkg/models"
	"gopkg.in/yaml.v3"
)

func newTaskCmd(svc *Services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect and move tasks through their lifecycle",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if svc.TaskMgr == nil {
				return fmt.Errorf("task manager not initialized")
			}
			return nil
		},
	}
	cmd.AddCommand(
		newTaskCreateCmd(svc),
		newTaskShowCmd(svc),
		newTaskListCmd(svc),
		newTaskSearchCmd(svc),
		newTaskNextCmd(svc),
		newTaskStatusCmd(svc),
		newTaskProgressCmd(svc),
		newTaskPromptCmd(svc),
		newTaskDeliverCmd(svc),
		newTaskPhaseCmd(svc),
		newTaskEditCmd(svc),
		newTaskArchiveCmd(svc),
	)
	return cmd
}

func newTaskCreateCmd(svc *Services) *cobra.Command {
	var (
		opts         core.CreateTaskOpts
		priority     string
		deliverables []string
		dependsOn    []string
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a planned task",
		Long: `Create a planned task with the given title.

The id is generated (task-001, task-002, ...) unless --id is given. The
starter prompt defaults to the description, or the title when there is no
description.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			opts.Priority = models.Priority(priority)
			for _, path := range deliverables {
				opts.Deliverables = append(opts.Deliverables, models.Deliverable{Path: path})
			}
			for _, id := range dependsOn {
				opts.Dependencies = append(opts.Dependencies, models.Dependency{TaskID: id, Type: models.DependsOn})
			}

			task, err := svc.TaskMgr.CreateTask(opts)
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created task %s\n", task.ID)
			fmt.Fprintf(out, "  Title:    %s\n", task.Title)
			fmt.Fprintf(out, "  Priority: %s\n", task.Priority)
			fmt.Fprintf(out, "  Category: %s\n", task.Category)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.ID, "id", "", "Explicit task id instead of a generated one")
	f.StringVarP(&opts.Description, "description", "d", "", "Task description")
	f.StringVar(&opts.HumanSummary, "summary", "", "One-line summary for humans")
	f.StringVarP(&priority, "priority", "p", "", "Priority: critical, high, medium or low (default medium)")
	f.StringVarP(&opts.Category, "category", "c", "", "Category (default general)")
	f.StringVar(&opts.AssignedTo, "assign", "", "Assignee")
	f.StringVar(&opts.EstimatedEffort, "effort", "", "Estimated effort, e.g. 2h")
	f.StringVar(&opts.StarterPrompt, "prompt", "", "Starter prompt for the agent")
	f.StringVar(&opts.Author, "author", defaultAuthor(), "Author of the initial status update")
	f.StringSliceVarP(&opts.Tags, "tag", "t", nil, "Tag (repeatable)")
	f.StringSliceVar(&deliverables, "deliverable", nil, "Deliverable path (repeatable)")
	f.StringSliceVar(&dependsOn, "depends-on", nil, "Id of a task this one depends on (repeatable)")
	return cmd
}

func newTaskShowCmd(svc *Services) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Print the full task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := svc.TaskMgr.GetTask(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), task)
			}
			data, err := yaml.Marshal(task)
			if err != nil {
				return fmt.Errorf("formatting task: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON instead of YAML")
	return cmd
}

func newTaskListCmd(svc *Services) *cobra.Command {
	var (
		statuses   []string
		priorities []string
		filter     core.TaskFilter
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered",
		Long: `List tasks grouped in lifecycle order.

Filters combine: --status in_progress --tag backend lists in-progress tasks
tagged backend. --status and --priority accept several values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = filter.Status[:0]
			for _, s := range statuses {
				status := models.TaskStatus(s)
				if !status.Valid() {
					return fmt.Errorf("invalid status %q", s)
				}
				filter.Status = append(filter.Status, status)
			}
			filter.Priority = filter.Priority[:0]
			for _, p := range priorities {
				priority := models.Priority(p)
				if !priority.Valid() {
					return fmt.Errorf("invalid priority %q", p)
				}
				filter.Priority = append(filter.Priority, priority)
			}

			tasks, err := svc.TaskMgr.ListTasks(filter)
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tasks)
			}
			printTaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&statuses, "status", "s", nil, "Status filter (repeatable)")
	f.StringSliceVarP(&priorities, "priority", "p", nil, "Priority filter (repeatable)")
	f.StringVarP(&filter.Category, "category", "c", "", "Category filter")
	f.StringVar(&filter.AssignedTo, "assigned", "", "Assignee filter")
	f.StringSliceVarP(&filter.Tags, "tag", "t", nil, "Only tasks with every given tag")
	f.BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTaskSearchCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find tasks whose title, description or tags contain query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := svc.TaskMgr.SearchTasks(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("searching tasks: %w", err)
			}
			printTaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
}

func newTaskNextCmd(svc *Services) *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the planned task that should be worked on next",
		Long: `Show the highest-priority planned task, oldest first within a priority.

The task is not claimed; move it to in_progress with "task status".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p *models.Priority
			if priority != "" {
				v := models.Priority(priority)
				p = &v
			}
			task, err := svc.TaskMgr.GetNextTask(p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if task == nil {
				fmt.Fprintln(out, "No planned tasks.")
				return nil
			}
			fmt.Fprintf(out, "%s  [%s]  %s\n", task.ID, task.Priority, task.Title)
			if task.Prompts.Starter != "" {
				fmt.Fprintf(out, "\n%s\n", task.Prompts.Starter)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Only consider this priority")
	return cmd
}

func newTaskStatusCmd(svc *Services) *cobra.Command {
	var author, summary, details string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task to a new status",
		Long: `Move a task to a new status and record why.

Valid statuses: planned, in_progress, waiting_for_human, blocked,
under_review, completed, archived. Completed and archived tasks cannot
change status.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.TaskStatus(args[1])
			if summary == "" {
				summary = fmt.Sprintf("Status changed to %s.", status)
			}
			task, err := svc.TaskMgr.UpdateStatus(args[0], status, author, summary, details)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", task.ID, task.Status)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&author, "author", defaultAuthor(), "Who made the change")
	f.StringVarP(&summary, "message", "m", "", "Why the status changed")
	f.StringVar(&details, "details", "", "Longer details")
	return cmd
}

func newTaskProgressCmd(svc *Services) *cobra.Command {
	var author, details string
	cmd := &cobra.Command{
		Use:   "progress <task-id> <summary>",
		Short: "Record a progress note without changing status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := svc.TaskMgr.AddProgressUpdate(args[0], author, args[1], details)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded progress on %s (%d updates)\n", task.ID, len(task.StatusUpdates))
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", defaultAuthor(), "Who made the note")
	cmd.Flags().StringVar(&details, "details", "", "Longer details")
	return cmd
}

func newTaskPromptCmd(svc *Services) *cobra.Command {
	var author, context string
	cmd := &cobra.Command{
		Use:   "prompt <task-id> [content]",
		Short: "Print the starter prompt, or add a follow-up prompt",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				prompt, err := svc.TaskMgr.GetStarterPrompt(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, prompt)
				return nil
			}
			task, err := svc.TaskMgr.AddFollowupPrompt(args[0], author, args[1], context)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Added follow-up prompt %d to %s\n", len(task.Prompts.Followups), task.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", defaultAuthor(), "Who wrote the prompt")
	cmd.Flags().StringVar(&context, "context", "", "Why the follow-up was needed")
	return cmd
}

func newTaskDeliverCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "deliver <task-id> <path>",
		Short: "Mark a deliverable as completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := svc.TaskMgr.MarkDeliverableComplete(args[0], args[1])
			if err != nil {
				return err
			}
			done := 0
			for _, d := range task.Deliverables {
				if d.Status == models.DeliverableCompleted {
					done++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deliverable %s completed (%d/%d on %s)\n", args[1], done, len(task.Deliverables), task.ID)
			return nil
		},
	}
}

func newTaskPhaseCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "phase <task-id> <phase-id> <status>",
		Short: "Set the status of one phase of a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := svc.TaskMgr.UpdatePhaseStatus(args[0], args[1], models.TaskStatus(args[2]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Phase %s of %s is now %s\n", args[1], task.ID, args[2])
			return nil
		},
	}
}

func newTaskEditCmd(svc *Services) *cobra.Command {
	var (
		title, description, summary, priority string
		category, assign, effort, author      string
		tags                                  []string
	)
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change task metadata without touching its status",
		Long: `Change task metadata. Only the flags given are applied; status and
history are never modified, so edits are allowed on completed tasks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			patch := core.TaskPatch{Author: author}
			if f.Changed("title") {
				patch.Title = &title
			}
			if f.Changed("description") {
				patch.Description = &description
			}
			if f.Changed("summary") {
				patch.HumanSummary = &summary
			}
			if f.Changed("priority") {
				p := models.Priority(priority)
				patch.Priority = &p
			}
			if f.Changed("category") {
				patch.Category = &category
			}
			if f.Changed("assign") {
				patch.AssignedTo = &assign
			}
			if f.Changed("effort") {
				patch.EstimatedEffort = &effort
			}
			if f.Changed("tag") {
				patch.Tags = &tags
			}

			task, err := svc.TaskMgr.UpdateTask(args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", task.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "New title")
	f.StringVarP(&description, "description", "d", "", "New description")
	f.StringVar(&summary, "summary", "", "New human summary")
	f.StringVarP(&priority, "priority", "p", "", "New priority")
	f.StringVarP(&category, "category", "c", "", "New category")
	f.StringVar(&assign, "assign", "", "New assignee (empty to unassign)")
	f.StringVar(&effort, "effort", "", "New effort estimate")
	f.StringSliceVarP(&tags, "tag", "t", nil, "Replace tags (repeatable)")
	f.StringVar(&author, "author", defaultAuthor(), "Who made the change")
	return cmd
}

func newTaskArchiveCmd(svc *Services) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "archive <task-id>",
		Short: "Archive a task",
		Long:  `Archive a task. Archived tasks stay in the store but can no longer change status.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := svc.TaskMgr.ArchiveTask(args[0], author)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", task.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", defaultAuthor(), "Who archived the task")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
