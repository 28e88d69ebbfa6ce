package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/core"
)

func newInitCmd(svc *Services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a directory for agentjobs",
		Long: `Write .agentjobs.yaml with the default settings, create the tasks
directory and add the event log and id counter files to .gitignore.

Safe to run again: files that already exist are skipped and not
overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.ProjectInit == nil {
				return fmt.Errorf("project initializer not initialized")
			}

			basePath := "."
			if len(args) > 0 {
				basePath = args[0]
			}
			absPath, err := filepath.Abs(basePath)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			prefix, _ := cmd.Flags().GetString("prefix")
			tasksDir, _ := cmd.Flags().GetString("tasks-dir")

			result, err := svc.ProjectInit.Init(core.InitConfig{
				BasePath: absPath,
				TasksDir: tasksDir,
				Prefix:   prefix,
			})
			if err != nil {
				return fmt.Errorf("initializing project: %w", err)
			}

			out := cmd.OutOrStdout()
			printPaths(out, "Created:", absPath, result.Created)
			printPaths(out, "Updated:", absPath, result.Updated)
			printPaths(out, "Skipped (already exist):", absPath, result.Skipped)
			fmt.Fprintf(out, "\nagentjobs initialized at %s\n", absPath)
			return nil
		},
	}
	cmd.Flags().String("prefix", "task", "Task ID prefix")
	cmd.Flags().String("tasks-dir", "tasks", "Directory holding task documents")
	return cmd
}

func printPaths(w io.Writer, heading, base string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintln(w, heading)
	for _, p := range paths {
		rel, err := filepath.Rel(base, p)
		if err != nil {
			rel = p
		}
		fmt.Fprintf(w, "  %s\n", rel)
	}
}
