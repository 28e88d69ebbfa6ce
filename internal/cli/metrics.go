package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/mcp"
)

func newMetricsCmd(svc *Services) *cobra.Command {
	var (
		asJSON bool
		since  string
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Display task and webhook metrics",
		Long: `Display aggregated metrics derived from the event log.

Metrics include task creation and completion counts, tasks by priority,
status transitions, updates by kind and webhook delivery outcomes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.MetricsCalc == nil {
				return fmt.Errorf("metrics calculator not initialized")
			}

			sinceTime, err := mcp.ParseSince(strings.TrimSpace(since), time.Now())
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}

			metrics, err := svc.MetricsCalc.Calculate(sinceTime)
			if err != nil {
				return fmt.Errorf("calculating metrics: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, metrics)
			}

			fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
			fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
			fmt.Fprintf(out, "  %-24s %d\n", "Tasks created:", metrics.TasksCreated)
			fmt.Fprintf(out, "  %-24s %d\n", "Tasks completed:", metrics.TasksCompleted)
			fmt.Fprintf(out, "  %-24s %d\n", "Webhooks delivered:", metrics.WebhooksDelivered)
			fmt.Fprintf(out, "  %-24s %d\n", "Webhooks failed:", metrics.WebhooksFailed)
			if metrics.WebhooksDelivered+metrics.WebhooksFailed > 0 {
				fmt.Fprintf(out, "  %-24s %.1f%%\n", "Delivery success:", 100*metrics.DeliverySuccessRate())
			}

			printCounts(out, "Tasks by priority:", metrics.TasksByPriority)
			printCounts(out, "Status transitions:", metrics.Transitions)
			printCounts(out, "Updates:", metrics.Updates)

			if metrics.OldestEvent != nil {
				fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
			}
			if metrics.NewestEvent != nil {
				fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output metrics as JSON")
	cmd.Flags().StringVar(&since, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	return cmd
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "\n  %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "    %-20s %d\n", k+":", counts[k])
	}
}
