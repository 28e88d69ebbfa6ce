package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/observability"
)

func newAlertsCmd(svc *Services) *cobra.Command {
	var slackURL string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show active alerts and warnings",
		Long: `Evaluate alert conditions against the event log and display any triggered alerts.

Alerts fire for tasks blocked too long, overdue human input, long reviews
and an oversized planned queue. With --slack-webhook the alerts are also
posted to Slack.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.AlertEngine == nil {
				return fmt.Errorf("alert engine not initialized")
			}

			alerts, err := svc.AlertEngine.Evaluate()
			if err != nil {
				return fmt.Errorf("evaluating alerts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				fmt.Fprintln(out, "No active alerts.")
			} else {
				fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
				for _, alert := range alerts {
					severity := strings.ToUpper(string(alert.Severity))
					fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
					fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
				}
			}

			if slackURL != "" && len(alerts) > 0 {
				notifier := observability.NewSlackNotifier(slackURL, nil)
				if err := notifier.Notify(cmd.Context(), alerts); err != nil {
					return fmt.Errorf("notifying slack: %w", err)
				}
				fmt.Fprintln(out, "Posted alerts to Slack.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&slackURL, "slack-webhook", "", "Slack incoming webhook URL to post alerts to")
	return cmd
}
