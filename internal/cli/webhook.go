package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

func newWebhookCmd(svc *Services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhook subscriptions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if svc.Webhooks == nil {
				return fmt.Errorf("webhook dispatcher not initialized")
			}
			return nil
		},
	}
	cmd.AddCommand(
		newWebhookCreateCmd(svc),
		newWebhookListCmd(svc),
		newWebhookDeleteCmd(svc),
		newWebhookTestCmd(svc),
	)
	return cmd
}

func newWebhookCreateCmd(svc *Services) *cobra.Command {
	var (
		events []string
		secret string
	)
	cmd := &cobra.Command{
		Use:   "create <url>",
		Short: "Subscribe a URL to task events",
		Long: `Subscribe a URL to task events.

Events: task.created, task.updated, task.status_changed, task.completed,
webhook.test. Deliveries carry an X-Hub-Signature-256 header computed with
the secret; a random secret is generated when none is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types := make([]models.EventType, len(events))
			for i, e := range events {
				types[i] = models.EventType(e)
			}
			sub, err := svc.Webhooks.CreateSubscription(args[0], types, secret)
			if err != nil {
				return fmt.Errorf("creating subscription: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created subscription %s\n", sub.ID)
			fmt.Fprintf(out, "  URL:    %s\n", sub.URL)
			fmt.Fprintf(out, "  Events: %s\n", joinEvents(sub.Events))
			fmt.Fprintf(out, "  Secret: %s\n", sub.Secret)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&events, "event", "e", nil, "Event type to receive (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (generated when empty)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func newWebhookListCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List webhook subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := svc.Webhooks.ListSubscriptions()
			if err != nil {
				return fmt.Errorf("listing subscriptions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No webhook subscriptions.")
				return nil
			}
			fmt.Fprintf(out, "%-16s %-8s %-20s %-40s %s\n", "ID", "ACTIVE", "LAST TRIGGERED", "URL", "EVENTS")
			for _, s := range subs {
				last := "never"
				if s.LastTriggered != nil {
					last = s.LastTriggered.UTC().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%-16s %-8t %-20s %-40s %s\n", s.ID, s.Active, last, s.URL, joinEvents(s.Events))
			}
			return nil
		},
	}
}

func newWebhookDeleteCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <subscription-id>",
		Short: "Delete a webhook subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.Webhooks.DeleteSubscription(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted subscription %s\n", args[0])
			return nil
		},
	}
}

func newWebhookTestCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "test <subscription-id>",
		Short: "Send a webhook.test event and report the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := svc.Webhooks.Test(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			if res.DeliveryID != "" {
				fmt.Fprintf(out, "Delivery %s to %s: status %d in %s\n",
					res.DeliveryID, res.SubscriptionID, res.StatusCode, res.Duration.Round(time.Millisecond))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Test delivery succeeded.")
			return nil
		},
	}
}

func joinEvents(events []models.EventType) string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = string(e)
	}
	return strings.Join(names, ",")
}
