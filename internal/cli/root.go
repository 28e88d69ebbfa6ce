// Package cli implements the agentjobs command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/core"
	"github.com/valter-silva-au/agentjobs/internal/observability"
	"github.com/valter-silva-au/agentjobs/internal/webhooks"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// VersionInfo is injected via ldflags at build time.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// WebhookManager manages subscriptions and test deliveries.
type WebhookManager interface {
	CreateSubscription(url string, events []models.EventType, secret string) (*models.Subscription, error)
	ListSubscriptions() ([]models.Subscription, error)
	DeleteSubscription(id string) error
	Test(ctx context.Context, id string) (webhooks.DeliveryResult, error)
}

// Services are the components the commands operate on. Nil observability
// services disable the commands that need them.
type Services struct {
	TaskMgr     core.TaskManager
	Webhooks    WebhookManager
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
	ProjectInit core.ProjectInitializer
	// MetricsHandler serves the Prometheus exposition for mcp serve --metrics-addr.
	MetricsHandler http.Handler
	Logger         *slog.Logger
	Version        VersionInfo
}

// NewRootCmd builds the agentjobs command tree over svc.
func NewRootCmd(svc *Services) *cobra.Command {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	if svc.Version.Version == "" {
		svc.Version = VersionInfo{Version: "dev", Commit: "none", Date: "unknown"}
	}

	root := &cobra.Command{
		Use:   "agentjobs",
		Short: "Task lifecycle engine shared by humans and agents",
		Long: `agentjobs keeps a durable record of units of work that move through a
fixed lifecycle: planned, in_progress, waiting_for_human, blocked,
under_review, completed and archived.

Humans and agents create tasks, claim the next one, report progress and
change status. Every change is recorded in the task's history and
announced to webhook subscribers.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newInitCmd(svc),
		newTaskCmd(svc),
		newWebhookCmd(svc),
		newMetricsCmd(svc),
		newAlertsCmd(svc),
		newDashboardCmd(svc),
		newMCPCmd(svc),
		newVersionCmd(svc),
	)
	return root
}

func newVersionCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := svc.Version
			fmt.Fprintf(cmd.OutOrStdout(), "agentjobs %s\ncommit: %s\nbuilt:  %s\n", v.Version, v.Commit, v.Date)
		},
	}
}

// defaultAuthor is the author recorded for CLI changes when --author is not
// given.
func defaultAuthor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "human"
}
