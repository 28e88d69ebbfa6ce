package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/mcp"
)

func newMCPCmd(svc *Services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
		Long:  "Commands for running the agentjobs MCP (Model Context Protocol) server.",
	}
	cmd.AddCommand(newMCPServeCmd(svc))
	return cmd
}

func newMCPServeCmd(svc *Services) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentjobs MCP server on stdio",
		Long: `Start the agentjobs MCP server on stdio transport.

The server exposes the task lifecycle as MCP tools: get_task, list_tasks,
get_next_task, create_task, update_task_status, add_progress_update,
add_followup_prompt, mark_deliverable_complete, get_metrics, get_alerts.

With --metrics-addr, Prometheus metrics are served on /metrics at that
address while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.TaskMgr == nil {
				return fmt.Errorf("task manager not initialized")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if metricsAddr != "" {
				shutdown, err := serveMetrics(ctx, svc, metricsAddr)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			srv := mcp.NewServer(svc.TaskMgr, svc.MetricsCalc, svc.AlertEngine, svc.Version.Version)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("running MCP server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

// serveMetrics starts the /metrics listener and returns a function that
// stops it.
func serveMetrics(ctx context.Context, svc *Services, addr string) (func(), error) {
	if svc.MetricsHandler == nil {
		return nil, fmt.Errorf("metrics provider not initialized")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", svc.MetricsHandler)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.Logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	svc.Logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}
