// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task lifecycle engine as tools for AI agents.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/agentjobs/internal/core"
	"github.com/valter-silva-au/agentjobs/internal/observability"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// Server wraps the engine and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	taskMgr     core.TaskManager
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be
// nil, in which case get_metrics and get_alerts report an error.
func NewServer(taskMgr core.TaskManager, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		taskMgr:     taskMgr,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "agentjobs", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio, blocking until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier, e.g. task-042"`
}

type listTasksInput struct {
	Status     string   `json:"status,omitempty" jsonschema:"filter by status (planned, in_progress, waiting_for_human, blocked, under_review, completed, archived)"`
	Priority   string   `json:"priority,omitempty" jsonschema:"filter by priority (critical, high, medium, low)"`
	Category   string   `json:"category,omitempty" jsonschema:"filter by category"`
	AssignedTo string   `json:"assigned_to,omitempty" jsonschema:"filter by assignee"`
	Tags       []string `json:"tags,omitempty" jsonschema:"only tasks carrying every tag"`
}

type taskSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	Category   string `json:"category"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Updated    string `json:"updated"`
}

type listTasksOutput struct {
	Tasks []taskSummary `json:"tasks"`
	Count int           `json:"count"`
}

type getNextTaskInput struct {
	Priority string `json:"priority,omitempty" jsonschema:"only consider planned tasks of this priority"`
}

// getNextTaskOutput wraps the record so an empty queue is a normal result.
// Task records are returned untyped so no output schema is derived for them.
type getNextTaskOutput struct {
	Found bool `json:"found"`
	Task  any  `json:"task,omitempty"`
}

type createTaskInput struct {
	Title           string   `json:"title" jsonschema:"short task title"`
	Description     string   `json:"description,omitempty"`
	HumanSummary    string   `json:"human_summary,omitempty"`
	Priority        string   `json:"priority,omitempty" jsonschema:"critical, high, medium (default) or low"`
	Category        string   `json:"category,omitempty"`
	AssignedTo      string   `json:"assigned_to,omitempty"`
	EstimatedEffort string   `json:"estimated_effort,omitempty"`
	StarterPrompt   string   `json:"starter_prompt,omitempty" jsonschema:"defaults to the description"`
	Author          string   `json:"author,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Deliverables    []string `json:"deliverables,omitempty" jsonschema:"deliverable paths"`
}

type updateTaskStatusInput struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status" jsonschema:"the new status"`
	Author  string `json:"author"`
	Summary string `json:"summary" jsonschema:"why the status changed"`
	Details string `json:"details,omitempty"`
}

type addProgressUpdateInput struct {
	TaskID  string `json:"task_id"`
	Author  string `json:"author"`
	Summary string `json:"summary"`
	Details string `json:"details,omitempty"`
}

type addFollowupPromptInput struct {
	TaskID  string `json:"task_id"`
	Author  string `json:"author"`
	Content string `json:"content"`
	Context string `json:"context,omitempty"`
}

type markDeliverableInput struct {
	TaskID string `json:"task_id"`
	Path   string `json:"path" jsonschema:"the deliverable path as recorded on the task"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated        int            `json:"tasks_created"`
	TasksCompleted      int            `json:"tasks_completed"`
	TasksByPriority     map[string]int `json:"tasks_by_priority"`
	Transitions         map[string]int `json:"transitions_to_status"`
	Updates             map[string]int `json:"updates_by_action"`
	WebhooksDelivered   int            `json:"webhooks_delivered"`
	WebhooksFailed      int            `json:"webhooks_failed"`
	DeliverySuccessRate float64        `json:"delivery_success_rate"`
	EventCount          int            `json:"event_count"`
	OldestEvent         string         `json:"oldest_event,omitempty"`
	NewestEvent         string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	TaskID      string `json:"task_id,omitempty"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get the full task record by id, including status history, prompts and deliverables.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List task summaries, optionally filtered by status, priority, category, assignee or tags.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_next_task",
		Description: "Return the highest priority, oldest planned task. Reports found=false when nothing is planned.",
	}, s.handleGetNextTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a planned task. Returns the stored record with its generated id.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task_status",
		Description: "Move a task to a new status and append a status update. Completed and archived tasks cannot change status.",
	}, s.handleUpdateTaskStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_progress_update",
		Description: "Append a progress note without changing the task's status.",
	}, s.handleAddProgressUpdate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_followup_prompt",
		Description: "Record a follow-up prompt for the agent working on a task.",
	}, s.handleAddFollowupPrompt)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "mark_deliverable_complete",
		Description: "Mark one of a task's deliverables as completed.",
	}, s.handleMarkDeliverable)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log, including task counts, transitions and webhook deliveries.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (blocked tasks, overdue human input, long reviews, planned queue size).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, any, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), nil, nil
	}

	task, err := s.taskMgr.GetTask(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), nil, nil
	}
	return nil, task, nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	filter := core.TaskFilter{
		Category:   input.Category,
		AssignedTo: input.AssignedTo,
		Tags:       input.Tags,
	}
	if input.Status != "" {
		status := models.TaskStatus(input.Status)
		if !status.Valid() {
			return errorResult(fmt.Sprintf("invalid status %q", input.Status)), listTasksOutput{}, nil
		}
		filter.Status = []models.TaskStatus{status}
	}
	if input.Priority != "" {
		p := models.Priority(input.Priority)
		if !p.Valid() {
			return errorResult(fmt.Sprintf("invalid priority %q", input.Priority)), listTasksOutput{}, nil
		}
		filter.Priority = []models.Priority{p}
	}

	tasks, err := s.taskMgr.ListTasks(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{
		Tasks: make([]taskSummary, len(tasks)),
		Count: len(tasks),
	}
	for i, t := range tasks {
		out.Tasks[i] = summarize(t)
	}
	return nil, out, nil
}

func (s *Server) handleGetNextTask(_ context.Context, _ *gomcp.CallToolRequest, input getNextTaskInput) (*gomcp.CallToolResult, getNextTaskOutput, error) {
	var priority *models.Priority
	if input.Priority != "" {
		p := models.Priority(input.Priority)
		if !p.Valid() {
			return errorResult(fmt.Sprintf("invalid priority %q", input.Priority)), getNextTaskOutput{}, nil
		}
		priority = &p
	}

	task, err := s.taskMgr.GetNextTask(priority)
	if err != nil {
		return errorResult(fmt.Sprintf("selecting next task: %s", err)), getNextTaskOutput{}, nil
	}
	if task == nil {
		return nil, getNextTaskOutput{}, nil
	}
	return nil, getNextTaskOutput{Found: true, Task: task}, nil
}

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, any, error) {
	deliverables := make([]models.Deliverable, len(input.Deliverables))
	for i, path := range input.Deliverables {
		deliverables[i] = models.Deliverable{Path: path}
	}

	task, err := s.taskMgr.CreateTask(core.CreateTaskOpts{
		Title:           input.Title,
		Description:     input.Description,
		HumanSummary:    input.HumanSummary,
		Priority:        models.Priority(input.Priority),
		Category:        input.Category,
		AssignedTo:      input.AssignedTo,
		EstimatedEffort: input.EstimatedEffort,
		StarterPrompt:   input.StarterPrompt,
		Author:          input.Author,
		Tags:            input.Tags,
		Deliverables:    deliverables,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), nil, nil
	}
	return nil, task, nil
}

func (s *Server) handleUpdateTaskStatus(_ context.Context, _ *gomcp.CallToolRequest, input updateTaskStatusInput) (*gomcp.CallToolResult, any, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), nil, nil
	}
	task, err := s.taskMgr.UpdateStatus(input.TaskID, models.TaskStatus(input.Status), input.Author, input.Summary, input.Details)
	if err != nil {
		return errorResult(describeError("updating status of "+input.TaskID, err)), nil, nil
	}
	return nil, task, nil
}

func (s *Server) handleAddProgressUpdate(_ context.Context, _ *gomcp.CallToolRequest, input addProgressUpdateInput) (*gomcp.CallToolResult, any, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), nil, nil
	}
	task, err := s.taskMgr.AddProgressUpdate(input.TaskID, input.Author, input.Summary, input.Details)
	if err != nil {
		return errorResult(describeError("adding progress to "+input.TaskID, err)), nil, nil
	}
	return nil, task, nil
}

func (s *Server) handleAddFollowupPrompt(_ context.Context, _ *gomcp.CallToolRequest, input addFollowupPromptInput) (*gomcp.CallToolResult, any, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), nil, nil
	}
	task, err := s.taskMgr.AddFollowupPrompt(input.TaskID, input.Author, input.Content, input.Context)
	if err != nil {
		return errorResult(describeError("adding follow-up prompt to "+input.TaskID, err)), nil, nil
	}
	return nil, task, nil
}

func (s *Server) handleMarkDeliverable(_ context.Context, _ *gomcp.CallToolRequest, input markDeliverableInput) (*gomcp.CallToolResult, any, error) {
	if input.TaskID == "" || input.Path == "" {
		return errorResult("task_id and path are required"), nil, nil
	}
	task, err := s.taskMgr.MarkDeliverableComplete(input.TaskID, input.Path)
	if err != nil {
		return errorResult(describeError("completing deliverable on "+input.TaskID, err)), nil, nil
	}
	return nil, task, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:        metrics.TasksCreated,
		TasksCompleted:      metrics.TasksCompleted,
		TasksByPriority:     metrics.TasksByPriority,
		Transitions:         metrics.Transitions,
		Updates:             metrics.Updates,
		WebhooksDelivered:   metrics.WebhooksDelivered,
		WebhooksFailed:      metrics.WebhooksFailed,
		DeliverySuccessRate: metrics.DeliverySuccessRate(),
		EventCount:          metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			TaskID:      a.TaskID,
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func summarize(t *models.Task) taskSummary {
	return taskSummary{
		ID:         t.ID,
		Title:      t.Title,
		Status:     string(t.Status),
		Priority:   string(t.Priority),
		Category:   t.Category,
		AssignedTo: t.AssignedTo,
		Updated:    t.Updated.Format(time.RFC3339),
	}
}

// describeError prefixes err with a short classification so agents can tell
// a bad request from a missing task.
func describeError(action string, err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fmt.Sprintf("not found: %s: %s", action, err)
	case errors.Is(err, models.ErrInvalidTransition):
		return fmt.Sprintf("invalid transition: %s: %s", action, err)
	case errors.Is(err, models.ErrValidation):
		return fmt.Sprintf("invalid request: %s: %s", action, err)
	default:
		return fmt.Sprintf("%s: %s", action, err)
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		TasksByPriority: make(map[string]int),
		Transitions:     make(map[string]int),
		Updates:         make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration like "7d", "30d", or "24h" into the
// corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	return ParseSince(s, time.Now())
}

// ParseSince is parseSince against an explicit now. Shared with the CLI.
func ParseSince(s string, now time.Time) (time.Time, error) {
	now = now.UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
