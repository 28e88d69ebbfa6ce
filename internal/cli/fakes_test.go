package cli

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/valter-silva-au/agentjobs/internal/core"
	"github.com/valter-silva-au/agentjobs/internal/observability"
	"github.com/valter-silva-au/agentjobs/internal/webhooks"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// fakeTaskManager records calls and serves tasks from memory. Methods the
// tests never reach fall through to the nil embedded interface.
type fakeTaskManager struct {
	core.TaskManager
	tasks      map[string]*models.Task
	created    []core.CreateTaskOpts
	lastFilter core.TaskFilter
	lastPatch  core.TaskPatch
	err        error
}

func newFakeTaskManager(tasks ...*models.Task) *fakeTaskManager {
	f := &fakeTaskManager{tasks: make(map[string]*models.Task)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTaskManager) get(id string) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return t, nil
}

func (f *fakeTaskManager) sorted() []*models.Task {
	out := make([]*models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeTaskManager) CreateTask(opts core.CreateTaskOpts) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, opts)
	t := &models.Task{
		ID:       fmt.Sprintf("task-%03d", len(f.tasks)+1),
		Title:    opts.Title,
		Status:   models.StatusPlanned,
		Priority: models.PriorityMedium,
		Category: "general",
	}
	if opts.Priority != "" {
		t.Priority = opts.Priority
	}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeTaskManager) GetTask(id string) (*models.Task, error) { return f.get(id) }

func (f *fakeTaskManager) ListTasks(filter core.TaskFilter) ([]*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastFilter = filter
	var out []*models.Task
	for _, t := range f.sorted() {
		if len(filter.Status) > 0 && !containsStatus(filter.Status, t.Status) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func containsStatus(list []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeTaskManager) SearchTasks(query string) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range f.sorted() {
		if bytes.Contains(bytes.ToLower([]byte(t.Title)), bytes.ToLower([]byte(query))) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTaskManager) GetNextTask(_ *models.Priority) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, t := range f.sorted() {
		if t.Status == models.StatusPlanned {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTaskManager) GetStarterPrompt(id string) (string, error) {
	t, err := f.get(id)
	if err != nil {
		return "", err
	}
	return t.Prompts.Starter, nil
}

func (f *fakeTaskManager) UpdateStatus(id string, status models.TaskStatus, author, summary, details string) (*models.Task, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("task %s is %s: %w", id, t.Status, models.ErrInvalidTransition)
	}
	t.Status = status
	t.StatusUpdates = append(t.StatusUpdates, models.StatusUpdate{Author: author, Status: status, Summary: summary, Details: details})
	return t, nil
}

func (f *fakeTaskManager) AddProgressUpdate(id, author, summary, details string) (*models.Task, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	t.StatusUpdates = append(t.StatusUpdates, models.StatusUpdate{Author: author, Status: t.Status, Summary: summary, Details: details})
	return t, nil
}

func (f *fakeTaskManager) AddFollowupPrompt(id, author, content, context string) (*models.Task, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	t.Prompts.Followups = append(t.Prompts.Followups, models.Prompt{Author: author, Content: content, Context: context})
	return t, nil
}

func (f *fakeTaskManager) MarkDeliverableComplete(id, path string) (*models.Task, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	d := t.Deliverable(path)
	if d == nil {
		return nil, fmt.Errorf("deliverable %s: %w", path, models.ErrNotFound)
	}
	d.Status = models.DeliverableCompleted
	return t, nil
}

func (f *fakeTaskManager) UpdateTask(id string, patch core.TaskPatch) (*models.Task, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	f.lastPatch = patch
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	return t, nil
}

func (f *fakeTaskManager) ArchiveTask(id, author string) (*models.Task, error) {
	return f.UpdateStatus(id, models.StatusArchived, author, "Task archived.", "")
}

type fakeWebhooks struct {
	subs    []models.Subscription
	result  webhooks.DeliveryResult
	testErr error
}

func (f *fakeWebhooks) CreateSubscription(url string, events []models.EventType, secret string) (*models.Subscription, error) {
	if secret == "" {
		secret = "generated"
	}
	sub := models.Subscription{ID: fmt.Sprintf("wh_%012d", len(f.subs)+1), URL: url, Events: events, Secret: secret, Active: true}
	f.subs = append(f.subs, sub)
	return &sub, nil
}

func (f *fakeWebhooks) ListSubscriptions() ([]models.Subscription, error) { return f.subs, nil }

func (f *fakeWebhooks) DeleteSubscription(id string) error {
	for i, s := range f.subs {
		if s.ID == id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
}

func (f *fakeWebhooks) Test(_ context.Context, _ string) (webhooks.DeliveryResult, error) {
	return f.result, f.testErr
}

type fakeMetrics struct {
	metrics *observability.Metrics
	err     error
	since   time.Time
}

func (f *fakeMetrics) Calculate(since time.Time) (*observability.Metrics, error) {
	f.since = since
	return f.metrics, f.err
}

type fakeAlerts struct {
	alerts []observability.Alert
	err    error
}

func (f *fakeAlerts) Evaluate() ([]observability.Alert, error) {
	return f.alerts, f.err
}

// run executes the command tree with args and returns its output.
func run(t *testing.T, svc *Services, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(svc)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func sampleTasks() []*models.Task {
	return []*models.Task{
		{ID: "task-001", Title: "Add auth", Status: models.StatusInProgress, Priority: models.PriorityHigh, Category: "backend",
			Deliverables: []models.Deliverable{{Path: "auth.go", Status: models.DeliverablePending}, {Path: "auth_test.go", Status: models.DeliverablePending}}},
		{ID: "task-002", Title: "Fix login page", Status: models.StatusPlanned, Priority: models.PriorityLow, Category: "frontend",
			Prompts: models.Prompts{Starter: "Fix the login page layout."}},
		{ID: "task-003", Title: "Ship release", Status: models.StatusCompleted, Priority: models.PriorityCritical, Category: "general"},
	}
}
