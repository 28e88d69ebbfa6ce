package core

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// TaskManager defines the lifecycle operations on task records. Every
// mutation loads a fresh copy, applies the change, validates and saves it
// atomically, and only then notifies subscribers.
type TaskManager interface {
	CreateTask(opts CreateTaskOpts) (*models.Task, error)
	GetTask(taskID string) (*models.Task, error)
	ListTasks(filter TaskFilter) ([]*models.Task, error)
	SearchTasks(query string) ([]*models.Task, error)
	GetNextTask(priority *models.Priority) (*models.Task, error)
	GetStarterPrompt(taskID string) (string, error)

	UpdateStatus(taskID string, status models.TaskStatus, author, summary, details string) (*models.Task, error)
	AddProgressUpdate(taskID, author, summary, details string) (*models.Task, error)
	MarkDeliverableComplete(taskID, path string) (*models.Task, error)
	AddFollowupPrompt(taskID, author, content, context string) (*models.Task, error)
	UpdatePhaseStatus(taskID, phaseID string, status models.TaskStatus) (*models.Task, error)
	UpdateTask(taskID string, patch TaskPatch) (*models.Task, error)
	ArchiveTask(taskID, author string) (*models.Task, error)
}

// CreateTaskOpts carries the caller-supplied fields of a new task. Only
// Title is required.
type CreateTaskOpts struct {
	// ID is optional. When empty an identifier is generated.
	ID              string
	Title           string
	Description     string
	HumanSummary    string
	Priority        models.Priority
	Category        string
	AssignedTo      string
	EstimatedEffort string
	StarterPrompt   string
	Author          string

	Tags            []string
	Phases          []models.Phase
	SuccessCriteria []models.SuccessCriterion
	Deliverables    []models.Deliverable
	Dependencies    []models.Dependency
	ExternalLinks   []models.ExternalLink
}

// TaskFilter narrows ListTasks. All non-empty fields must match.
type TaskFilter struct {
	Status     []models.TaskStatus
	Priority   []models.Priority
	Category   string
	AssignedTo string
	Tags       []string
}

// TaskPatch lists metadata edits. Nil fields are left untouched. Status and
// history are never edited through a patch.
type TaskPatch struct {
	Title           *string
	Description     *string
	HumanSummary    *string
	Priority        *models.Priority
	Category        *string
	AssignedTo      *string
	EstimatedEffort *string
	Tags            *[]string
	Dependencies    *[]models.Dependency
	ExternalLinks   *[]models.ExternalLink
	Deliverables    *[]models.Deliverable
	Phases          *[]models.Phase
	Author          string
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.HumanSummary == nil &&
		p.Priority == nil && p.Category == nil && p.AssignedTo == nil &&
		p.EstimatedEffort == nil && p.Tags == nil && p.Dependencies == nil &&
		p.ExternalLinks == nil && p.Deliverables == nil && p.Phases == nil
}

const (
	defaultCategory = "general"
	systemAuthor    = "system"
)

type taskManager struct {
	store    TaskStore
	idGen    TaskIDGenerator
	notifier Notifier
	events   EventLogger
	logger   *slog.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// NewTaskManager creates a TaskManager. notifier and events may be nil when
// no webhooks or event log are configured.
func NewTaskManager(store TaskStore, idGen TaskIDGenerator, notifier Notifier, events EventLogger, logger *slog.Logger) TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &taskManager{
		store:    store,
		idGen:    idGen,
		notifier: notifier,
		events:   events,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// CreateTask builds a planned task with a creation entry in its history,
// persists it and fires task.created.
func (tm *taskManager) CreateTask(opts CreateTaskOpts) (*models.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return nil, fmt.Errorf("creating task: %w", models.NewValidationError("title must not be empty"))
	}
	if opts.Priority == "" {
		opts.Priority = models.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return nil, fmt.Errorf("creating task: %w", models.NewValidationError("priority %q is not a known priority", opts.Priority))
	}

	taskID := opts.ID
	if taskID == "" {
		generated, err := tm.idGen.GenerateTaskID()
		if err != nil {
			return nil, fmt.Errorf("creating task: %w: %w", models.ErrStoreFailure, err)
		}
		taskID = generated
	} else if !models.ValidTaskID(taskID) {
		return nil, fmt.Errorf("creating task: %w", models.NewValidationError("id %q is not a valid task identifier", taskID))
	}

	unlock := tm.locks.Lock(taskID)
	defer unlock()

	exists, err := tm.store.Exists(taskID)
	if err != nil {
		return nil, fmt.Errorf("creating task %s: %w", taskID, err)
	}
	if exists {
		return nil, fmt.Errorf("creating task %s: %w", taskID, models.NewValidationError("task %s already exists", taskID))
	}

	author := opts.Author
	if author == "" {
		author = systemAuthor
	}
	now := tm.now().UTC()
	task := &models.Task{
		ID:              taskID,
		Title:           strings.TrimSpace(opts.Title),
		Created:         now,
		Updated:         now,
		Status:          models.StatusPlanned,
		Priority:        opts.Priority,
		Category:        opts.Category,
		AssignedTo:      opts.AssignedTo,
		EstimatedEffort: opts.EstimatedEffort,
		HumanSummary:    opts.HumanSummary,
		Description:     opts.Description,
		Phases:          defaultPhases(opts.Phases),
		SuccessCriteria: defaultCriteria(opts.SuccessCriteria),
		Prompts:         models.Prompts{Starter: starterPrompt(opts)},
		StatusUpdates: []models.StatusUpdate{{
			Timestamp: now,
			Author:    author,
			Status:    models.StatusPlanned,
			Summary:   "Task created.",
		}},
		Deliverables:  defaultDeliverables(opts.Deliverables),
		Dependencies:  defaultDependencies(opts.Dependencies),
		ExternalLinks: append([]models.ExternalLink(nil), opts.ExternalLinks...),
		Tags:          append([]string(nil), opts.Tags...),
	}
	if task.Category == "" {
		task.Category = defaultCategory
	}

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("creating task %s: %w", taskID, err)
	}
	if err := tm.store.Save(task); err != nil {
		return nil, fmt.Errorf("creating task %s: %w", taskID, err)
	}

	tm.logger.Info("task created", "task_id", taskID, "priority", task.Priority)
	tm.logEvent("task.created", map[string]any{
		"task_id":  taskID,
		"priority": string(task.Priority),
		"category": task.Category,
	})
	tm.fire(models.EventTaskCreated, task, models.EventMetadata{TriggeredBy: author, Action: "created"})
	return task, nil
}

// GetTask returns the stored record.
func (tm *taskManager) GetTask(taskID string) (*models.Task, error) {
	task, err := tm.store.Load(taskID)
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}
	return task, nil
}

// ListTasks returns every readable task matching filter, ordered by id.
func (tm *taskManager) ListTasks(filter TaskFilter) ([]*models.Task, error) {
	tasks, err := tm.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	var result []*models.Task
	for _, t := range tasks {
		if matchesFilter(t, filter) {
			result = append(result, t)
		}
	}
	return result, nil
}

// SearchTasks matches query case-insensitively against title, description
// and tags.
func (tm *taskManager) SearchTasks(query string) ([]*models.Task, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("searching tasks: %w", models.NewValidationError("query must not be empty"))
	}
	tasks, err := tm.store.List()
	if err != nil {
		return nil, fmt.Errorf("searching tasks: %w", err)
	}
	var result []*models.Task
	for _, t := range tasks {
		if matchesQuery(t, q) {
			result = append(result, t)
		}
	}
	return result, nil
}

// GetNextTask returns the planned task with the highest priority, oldest
// first within a priority. When priority is set only that tier is
// considered. It returns nil without error when nothing qualifies.
func (tm *taskManager) GetNextTask(priority *models.Priority) (*models.Task, error) {
	if priority != nil && !priority.Valid() {
		return nil, fmt.Errorf("getting next task: %w", models.NewValidationError("priority %q is not a known priority", *priority))
	}
	tasks, err := tm.store.List()
	if err != nil {
		return nil, fmt.Errorf("getting next task: %w", err)
	}

	var candidates []*models.Task
	for _, t := range tasks {
		if t.Status != models.StatusPlanned {
			continue
		}
		if priority != nil && t.Priority != *priority {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.ID < b.ID
	})
	return candidates[0], nil
}

// GetStarterPrompt returns the task's initial instruction text.
func (tm *taskManager) GetStarterPrompt(taskID string) (string, error) {
	task, err := tm.GetTask(taskID)
	if err != nil {
		return "", err
	}
	return task.Prompts.Starter, nil
}

// UpdateStatus moves a task to status and appends the matching history
// entry. Tasks in a terminal status cannot move.
func (tm *taskManager) UpdateStatus(taskID string, status models.TaskStatus, author, summary, details string) (*models.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("updating status of %s: %w", taskID, models.NewValidationError("status %q is not a known status", status))
	}
	if err := requireEntry(author, summary); err != nil {
		return nil, fmt.Errorf("updating status of %s: %w", taskID, err)
	}

	var previous models.TaskStatus
	task, err := tm.mutate(taskID, func(t *models.Task, now time.Time) error {
		if t.Status.Terminal() {
			return fmt.Errorf("%w: task %s is %s", models.ErrInvalidTransition, t.ID, t.Status)
		}
		previous = t.Status
		t.Status = status
		t.StatusUpdates = append(t.StatusUpdates, models.StatusUpdate{
			Timestamp: now,
			Author:    author,
			Status:    status,
			Summary:   summary,
			Details:   details,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating status of %s: %w", taskID, err)
	}

	tm.logger.Info("task status changed", "task_id", taskID, "from", previous, "to", status, "author", author)
	tm.logEvent("task.status_changed", map[string]any{
		"task_id":    taskID,
		"old_status": string(previous),
		"new_status": string(status),
		"author":     author,
	})
	meta := models.EventMetadata{TriggeredBy: author, Action: "status_changed", PreviousStatus: previous}
	tm.fire(models.EventTaskStatusChanged, task, meta)
	if status == models.StatusCompleted {
		tm.logEvent("task.completed", map[string]any{"task_id": taskID, "author": author})
		meta.Action = "completed"
		tm.fire(models.EventTaskCompleted, task, meta)
	}
	return task, nil
}

// AddProgressUpdate appends a history entry that keeps the current status.
func (tm *taskManager) AddProgressUpdate(taskID, author, summary, details string) (*models.Task, error) {
	if err := requireEntry(author, summary); err != nil {
		return nil, fmt.Errorf("adding progress to %s: %w", taskID, err)
	}
	task, err := tm.mutate(taskID, func(t *models.Task, now time.Time) error {
		t.StatusUpdates = append(t.StatusUpdates, models.StatusUpdate{
			Timestamp: now,
			Author:    author,
			Status:    t.Status,
			Summary:   summary,
			Details:   details,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding progress to %s: %w", taskID, err)
	}
	tm.updated(task, author, "progress_added")
	return task, nil
}

// MarkDeliverableComplete flips the deliverable at path to completed.
func (tm *taskManager) MarkDeliverableComplete(taskID, path string) (*models.Task, error) {
	task, err := tm.mutate(taskID, func(t *models.Task, _ time.Time) error {
		d := t.Deliverable(path)
		if d == nil {
			return fmt.Errorf("%w: deliverable %q on task %s", models.ErrNotFound, path, t.ID)
		}
		d.Status = models.DeliverableCompleted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("completing deliverable of %s: %w", taskID, err)
	}
	tm.updated(task, systemAuthor, "deliverable_completed")
	return task, nil
}

// AddFollowupPrompt appends an instruction to the task's follow-up prompts.
func (tm *taskManager) AddFollowupPrompt(taskID, author, content, context string) (*models.Task, error) {
	if strings.TrimSpace(author) == "" || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("adding follow-up to %s: %w", taskID, models.NewValidationError("author and content must not be empty"))
	}
	task, err := tm.mutate(taskID, func(t *models.Task, now time.Time) error {
		t.Prompts.Followups = append(t.Prompts.Followups, models.Prompt{
			Timestamp: now,
			Author:    author,
			Content:   content,
			Context:   context,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding follow-up to %s: %w", taskID, err)
	}
	tm.updated(task, author, "followup_added")
	return task, nil
}

// UpdatePhaseStatus sets the status of one execution phase.
func (tm *taskManager) UpdatePhaseStatus(taskID, phaseID string, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("updating phase of %s: %w", taskID, models.NewValidationError("status %q is not a known status", status))
	}
	task, err := tm.mutate(taskID, func(t *models.Task, now time.Time) error {
		p := t.Phase(phaseID)
		if p == nil {
			return fmt.Errorf("%w: phase %q on task %s", models.ErrNotFound, phaseID, t.ID)
		}
		p.Status = status
		p.CompletedAt = nil
		if status == models.StatusCompleted {
			at := now
			p.CompletedAt = &at
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating phase of %s: %w", taskID, err)
	}
	tm.updated(task, systemAuthor, "phase_updated")
	return task, nil
}

// UpdateTask applies metadata edits. It works on terminal tasks too since it
// never touches status or history.
func (tm *taskManager) UpdateTask(taskID string, patch TaskPatch) (*models.Task, error) {
	if patch.empty() {
		return nil, fmt.Errorf("updating task %s: %w", taskID, models.NewValidationError("no fields to update"))
	}
	task, err := tm.mutate(taskID, func(t *models.Task, _ time.Time) error {
		applyPatch(t, patch)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", taskID, err)
	}
	author := patch.Author
	if author == "" {
		author = systemAuthor
	}
	tm.updated(task, author, "metadata_updated")
	return task, nil
}

// ArchiveTask moves the task to archived. The record stays in the store.
func (tm *taskManager) ArchiveTask(taskID, author string) (*models.Task, error) {
	if author == "" {
		author = systemAuthor
	}
	return tm.UpdateStatus(taskID, models.StatusArchived, author, "Task archived.", "")
}

// mutate runs fn against a copy of the stored task under the task's lock and
// saves the result. The stored record is untouched when fn, validation or
// the save fail.
func (tm *taskManager) mutate(taskID string, fn func(t *models.Task, now time.Time) error) (*models.Task, error) {
	unlock := tm.locks.Lock(taskID)
	defer unlock()

	current, err := tm.store.Load(taskID)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	now := tm.stamp(current)
	if err := fn(next, now); err != nil {
		return nil, err
	}
	next.Updated = now
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := tm.store.Save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// stamp returns the current time, pushed forward when needed so it falls
// strictly after every timestamp already on the task.
func (tm *taskManager) stamp(t *models.Task) time.Time {
	now := tm.now().UTC()
	floor := t.Updated
	if last := t.LastUpdate(); last != nil && last.Timestamp.After(floor) {
		floor = last.Timestamp
	}
	if !now.After(floor) {
		now = floor.Add(time.Nanosecond)
	}
	return now
}

func (tm *taskManager) updated(task *models.Task, author, action string) {
	tm.logger.Debug("task updated", "task_id", task.ID, "action", action)
	tm.logEvent("task.updated", map[string]any{"task_id": task.ID, "action": action, "author": author})
	tm.fire(models.EventTaskUpdated, task, models.EventMetadata{TriggeredBy: author, Action: action})
}

func (tm *taskManager) fire(event models.EventType, task *models.Task, meta models.EventMetadata) {
	if tm.notifier == nil {
		return
	}
	tm.notifier.Fire(event, task, meta)
}

func (tm *taskManager) logEvent(eventType string, data map[string]any) {
	if tm.events == nil {
		return
	}
	if err := tm.events.LogEvent(eventType, data); err != nil {
		tm.logger.Warn("writing event log", "event", eventType, "err", err)
	}
}

func requireEntry(author, summary string) error {
	var problems []string
	if strings.TrimSpace(author) == "" {
		problems = append(problems, "author must not be empty")
	}
	if strings.TrimSpace(summary) == "" {
		problems = append(problems, "summary must not be empty")
	}
	if len(problems) > 0 {
		return &models.ValidationError{Problems: problems}
	}
	return nil
}

func starterPrompt(opts CreateTaskOpts) string {
	switch {
	case strings.TrimSpace(opts.StarterPrompt) != "":
		return opts.StarterPrompt
	case strings.TrimSpace(opts.Description) != "":
		return opts.Description
	default:
		return strings.TrimSpace(opts.Title)
	}
}

func applyPatch(t *models.Task, p TaskPatch) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&t.Title, p.Title)
	setString(&t.Description, p.Description)
	setString(&t.HumanSummary, p.HumanSummary)
	setString(&t.Category, p.Category)
	setString(&t.AssignedTo, p.AssignedTo)
	setString(&t.EstimatedEffort, p.EstimatedEffort)
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Dependencies != nil {
		t.Dependencies = defaultDependencies(*p.Dependencies)
	}
	if p.ExternalLinks != nil {
		t.ExternalLinks = append([]models.ExternalLink(nil), (*p.ExternalLinks)...)
	}
	if p.Deliverables != nil {
		t.Deliverables = defaultDeliverables(*p.Deliverables)
	}
	if p.Phases != nil {
		t.Phases = defaultPhases(*p.Phases)
	}
}

func defaultPhases(in []models.Phase) []models.Phase {
	out := append([]models.Phase(nil), in...)
	for i := range out {
		if out[i].Status == "" {
			out[i].Status = models.StatusPlanned
		}
	}
	return out
}

func defaultCriteria(in []models.SuccessCriterion) []models.SuccessCriterion {
	out := append([]models.SuccessCriterion(nil), in...)
	for i := range out {
		if out[i].Status == "" {
			out[i].Status = "pending"
		}
	}
	return out
}

func defaultDeliverables(in []models.Deliverable) []models.Deliverable {
	out := append([]models.Deliverable(nil), in...)
	for i := range out {
		if out[i].Status == "" {
			out[i].Status = models.DeliverablePending
		}
	}
	return out
}

func defaultDependencies(in []models.Dependency) []models.Dependency {
	out := append([]models.Dependency(nil), in...)
	for i := range out {
		if out[i].Type == "" {
			out[i].Type = models.DependsOn
		}
	}
	return out
}

func matchesFilter(t *models.Task, f TaskFilter) bool {
	if len(f.Status) > 0 && !contains(f.Status, t.Status) {
		return false
	}
	if len(f.Priority) > 0 && !contains(f.Priority, t.Priority) {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if len(f.Tags) > 0 && !hasAllTags(t.Tags, f.Tags) {
		return false
	}
	return true
}

func matchesQuery(t *models.Task, q string) bool {
	if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func contains[T comparable](haystack []T, needle T) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func hasAllTags(taskTags []string, required []string) bool {
	tagSet := make(map[string]struct{}, len(taskTags))
	for _, t := range taskTags {
		tagSet[t] = struct{}{}
	}
	for _, req := range required {
		if _, found := tagSet[req]; !found {
			return false
		}
	}
	return true
}
