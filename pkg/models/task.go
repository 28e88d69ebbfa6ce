package models

import "time"

// TaskStatus represents the current lifecycle state of a task or phase.
type TaskStatus string

const (
	StatusPlanned         TaskStatus = "planned"
	StatusInProgress      TaskStatus = "in_progress"
	StatusWaitingForHuman TaskStatus = "waiting_for_human"
	StatusBlocked         TaskStatus = "blocked"
	StatusUnderReview     TaskStatus = "under_review"
	StatusCompleted       TaskStatus = "completed"
	StatusArchived        TaskStatus = "archived"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TaskStatus{
	StatusPlanned,
	StatusInProgress,
	StatusWaitingForHuman,
	StatusBlocked,
	StatusUnderReview,
	StatusCompleted,
	StatusArchived,
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusWaitingForHuman, StatusBlocked,
		StatusUnderReview, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether no further status transition may leave s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusArchived:
		return true
	case StatusPlanned, StatusInProgress, StatusWaitingForHuman, StatusBlocked, StatusUnderReview:
		return false
	}
	return false
}

// Active reports whether s represents work that has started but not finished.
func (s TaskStatus) Active() bool {
	switch s {
	case StatusInProgress, StatusWaitingForHuman, StatusBlocked, StatusUnderReview:
		return true
	case StatusPlanned, StatusCompleted, StatusArchived:
		return false
	}
	return false
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// AllPriorities lists priorities from most to least urgent.
var AllPriorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank returns the selection order of p: 0 for critical through 3 for low,
// or -1 for an unknown priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return -1
}

// Deliverable and success criterion states.
const (
	DeliverablePending    = "pending"
	DeliverableInProgress = "in_progress"
	DeliverableCompleted  = "completed"
)

// Phase is a named sub-unit of progress within a task. Its status is drawn
// from the task status set but tracked independently of the parent.
type Phase struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Status      TaskStatus `yaml:"status" json:"status"`
	Notes       string     `yaml:"notes,omitempty" json:"notes,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// SuccessCriterion is a checklist item tracked per task.
type SuccessCriterion struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Status      string `yaml:"status" json:"status"`
}

// Prompt is a followup instruction appended while the task progresses.
type Prompt struct {
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp"`
	Author     string    `yaml:"author" json:"author"`
	PromptFile string    `yaml:"prompt_file,omitempty" json:"prompt_file,omitempty"`
	Content    string    `yaml:"content,omitempty" json:"content,omitempty"`
	Context    string    `yaml:"context,omitempty" json:"context,omitempty"`
}

// Prompts holds the starter instruction and the append-only followups.
type Prompts struct {
	Starter   string   `yaml:"starter" json:"starter"`
	Followups []Prompt `yaml:"followups,omitempty" json:"followups"`
}

// StatusUpdate is one entry of the append-only task history.
type StatusUpdate struct {
	Timestamp time.Time  `yaml:"timestamp" json:"timestamp"`
	Author    string     `yaml:"author" json:"author"`
	Status    TaskStatus `yaml:"status" json:"status"`
	Summary   string     `yaml:"summary" json:"summary"`
	Details   string     `yaml:"details,omitempty" json:"details,omitempty"`
}

// Deliverable is an artifact tracked for task completion.
type Deliverable struct {
	Path        string `yaml:"path" json:"path"`
	Status      string `yaml:"status" json:"status"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Dependency types.
const (
	DependsOn = "depends_on"
	Blocks    = "blocks"
	Related   = "related"
)

// Dependency relates a task to another task. The target is not required to exist.
type Dependency struct {
	TaskID string `yaml:"task_id" json:"task_id"`
	Type   string `yaml:"type" json:"type"`
	Status string `yaml:"status,omitempty" json:"status,omitempty"`
	Note   string `yaml:"note,omitempty" json:"note,omitempty"`
}

// ExternalLink references a resource outside the store.
type ExternalLink struct {
	URL   string `yaml:"url" json:"url"`
	Title string `yaml:"title" json:"title"`
}

// Issue is a problem encountered while executing the task.
type Issue struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	Status     string `yaml:"status" json:"status"`
	Resolution string `yaml:"resolution,omitempty" json:"resolution,omitempty"`
}

// Branch records git branch metadata for the task.
type Branch struct {
	Name     string     `yaml:"name" json:"name"`
	Status   string     `yaml:"status" json:"status"`
	MergedAt *time.Time `yaml:"merged_at,omitempty" json:"merged_at,omitempty"`
}

// Task is the unit-of-work record managed by the lifecycle engine.
type Task struct {
	ID      string    `yaml:"id" json:"id"`
	Title   string    `yaml:"title" json:"title"`
	Created time.Time `yaml:"created" json:"created"`
	Updated time.Time `yaml:"updated" json:"updated"`

	Status          TaskStatus `yaml:"status" json:"status"`
	Priority        Priority   `yaml:"priority" json:"priority"`
	Category        string     `yaml:"category" json:"category"`
	AssignedTo      string     `yaml:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	EstimatedEffort string     `yaml:"estimated_effort,omitempty" json:"estimated_effort,omitempty"`

	HumanSummary    string             `yaml:"human_summary,omitempty" json:"human_summary,omitempty"`
	Description     string             `yaml:"description" json:"description"`
	Phases          []Phase            `yaml:"phases,omitempty" json:"phases"`
	SuccessCriteria []SuccessCriterion `yaml:"success_criteria,omitempty" json:"success_criteria"`

	Prompts       Prompts        `yaml:"prompts" json:"prompts"`
	StatusUpdates []StatusUpdate `yaml:"status_updates" json:"status_updates"`
	Deliverables  []Deliverable  `yaml:"deliverables,omitempty" json:"deliverables"`

	Dependencies  []Dependency   `yaml:"dependencies,omitempty" json:"dependencies"`
	ExternalLinks []ExternalLink `yaml:"external_links,omitempty" json:"external_links"`

	Issues   []Issue  `yaml:"issues,omitempty" json:"issues"`
	Tags     []string `yaml:"tags,omitempty" json:"tags"`
	Branches []Branch `yaml:"branches,omitempty" json:"branches"`
}

// LastUpdate returns the most recent history entry, or nil for an empty log.
func (t *Task) LastUpdate() *StatusUpdate {
	if len(t.StatusUpdates) == 0 {
		return nil
	}
	return &t.StatusUpdates[len(t.StatusUpdates)-1]
}

// Deliverable returns the deliverable with the given path, or nil.
func (t *Task) Deliverable(path string) *Deliverable {
	for i := range t.Deliverables {
		if t.Deliverables[i].Path == path {
			return &t.Deliverables[i]
		}
	}
	return nil
}

// Phase returns the phase with the given id, or nil.
func (t *Task) Phase(id string) *Phase {
	for i := range t.Phases {
		if t.Phases[i].ID == id {
			return &t.Phases[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the task so callers can mutate it freely.
func (t *Task) Clone() *Task {
	c := *t
	c.Phases = clonePhases(t.Phases)
	c.SuccessCriteria = cloneSlice(t.SuccessCriteria)
	c.Prompts.Followups = cloneSlice(t.Prompts.Followups)
	c.StatusUpdates = cloneSlice(t.StatusUpdates)
	c.Deliverables = cloneSlice(t.Deliverables)
	c.Dependencies = cloneSlice(t.Dependencies)
	c.ExternalLinks = cloneSlice(t.ExternalLinks)
	c.Issues = cloneSlice(t.Issues)
	c.Tags = cloneSlice(t.Tags)
	c.Branches = cloneBranches(t.Branches)
	return &c
}

// PayloadSnapshot returns a copy of t for webhook payloads. Absent lists
// are empty rather than nil so they encode as [] instead of null.
func (t *Task) PayloadSnapshot() *Task {
	if t == nil {
		return nil
	}
	c := t.Clone()
	c.Phases = orEmpty(c.Phases)
	c.SuccessCriteria = orEmpty(c.SuccessCriteria)
	c.Prompts.Followups = orEmpty(c.Prompts.Followups)
	c.StatusUpdates = orEmpty(c.StatusUpdates)
	c.Deliverables = orEmpty(c.Deliverables)
	c.Dependencies = orEmpty(c.Dependencies)
	c.ExternalLinks = orEmpty(c.ExternalLinks)
	c.Issues = orEmpty(c.Issues)
	c.Tags = orEmpty(c.Tags)
	c.Branches = orEmpty(c.Branches)
	return c
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func clonePhases(s []Phase) []Phase {
	out := cloneSlice(s)
	for i := range out {
		if out[i].CompletedAt != nil {
			ts := *out[i].CompletedAt
			out[i].CompletedAt = &ts
		}
	}
	return out
}

func cloneBranches(s []Branch) []Branch {
	out := cloneSlice(s)
	for i := range out {
		if out[i].MergedAt != nil {
			ts := *out[i].MergedAt
			out[i].MergedAt = &ts
		}
	}
	return out
}
