package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	TaskID      string        `json:"task_id,omitempty"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. Zero disables a check.
type AlertThresholds struct {
	BlockedHours int `yaml:"blocked_hours" json:"blocked_hours"`
	WaitingHours int `yaml:"waiting_hours" json:"waiting_hours"`
	ReviewDays   int `yaml:"review_days" json:"review_days"`
	MaxPlanned   int `yaml:"max_planned" json:"max_planned"`
}

// ThresholdsFromConfig converts the configured alert section.
func ThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	return AlertThresholds{
		BlockedHours: cfg.BlockedHours,
		WaitingHours: cfg.WaitingHours,
		ReviewDays:   cfg.ReviewDays,
		MaxPlanned:   cfg.MaxPlanned,
	}
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BlockedHours: 24,
		WaitingHours: 8,
		ReviewDays:   3,
		MaxPlanned:   20,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over eventLog.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// taskState is a task's status as of its latest lifecycle event.
type taskState struct {
	status models.TaskStatus
	since  time.Time
}

// Evaluate replays lifecycle events and returns the triggered alerts ordered
// by ID.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()
	states, err := ae.replay()
	if err != nil {
		return nil, fmt.Errorf("replaying lifecycle events: %w", err)
	}

	var alerts []Alert
	planned := 0
	for taskID, st := range states {
		held := now.Sub(st.since)
		switch st.status {
		case models.StatusPlanned:
			planned++
		case models.StatusBlocked:
			if limit := hours(ae.thresholds.BlockedHours); limit > 0 && held > limit {
				alerts = append(alerts, Alert{
					ID:          "blocked-" + taskID,
					Condition:   "task_blocked_too_long",
					Severity:    SeverityHigh,
					TaskID:      taskID,
					Message:     fmt.Sprintf("task %s has been blocked for more than %d hours", taskID, ae.thresholds.BlockedHours),
					TriggeredAt: now,
				})
			}
		case models.StatusWaitingForHuman:
			if limit := hours(ae.thresholds.WaitingHours); limit > 0 && held > limit {
				alerts = append(alerts, Alert{
					ID:          "waiting-" + taskID,
					Condition:   "human_input_overdue",
					Severity:    SeverityHigh,
					TaskID:      taskID,
					Message:     fmt.Sprintf("task %s has been waiting for a human for more than %d hours", taskID, ae.thresholds.WaitingHours),
					TriggeredAt: now,
				})
			}
		case models.StatusUnderReview:
			if limit := hours(24 * ae.thresholds.ReviewDays); limit > 0 && held > limit {
				alerts = append(alerts, Alert{
					ID:          "review-" + taskID,
					Condition:   "review_too_long",
					Severity:    SeverityMedium,
					TaskID:      taskID,
					Message:     fmt.Sprintf("task %s has been under review for more than %d days", taskID, ae.thresholds.ReviewDays),
					TriggeredAt: now,
				})
			}
		case models.StatusInProgress, models.StatusCompleted, models.StatusArchived:
		}
	}

	if ae.thresholds.MaxPlanned > 0 && planned > ae.thresholds.MaxPlanned {
		alerts = append(alerts, Alert{
			ID:          "planned-queue",
			Condition:   "planned_queue_too_large",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("%d tasks are planned, exceeding the maximum of %d", planned, ae.thresholds.MaxPlanned),
			TriggeredAt: now,
		})
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}

// replay folds task.created and task.status_changed events into the latest
// known status per task.
func (ae *alertEngine) replay() (map[string]taskState, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}
	states := make(map[string]taskState)
	for _, event := range events {
		taskID := event.TaskID()
		if taskID == "" {
			continue
		}
		switch event.Type {
		case "task.created":
			states[taskID] = taskState{status: models.StatusPlanned, since: event.Time}
		case "task.status_changed":
			status, _ := event.Data["new_status"].(string)
			if status == "" {
				continue
			}
			// A same-status update keeps the original start time.
			if prev, ok := states[taskID]; ok && prev.status == models.TaskStatus(status) {
				continue
			}
			states[taskID] = taskState{status: models.TaskStatus(status), since: event.Time}
		}
	}
	return states, nil
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}
