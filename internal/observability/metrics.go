package observability

import (
	"fmt"
	"time"
)

// Metrics holds counts derived from the event log.
type Metrics struct {
	TasksCreated      int            `json:"tasks_created"`
	TasksCompleted    int            `json:"tasks_completed"`
	TasksByPriority   map[string]int `json:"tasks_by_priority"`
	Transitions       map[string]int `json:"transitions_to_status"`
	Updates           map[string]int `json:"updates_by_action"`
	WebhooksDelivered int            `json:"webhooks_delivered"`
	WebhooksFailed    int            `json:"webhooks_failed"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// DeliverySuccessRate is the share of delivered webhooks among attempts, or
// zero when nothing was attempted.
func (m *Metrics) DeliverySuccessRate() float64 {
	total := m.WebhooksDelivered + m.WebhooksFailed
	if total == 0 {
		return 0
	}
	return float64(m.WebhooksDelivered) / float64(total)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		TasksByPriority: make(map[string]int),
		Transitions:     make(map[string]int),
		Updates:         make(map[string]int),
		EventCount:      len(events),
	}

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if p, ok := event.Data["priority"].(string); ok {
				m.TasksByPriority[p]++
			}
		case "task.completed":
			m.TasksCompleted++
		case "task.status_changed":
			if status, ok := event.Data["new_status"].(string); ok {
				m.Transitions[status]++
			}
		case "task.updated":
			if action, ok := event.Data["action"].(string); ok {
				m.Updates[action]++
			}
		case "webhook.delivered":
			m.WebhooksDelivered++
		case "webhook.failed":
			m.WebhooksFailed++
		}
	}

	return m, nil
}
