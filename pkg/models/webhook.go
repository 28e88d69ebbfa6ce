package models

import (
	"net/url"
	"time"
)

// EventType names a class of notification.
type EventType string

const (
	EventTaskCreated       EventType = "task.created"
	EventTaskUpdated       EventType = "task.updated"
	EventTaskStatusChanged EventType = "task.status_changed"
	EventTaskCompleted     EventType = "task.completed"
	EventWebhookTest       EventType = "webhook.test"
)

// AllEventTypes lists every event a subscription may request.
var AllEventTypes = []EventType{
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskStatusChanged,
	EventTaskCompleted,
	EventWebhookTest,
}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventTaskCreated, EventTaskUpdated, EventTaskStatusChanged, EventTaskCompleted, EventWebhookTest:
		return true
	}
	return false
}

// Subscription is a registered webhook target interested in a subset of events.
type Subscription struct {
	ID            string      `yaml:"id" json:"id"`
	URL           string      `yaml:"url" json:"url"`
	Events        []EventType `yaml:"events" json:"events"`
	Secret        string      `yaml:"secret" json:"secret"`
	Active        bool        `yaml:"active" json:"active"`
	Created       time.Time   `yaml:"created" json:"created"`
	LastTriggered *time.Time  `yaml:"last_triggered,omitempty" json:"last_triggered,omitempty"`
}

// Wants reports whether the subscription should receive events of type e.
func (s *Subscription) Wants(e EventType) bool {
	if !s.Active {
		return false
	}
	for _, want := range s.Events {
		if want == e {
			return true
		}
	}
	return false
}

// Validate checks the subscription's target and event list.
func (s *Subscription) Validate() error {
	var v validationErrors
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addf("url %q must be an absolute http or https URL", s.URL)
	}
	if len(s.Events) == 0 {
		v.addf("events must list at least one event type")
	}
	for _, e := range s.Events {
		if !e.Valid() {
			v.addf("event %q is not a known event type", e)
		}
	}
	if s.Secret == "" {
		v.addf("secret must not be empty")
	}
	return v.err()
}

// Event is the payload delivered to subscribers. PreviousStatus is set for
// task.status_changed and task.completed.
type Event struct {
	Event          EventType  `json:"event"`
	Timestamp      time.Time  `json:"timestamp"`
	Task           any        `json:"task"`
	TriggeredBy    string     `json:"triggered_by,omitempty"`
	Action         string     `json:"action,omitempty"`
	PreviousStatus TaskStatus `json:"previous_status,omitempty"`
}

// EventMetadata carries the caller-supplied parts of an event payload.
type EventMetadata struct {
	TriggeredBy    string
	Action         string
	PreviousStatus TaskStatus
}
