package observability

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is one line of the event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"` // e.g. "task.created", "webhook.failed"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// TaskID returns the task_id carried in Data, if any.
func (e Event) TaskID() string {
	id, _ := e.Data["task_id"].(string)
	return id
}

// EventFilter specifies criteria for reading events. Zero fields match
// everything.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   string
	Level  string
	TaskID string
}

// EventLog writes and reads events.
type EventLog interface {
	Write(event Event) error
	LogEvent(eventType string, data map[string]any) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
	now  func() time.Time
}

// NewJSONLEventLog opens (or creates) an append-only JSONL log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
		now:  time.Now,
	}, nil
}

// Write appends event as a single JSON line.
func (l *jsonlEventLog) Write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// LogEvent stamps and writes an event of eventType. Failed deliveries are
// logged at WARN, everything else at INFO.
func (l *jsonlEventLog) LogEvent(eventType string, data map[string]any) error {
	level := LevelInfo
	if strings.HasSuffix(eventType, ".failed") {
		level = LevelWarn
	}
	return l.Write(Event{
		Time:    l.now().UTC(),
		Level:   level,
		Type:    eventType,
		Message: describe(eventType, data),
		Data:    data,
	})
}

// Read scans the log and returns the events matching filter in write
// order. Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.TaskID != "" && event.TaskID() != filter.TaskID {
		return false
	}
	return true
}

// describe renders a short human message for the log line.
func describe(eventType string, data map[string]any) string {
	switch eventType {
	case "task.status_changed":
		return fmt.Sprintf("%v: %v -> %v", data["task_id"], data["old_status"], data["new_status"])
	case "webhook.delivered", "webhook.failed":
		return fmt.Sprintf("%s %v to %v", eventType, data["event"], data["subscription_id"])
	}
	if id, ok := data["task_id"]; ok {
		return fmt.Sprintf("%s %v", eventType, id)
	}
	return eventType
}
