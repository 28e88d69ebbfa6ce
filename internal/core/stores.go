package core

import "github.com/valter-silva-au/agentjobs/pkg/models"

// TaskStore is the subset of storage.TaskStore that TaskManager needs.
// Defining it here keeps core independent of the storage package; corrupt
// records are already skipped and logged by the store's List.
type TaskStore interface {
	Load(taskID string) (*models.Task, error)
	Save(task *models.Task) error
	List() ([]*models.Task, error)
	Exists(taskID string) (bool, error)
}

// Notifier receives committed task mutations. Implementations must not block
// on network I/O and must not report delivery failures back to the caller.
type Notifier interface {
	Fire(event models.EventType, task *models.Task, meta models.EventMetadata)
}

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
