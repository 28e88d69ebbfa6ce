package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valter-silva-au/agentjobs/pkg/models"
	"gopkg.in/yaml.v3"
)

const taskFileExt = ".yaml"

// CorruptRecord describes a document that List skipped because it could not
// be parsed or failed validation.
type CorruptRecord struct {
	Path string
	Err  error
}

// TaskStore persists one YAML document per task in a directory.
type TaskStore interface {
	Load(taskID string) (*models.Task, error)
	Save(task *models.Task) error
	List() ([]*models.Task, []CorruptRecord, error)
	Exists(taskID string) (bool, error)
	Delete(taskID string) error
	Dir() string
}

type fileTaskStore struct {
	dir    string
	logger *slog.Logger
}

// NewTaskStore creates a TaskStore rooted at dir, creating the directory if
// needed. logger may be nil.
func NewTaskStore(dir string, logger *slog.Logger) (TaskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating tasks directory %s: %w", models.ErrStoreFailure, dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fileTaskStore{dir: dir, logger: logger}, nil
}

func (s *fileTaskStore) Dir() string {
	return s.dir
}

func (s *fileTaskStore) taskPath(taskID string) string {
	return filepath.Join(s.dir, taskID+taskFileExt)
}

// Load reads the document for taskID. A document that cannot be decoded, that
// fails validation, or whose id disagrees with its file name is reported as
// ErrCorrupt and never returned.
func (s *fileTaskStore) Load(taskID string) (*models.Task, error) {
	if !models.ValidTaskID(taskID) {
		return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	return s.loadPath(s.taskPath(taskID), taskID)
}

func (s *fileTaskStore) loadPath(path, taskID string) (*models.Task, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from a validated id
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", models.ErrStoreFailure, path, err)
	}

	var task models.Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("%w: %s: parsing YAML: %w", models.ErrCorrupt, path, err)
	}
	if task.ID != taskID {
		return nil, fmt.Errorf("%w: %s: document id %q does not match file name", models.ErrCorrupt, path, task.ID)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrCorrupt, path, err)
	}
	return &task, nil
}

// Save validates and writes the task atomically. A concurrent Load observes
// either the previous document or the new one.
func (s *fileTaskStore) Save(task *models.Task) error {
	if task == nil {
		return models.NewValidationError("task must not be nil")
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	data, err := marshalDocument(task)
	if err != nil {
		return fmt.Errorf("%w: marshaling task %s: %w", models.ErrStoreFailure, task.ID, err)
	}
	if err := writeFileAtomic(s.taskPath(task.ID), data, 0o600); err != nil {
		return fmt.Errorf("%w: writing task %s: %w", models.ErrStoreFailure, task.ID, err)
	}
	return nil
}

// List returns every valid task ordered by id. Documents that fail to load
// are skipped, logged, and returned as CorruptRecords.
func (s *fileTaskStore) List() ([]*models.Task, []CorruptRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: listing %s: %w", models.ErrStoreFailure, s.dir, err)
	}

	var tasks []*models.Task
	var corrupt []CorruptRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, taskFileExt) {
			continue
		}
		taskID := strings.TrimSuffix(name, taskFileExt)
		path := filepath.Join(s.dir, name)

		task, err := s.loadPath(path, taskID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Removed between ReadDir and ReadFile.
				continue
			}
			if errors.Is(err, models.ErrStoreFailure) {
				return nil, nil, err
			}
			s.logger.Warn("skipping corrupt task record", "path", path, "err", err)
			corrupt = append(corrupt, CorruptRecord{Path: path, Err: err})
			continue
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, corrupt, nil
}

func (s *fileTaskStore) Exists(taskID string) (bool, error) {
	if !models.ValidTaskID(taskID) {
		return false, nil
	}
	_, err := os.Stat(s.taskPath(taskID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: checking task %s: %w", models.ErrStoreFailure, taskID, err)
}

// Delete physically removes a task document. The lifecycle engine archives
// instead of deleting; this primitive exists for maintenance tooling.
func (s *fileTaskStore) Delete(taskID string) error {
	if !models.ValidTaskID(taskID) {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	if err := os.Remove(s.taskPath(taskID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
		}
		return fmt.Errorf("%w: removing task %s: %w", models.ErrStoreFailure, taskID, err)
	}
	return nil
}
