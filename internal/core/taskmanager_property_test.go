package core

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/agentjobs/internal/storage"
	"github.com/valter-silva-au/agentjobs/pkg/models"
	"pgregory.net/rapid"
)

func statusGen() *rapid.Generator[models.TaskStatus] {
	return rapid.SampledFrom(models.AllStatuses)
}

func priorityGen() *rapid.Generator[models.Priority] {
	return rapid.SampledFrom(models.AllPriorities)
}

func newPropertyEnv(rt *rapid.T) (*testEnv, func()) {
	dir, err := os.MkdirTemp("", "taskmanager-property-*")
	if err != nil {
		rt.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := storage.NewTaskStore(dir, nil)
	if err != nil {
		rt.Fatalf("NewTaskStore: %v", err)
	}
	n := &recordingNotifier{}
	mgr := NewTaskManager(fileStore{store}, NewTaskIDGenerator(dir, "task", 3), n, nil, nil)
	return &testEnv{dir: dir, store: store, mgr: mgr, notifier: n}, func() { _ = os.RemoveAll(dir) }
}

// After any sequence of status changes and progress notes, the task's
// status equals the last history entry, history timestamps never decrease,
// and nothing moves out of a terminal status.
func TestProperty_HistoryInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env, cleanup := newPropertyEnv(rt)
		defer cleanup()

		task, err := env.mgr.CreateTask(CreateTaskOpts{Title: "prop"})
		if err != nil {
			rt.Fatalf("CreateTask: %v", err)
		}

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			path := filepath.Join(env.dir, task.ID+".yaml")
			before, err := os.ReadFile(path)
			if err != nil {
				rt.Fatal(err)
			}
			current, err := env.mgr.GetTask(task.ID)
			if err != nil {
				rt.Fatal(err)
			}

			if rapid.Bool().Draw(rt, "progress") {
				if _, err := env.mgr.AddProgressUpdate(task.ID, "bot", "note", ""); err != nil {
					rt.Fatalf("AddProgressUpdate: %v", err)
				}
			} else {
				next := statusGen().Draw(rt, "status")
				_, err := env.mgr.UpdateStatus(task.ID, next, "bot", "move", "")
				switch {
				case current.Status.Terminal():
					if !errors.Is(err, models.ErrInvalidTransition) {
						rt.Fatalf("expected ErrInvalidTransition from %s, got %v", current.Status, err)
					}
					after, readErr := os.ReadFile(path)
					if readErr != nil {
						rt.Fatal(readErr)
					}
					if !bytes.Equal(before, after) {
						rt.Fatalf("terminal task document changed after rejected transition")
					}
				case err != nil:
					rt.Fatalf("UpdateStatus %s -> %s: %v", current.Status, next, err)
				}
			}

			stored, err := env.mgr.GetTask(task.ID)
			if err != nil {
				rt.Fatal(err)
			}
			if stored.Status != stored.LastUpdate().Status {
				rt.Fatalf("status %s != last entry %s", stored.Status, stored.LastUpdate().Status)
			}
			for j := 1; j < len(stored.StatusUpdates); j++ {
				if stored.StatusUpdates[j].Timestamp.Before(stored.StatusUpdates[j-1].Timestamp) {
					rt.Fatalf("history entry %d precedes entry %d", j, j-1)
				}
			}
			if stored.Updated.Before(stored.Created) {
				rt.Fatalf("updated precedes created")
			}
		}
	})
}

// GetNextTask returns a planned task such that no other planned task has a
// strictly higher priority, or an older creation time at the same priority.
func TestProperty_NextTaskOrdering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env, cleanup := newPropertyEnv(rt)
		defer cleanup()

		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		for i := 0; i < n; i++ {
			offset := rapid.IntRange(0, 1000).Draw(rt, "offset")
			env.setClock(base.Add(time.Duration(offset) * time.Minute))
			task, err := env.mgr.CreateTask(CreateTaskOpts{Title: "queued", Priority: priorityGen().Draw(rt, "priority")})
			if err != nil {
				rt.Fatalf("CreateTask: %v", err)
			}
			if rapid.Bool().Draw(rt, "start") {
				if _, err := env.mgr.UpdateStatus(task.ID, models.StatusInProgress, "bot", "go", ""); err != nil {
					rt.Fatal(err)
				}
			}
		}

		next, err := env.mgr.GetNextTask(nil)
		if err != nil {
			rt.Fatalf("GetNextTask: %v", err)
		}
		planned, err := env.mgr.ListTasks(TaskFilter{Status: []models.TaskStatus{models.StatusPlanned}})
		if err != nil {
			rt.Fatal(err)
		}
		if len(planned) == 0 {
			if next != nil {
				rt.Fatalf("expected nil with no planned tasks, got %s", next.ID)
			}
			return
		}
		if next == nil {
			rt.Fatalf("expected a task among %d planned", len(planned))
		}
		for _, other := range planned {
			if other.Priority.Rank() < next.Priority.Rank() {
				rt.Fatalf("%s (%s) outranks chosen %s (%s)", other.ID, other.Priority, next.ID, next.Priority)
			}
			if other.Priority == next.Priority && other.Created.Before(next.Created) {
				rt.Fatalf("%s is older than chosen %s at priority %s", other.ID, next.ID, next.Priority)
			}
		}
	})
}
