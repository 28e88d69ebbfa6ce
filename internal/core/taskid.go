package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TaskIDGenerator defines the interface for generating unique, sequential task IDs.
type TaskIDGenerator interface {
	GenerateTaskID() (string, error)
}

// fileTaskIDGenerator implements TaskIDGenerator by persisting a counter
// in a .task_counter file inside the tasks directory.
type fileTaskIDGenerator struct {
	dir      string
	prefix   string
	padWidth int
}

// NewTaskIDGenerator creates a TaskIDGenerator whose counter lives in dir.
// padWidth controls the zero-padding width of the numeric portion. Use 0 for
// no padding (e.g., task-1).
func NewTaskIDGenerator(dir string, prefix string, padWidth int) TaskIDGenerator {
	return &fileTaskIDGenerator{
		dir:      dir,
		prefix:   prefix,
		padWidth: padWidth,
	}
}

// GenerateTaskID increments the counter under an exclusive file lock and
// returns the formatted id. A missing counter is seeded from the highest
// existing {prefix}-N document, and ids whose document already exists are
// skipped, so an id is never handed out twice.
func (g *fileTaskIDGenerator) GenerateTaskID() (string, error) {
	if err := os.MkdirAll(g.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating directory for task counter: %w", err)
	}

	unlock, err := lockFile(filepath.Join(g.dir, ".task_counter.lock"))
	if err != nil {
		return "", fmt.Errorf("locking task counter: %w", err)
	}
	defer func() { _ = unlock() }()

	counterPath := filepath.Join(g.dir, ".task_counter")
	counter, err := g.readCounter(counterPath)
	if err != nil {
		return "", err
	}

	var id string
	for {
		counter++
		id = g.format(counter)
		if _, err := os.Stat(filepath.Join(g.dir, id+".yaml")); errors.Is(err, fs.ErrNotExist) {
			break
		} else if err != nil {
			return "", fmt.Errorf("checking candidate task id %s: %w", id, err)
		}
	}

	if err := os.WriteFile(counterPath, []byte(strconv.Itoa(counter)), 0o600); err != nil {
		return "", fmt.Errorf("writing task counter file: %w", err)
	}
	return id, nil
}

func (g *fileTaskIDGenerator) readCounter(counterPath string) (int, error) {
	data, err := os.ReadFile(counterPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return g.highestExisting()
		}
		return 0, fmt.Errorf("reading task counter file: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	counter, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parsing task counter %q: %w", trimmed, err)
	}
	return counter, nil
}

// highestExisting scans the directory for {prefix}-N.yaml documents.
func (g *fileTaskIDGenerator) highestExisting() (int, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return 0, fmt.Errorf("scanning tasks for highest id: %w", err)
	}
	highest := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, g.prefix+"-") || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, g.prefix+"-"), ".yaml")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (g *fileTaskIDGenerator) format(counter int) string {
	if g.padWidth > 0 {
		return fmt.Sprintf("%s-%0*d", g.prefix, g.padWidth, counter)
	}
	return fmt.Sprintf("%s-%d", g.prefix, counter)
}
