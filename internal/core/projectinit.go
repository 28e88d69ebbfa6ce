package core

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitConfig holds the parameters for initializing an agentjobs workspace.
type InitConfig struct {
	BasePath string
	TasksDir string
	Prefix   string
}

// InitResult lists what Init did, as absolute paths.
type InitResult struct {
	Created []string
	Updated []string
	Skipped []string
}

// ProjectInitializer sets up a directory for agentjobs.
type ProjectInitializer interface {
	Init(cfg InitConfig) (*InitResult, error)
}

type projectInitializer struct{}

// NewProjectInitializer returns the default ProjectInitializer.
func NewProjectInitializer() ProjectInitializer {
	return &projectInitializer{}
}

// Init writes .agentjobs.yaml with the defaults, creates the tasks
// directory and adds generated files to .gitignore. Existing files are
// left alone, so Init can be run again safely.
func (p *projectInitializer) Init(ic InitConfig) (*InitResult, error) {
	if ic.BasePath == "" {
		return nil, fmt.Errorf("base path must not be empty")
	}
	cfg := DefaultConfig()
	if ic.TasksDir != "" {
		cfg.TasksDir = ic.TasksDir
	}
	if ic.Prefix != "" {
		cfg.TaskIDPrefix = ic.Prefix
	}
	if err := NewConfigurationManager(ic.BasePath).ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(ic.BasePath, 0o750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", ic.BasePath, err)
	}
	result := &InitResult{}

	configPath := filepath.Join(ic.BasePath, ConfigFileName)
	switch _, err := os.Stat(configPath); {
	case err == nil:
		result.Skipped = append(result.Skipped, configPath)
	case errors.Is(err, os.ErrNotExist):
		v := viper.New()
		for key, value := range configSettings(cfg) {
			v.Set(key, value)
		}
		v.Set("webhooks.timeout", cfg.Webhooks.Timeout.String())
		if err := v.WriteConfigAs(configPath); err != nil {
			return nil, fmt.Errorf("writing %s: %w", ConfigFileName, err)
		}
		result.Created = append(result.Created, configPath)
	default:
		return nil, fmt.Errorf("checking %s: %w", ConfigFileName, err)
	}

	tasksDir := filepath.Join(ic.BasePath, cfg.TasksDir)
	if _, err := os.Stat(tasksDir); err == nil {
		result.Skipped = append(result.Skipped, tasksDir)
	} else {
		if err := os.MkdirAll(tasksDir, 0o750); err != nil {
			return nil, fmt.Errorf("creating tasks directory: %w", err)
		}
		result.Created = append(result.Created, tasksDir)
	}

	ignored := []string{
		cfg.EventLog,
		filepath.ToSlash(filepath.Join(cfg.TasksDir, ".task_counter")),
		filepath.ToSlash(filepath.Join(cfg.TasksDir, ".task_counter.lock")),
	}
	gitignore := filepath.Join(ic.BasePath, ".gitignore")
	created, added, err := ensureIgnored(gitignore, ignored)
	if err != nil {
		return nil, err
	}
	switch {
	case created:
		result.Created = append(result.Created, gitignore)
	case added:
		result.Updated = append(result.Updated, gitignore)
	default:
		result.Skipped = append(result.Skipped, gitignore)
	}

	return result, nil
}

// ensureIgnored appends the entries missing from the .gitignore at path.
func ensureIgnored(path string, entries []string) (created, added bool, err error) {
	existing := make(map[string]bool)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		for scanner.Scan() {
			existing[strings.TrimSpace(scanner.Text())] = true
		}
	case errors.Is(err, os.ErrNotExist):
		created = true
	default:
		return false, false, fmt.Errorf("reading .gitignore: %w", err)
	}

	var b strings.Builder
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteString("\n")
	}
	for _, e := range entries {
		if existing[e] {
			continue
		}
		if !added {
			b.WriteString("# agentjobs\n")
		}
		b.WriteString(e + "\n")
		added = true
	}
	if !added {
		return false, false, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, false, fmt.Errorf("opening .gitignore: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return false, false, fmt.Errorf("writing .gitignore: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return created, added, nil
}
