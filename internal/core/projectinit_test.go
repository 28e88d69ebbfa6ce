package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/agentjobs/pkg/models"
)

func TestProjectInit_FreshDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")

	result, err := NewProjectInitializer().Init(InitConfig{BasePath: dir, Prefix: "job"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(result.Created) != 3 || len(result.Skipped) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if info, err := os.Stat(filepath.Join(dir, "tasks")); err != nil || !info.IsDir() {
		t.Errorf("expected tasks directory: %v", err)
	}

	// The written file loads back as the defaults plus the override.
	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	want.TaskIDPrefix = "job"
	if *cfg != *want {
		t.Errorf("LoadConfig() = %+v, want %+v", cfg, want)
	}
	if cfg.Webhooks.Timeout != 10*time.Second {
		t.Errorf("timeout = %s", cfg.Webhooks.Timeout)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{".agentjobs_events.jsonl\n", "tasks/.task_counter\n", "tasks/.task_counter.lock\n"} {
		if !strings.Contains(string(data), want) {
			t.Errorf(".gitignore missing %q:\n%s", want, data)
		}
	}
}

func TestProjectInit_Idempotent(t *testing.T) {
	dir := t.TempDir()
	pi := NewProjectInitializer()
	if _, err := pi.Init(InitConfig{BasePath: dir}); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}

	result, err := pi.Init(InitConfig{BasePath: dir, Prefix: "other"})
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if len(result.Created) != 0 || len(result.Updated) != 0 || len(result.Skipped) != 3 {
		t.Errorf("expected everything skipped, got %+v", result)
	}
	second, _ := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if string(first) != string(second) {
		t.Error(".gitignore changed on the second run")
	}

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TaskIDPrefix != "task" {
		t.Errorf("existing config was overwritten, prefix %q", cfg.TaskIDPrefix)
	}
}

func TestProjectInit_AppendsToExistingGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "bin/\n.agentjobs_events.jsonl")

	result, err := NewProjectInitializer().Init(InitConfig{BasePath: dir, TasksDir: "work"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Updated) != 1 {
		t.Errorf("expected .gitignore updated, got %+v", result)
	}
	data, _ := os.ReadFile(filepath.Join(dir, ".gitignore"))
	got := string(data)
	if strings.Count(got, ".agentjobs_events.jsonl") != 1 {
		t.Errorf("event log entry duplicated:\n%s", got)
	}
	if !strings.HasPrefix(got, "bin/\n.agentjobs_events.jsonl\n") || !strings.Contains(got, "work/.task_counter\n") {
		t.Errorf("unexpected .gitignore:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "work")); err != nil {
		t.Errorf("expected custom tasks directory: %v", err)
	}
}

func TestProjectInit_InvalidPrefix(t *testing.T) {
	dir := t.TempDir()
	_, err := NewProjectInitializer().Init(InitConfig{BasePath: dir, Prefix: "bad prefix"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); !errors.Is(err, os.ErrNotExist) {
		t.Error("config written despite invalid prefix")
	}
}
