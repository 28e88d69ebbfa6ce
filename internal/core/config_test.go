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

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadConfig_Defaults_WhenNoFile(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("LoadConfig() = %+v, want %+v", cfg, want)
	}
	if err := cm.ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, `
tasks:
  dir: work
  id_prefix: job
  id_pad_width: 5
webhooks:
  file: hooks.yaml
  workers: 2
  queue_size: 16
  timeout: 3s
events:
  log: events.jsonl
alerts:
  blocked_hours: 2
  max_planned: 5
log:
  level: DEBUG
  format: json
`)

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.TasksDir != "work" || cfg.TaskIDPrefix != "job" || cfg.TaskIDPadWidth != 5 {
		t.Errorf("tasks section not applied: %+v", cfg)
	}
	if cfg.Webhooks.File != "hooks.yaml" || cfg.Webhooks.Workers != 2 || cfg.Webhooks.QueueSize != 16 {
		t.Errorf("webhooks section not applied: %+v", cfg.Webhooks)
	}
	if cfg.Webhooks.Timeout != 3*time.Second {
		t.Errorf("Webhooks.Timeout = %s, want 3s", cfg.Webhooks.Timeout)
	}
	if cfg.EventLog != "events.jsonl" {
		t.Errorf("EventLog = %q, want events.jsonl", cfg.EventLog)
	}
	if cfg.Alerts.BlockedHours != 2 || cfg.Alerts.MaxPlanned != 5 {
		t.Errorf("alerts section not applied: %+v", cfg.Alerts)
	}
	if cfg.Alerts.WaitingHours != 8 || cfg.Alerts.ReviewDays != 3 {
		t.Errorf("unset alert keys should keep defaults: %+v", cfg.Alerts)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("log section = %q/%q, want debug/json", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "webhooks:\n  workers: 2\n")
	t.Setenv("AGENTJOBS_WEBHOOKS_WORKERS", "9")
	t.Setenv("AGENTJOBS_LOG_LEVEL", "warn")

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Webhooks.Workers != 9 {
		t.Errorf("Workers = %d, want 9 from environment", cfg.Webhooks.Workers)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn from environment", cfg.LogLevel)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "tasks: [unclosed\n")

	if _, err := NewConfigurationManager(dir).LoadConfig(); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestValidateConfig(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	tests := []struct {
		name    string
		mutate  func(c *models.GlobalConfig)
		wantErr string
	}{
		{"valid defaults", func(c *models.GlobalConfig) {}, ""},
		{"bad prefix", func(c *models.GlobalConfig) { c.TaskIDPrefix = "has space" }, "tasks.id_prefix"},
		{"empty prefix", func(c *models.GlobalConfig) { c.TaskIDPrefix = "" }, "tasks.id_prefix"},
		{"pad width too large", func(c *models.GlobalConfig) { c.TaskIDPadWidth = 11 }, "tasks.id_pad_width"},
		{"no workers", func(c *models.GlobalConfig) { c.Webhooks.Workers = 0 }, "webhooks.workers"},
		{"no queue", func(c *models.GlobalConfig) { c.Webhooks.QueueSize = -1 }, "webhooks.queue_size"},
		{"no timeout", func(c *models.GlobalConfig) { c.Webhooks.Timeout = 0 }, "webhooks.timeout"},
		{"bad log level", func(c *models.GlobalConfig) { c.LogLevel = "trace" }, "log.level"},
		{"bad log format", func(c *models.GlobalConfig) { c.LogFormat = "xml" }, "log.format"},
		{"negative alerts", func(c *models.GlobalConfig) { c.Alerts.ReviewDays = -1 }, "alerts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cm.ValidateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q", tt.wantErr)
			}
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	if err := cm.ValidateConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
