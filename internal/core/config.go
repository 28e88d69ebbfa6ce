// Package core contains the business logic for agentjobs: the task
// lifecycle engine, task id generation and configuration.
package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// ConfigFileName is the configuration file looked up in the base path.
const ConfigFileName = ".agentjobs.yaml"

// validPrefixPattern matches lowercase or uppercase alphanumeric prefixes
// between 1 and 16 characters.
var validPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"text": true, "json": true}

// ConfigurationManager loads and validates .agentjobs.yaml.
type ConfigurationManager interface {
	LoadConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads the
// configuration file from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		TasksDir:       "tasks",
		TaskIDPrefix:   "task",
		TaskIDPadWidth: 3,
		Webhooks: models.WebhookConfig{
			File:      "webhooks.yaml",
			Workers:   4,
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		EventLog: ".agentjobs_events.jsonl",
		Alerts: models.AlertConfig{
			BlockedHours: 24,
			WaitingHours: 8,
			ReviewDays:   3,
			MaxPlanned:   20,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig reads .agentjobs.yaml from the base path. Values can be
// overridden with AGENTJOBS_* environment variables, e.g.
// AGENTJOBS_WEBHOOKS_WORKERS. A missing file yields the defaults.
func (cm *viperConfigManager) LoadConfig() (*models.GlobalConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("AGENTJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range configSettings(cfg) {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.TasksDir = v.GetString("tasks.dir")
	cfg.TaskIDPrefix = v.GetString("tasks.id_prefix")
	cfg.TaskIDPadWidth = v.GetInt("tasks.id_pad_width")
	cfg.Webhooks = models.WebhookConfig{
		File:      v.GetString("webhooks.file"),
		Workers:   v.GetInt("webhooks.workers"),
		QueueSize: v.GetInt("webhooks.queue_size"),
		Timeout:   v.GetDuration("webhooks.timeout"),
	}
	cfg.EventLog = v.GetString("events.log")
	cfg.Alerts = models.AlertConfig{
		BlockedHours: v.GetInt("alerts.blocked_hours"),
		WaitingHours: v.GetInt("alerts.waiting_hours"),
		ReviewDays:   v.GetInt("alerts.review_days"),
		MaxPlanned:   v.GetInt("alerts.max_planned"),
	}
	cfg.LogLevel = strings.ToLower(v.GetString("log.level"))
	cfg.LogFormat = strings.ToLower(v.GetString("log.format"))

	return cfg, nil
}

// configSettings flattens cfg into viper keys.
func configSettings(cfg *models.GlobalConfig) map[string]any {
	return map[string]any{
		"tasks.dir":            cfg.TasksDir,
		"tasks.id_prefix":      cfg.TaskIDPrefix,
		"tasks.id_pad_width":   cfg.TaskIDPadWidth,
		"webhooks.file":        cfg.Webhooks.File,
		"webhooks.workers":     cfg.Webhooks.Workers,
		"webhooks.queue_size":  cfg.Webhooks.QueueSize,
		"webhooks.timeout":     cfg.Webhooks.Timeout,
		"events.log":           cfg.EventLog,
		"alerts.blocked_hours": cfg.Alerts.BlockedHours,
		"alerts.waiting_hours": cfg.Alerts.WaitingHours,
		"alerts.review_days":   cfg.Alerts.ReviewDays,
		"alerts.max_planned":   cfg.Alerts.MaxPlanned,
		"log.level":            cfg.LogLevel,
		"log.format":           cfg.LogFormat,
	}
}

// ValidateConfig checks cfg for invalid values and reports every problem
// found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.TasksDir == "" {
		errs = append(errs, "tasks.dir must not be empty")
	}
	if !validPrefixPattern.MatchString(cfg.TaskIDPrefix) {
		errs = append(errs, fmt.Sprintf("tasks.id_prefix %q is invalid, must match [A-Za-z0-9]{1,16}", cfg.TaskIDPrefix))
	}
	if cfg.TaskIDPadWidth < 0 || cfg.TaskIDPadWidth > 10 {
		errs = append(errs, fmt.Sprintf("tasks.id_pad_width %d is invalid, must be between 0 and 10", cfg.TaskIDPadWidth))
	}
	if cfg.Webhooks.File == "" {
		errs = append(errs, "webhooks.file must not be empty")
	}
	if cfg.Webhooks.Workers <= 0 {
		errs = append(errs, fmt.Sprintf("webhooks.workers must be positive, got %d", cfg.Webhooks.Workers))
	}
	if cfg.Webhooks.QueueSize <= 0 {
		errs = append(errs, fmt.Sprintf("webhooks.queue_size must be positive, got %d", cfg.Webhooks.QueueSize))
	}
	if cfg.Webhooks.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("webhooks.timeout must be positive, got %s", cfg.Webhooks.Timeout))
	}
	if cfg.Alerts.BlockedHours < 0 || cfg.Alerts.WaitingHours < 0 || cfg.Alerts.ReviewDays < 0 || cfg.Alerts.MaxPlanned < 0 {
		errs = append(errs, "alerts thresholds must be non-negative")
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validLogFormats[cfg.LogFormat] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: text, json", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed:\n  - %s", models.ErrValidation, strings.Join(errs, "\n  - "))
	}
	return nil
}
