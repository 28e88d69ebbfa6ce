package models

import "time"

// AlertConfig holds thresholds for lifecycle alerts.
type AlertConfig struct {
	BlockedHours int `yaml:"blocked_hours" mapstructure:"blocked_hours"`
	WaitingHours int `yaml:"waiting_hours" mapstructure:"waiting_hours"`
	ReviewDays   int `yaml:"review_days" mapstructure:"review_days"`
	MaxPlanned   int `yaml:"max_planned" mapstructure:"max_planned"`
}

// WebhookConfig configures the notification dispatcher.
type WebhookConfig struct {
	File      string        `yaml:"file" mapstructure:"file"`
	Workers   int           `yaml:"workers" mapstructure:"workers"`
	QueueSize int           `yaml:"queue_size" mapstructure:"queue_size"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GlobalConfig holds system-wide settings read from .agentjobs.yaml via Viper.
type GlobalConfig struct {
	TasksDir       string        `yaml:"tasks_dir" mapstructure:"tasks_dir"`
	TaskIDPrefix   string        `yaml:"task_id_prefix" mapstructure:"task_id_prefix"`
	TaskIDPadWidth int           `yaml:"task_id_pad_width" mapstructure:"task_id_pad_width"`
	Webhooks       WebhookConfig `yaml:"webhooks" mapstructure:"webhooks"`
	EventLog       string        `yaml:"event_log" mapstructure:"event_log"`
	Alerts         AlertConfig   `yaml:"alerts" mapstructure:"alerts"`
	LogLevel       string        `yaml:"log_level" mapstructure:"log_level"`
	LogFormat      string        `yaml:"log_format" mapstructure:"log_format"`
}
