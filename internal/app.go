// Package internal provides the App struct that wires all components of
// agentjobs together and builds the CLI over them.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/cli"
	"github.com/valter-silva-au/agentjobs/internal/core"
	"github.com/valter-silva-au/agentjobs/internal/observability"
	"github.com/valter-silva-au/agentjobs/internal/otel"
	"github.com/valter-silva-au/agentjobs/internal/storage"
	"github.com/valter-silva-au/agentjobs/internal/webhooks"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// App holds every service dependency of agentjobs.
type App struct {
	BasePath string
	Config   *models.GlobalConfig
	Logger   *slog.Logger

	// Storage layer
	TaskStore storage.TaskStore
	SubStore  storage.SubscriptionStore

	// Core services
	IDGen   core.TaskIDGenerator
	TaskMgr core.TaskManager

	// Notification
	Dispatcher *webhooks.Dispatcher

	// Observability
	Telemetry   *otel.Provider
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
}

// Options tune NewApp. The zero value logs to stderr.
type Options struct {
	LogOutput io.Writer
}

// NewApp loads configuration from basePath and wires all components.
func NewApp(basePath string, opts Options) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	cfgMgr := core.NewConfigurationManager(basePath)
	cfg, err := cfgMgr.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfgMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	app.Logger = NewLogger(opts.LogOutput, cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", models.ErrStoreFailure, basePath, err)
	}

	// --- Observability ---
	eventLog, err := observability.NewJSONLEventLog(app.resolve(cfg.EventLog))
	if err != nil {
		return nil, err
	}
	app.EventLog = eventLog
	app.MetricsCalc = observability.NewMetricsCalculator(eventLog)
	app.AlertEngine = observability.NewAlertEngine(eventLog, observability.ThresholdsFromConfig(cfg.Alerts))

	app.Telemetry, err = otel.NewProvider(context.Background(), "agentjobs")
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("creating metrics provider: %w", err)
	}
	deliveryMetrics, err := webhooks.NewDeliveryMetrics(app.Telemetry.Meter())
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("creating delivery metrics: %w", err)
	}

	// --- Storage layer ---
	tasksDir := app.resolve(cfg.TasksDir)
	app.TaskStore, err = storage.NewTaskStore(tasksDir, app.Logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.SubStore = storage.NewSubscriptionStore(app.resolve(cfg.Webhooks.File))

	// --- Notification ---
	app.Dispatcher = webhooks.NewDispatcher(app.SubStore, webhooks.Options{
		Workers:   cfg.Webhooks.Workers,
		QueueSize: cfg.Webhooks.QueueSize,
		Timeout:   cfg.Webhooks.Timeout,
		Logger:    app.Logger.With("component", "webhooks"),
		Metrics:   deliveryMetrics,
		Events:    eventLog,
	})

	// --- Core services ---
	app.IDGen = core.NewTaskIDGenerator(tasksDir, cfg.TaskIDPrefix, cfg.TaskIDPadWidth)
	store := &taskStoreAdapter{store: app.TaskStore}
	app.TaskMgr = core.NewTaskManager(store, app.IDGen, app.Dispatcher, eventLog, app.Logger.With("component", "engine"))

	if err := otel.RegisterTaskGauge(app.Telemetry.Meter(), app.countTasks); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("registering task gauge: %w", err)
	}

	return app, nil
}

// RootCmd builds the CLI over the app's services.
func (a *App) RootCmd(version cli.VersionInfo) *cobra.Command {
	return cli.NewRootCmd(&cli.Services{
		TaskMgr:        a.TaskMgr,
		Webhooks:       a.Dispatcher,
		MetricsCalc:    a.MetricsCalc,
		AlertEngine:    a.AlertEngine,
		ProjectInit:    core.NewProjectInitializer(),
		MetricsHandler: a.Telemetry.Handler(),
		Logger:         a.Logger,
		Version:        version,
	})
}

// Close drains pending webhook deliveries, then releases the event log and
// metrics provider. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down metrics provider: %w", err))
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.BasePath, path)
}

func (a *App) countTasks(context.Context) (map[string]int64, error) {
	tasks, _, err := a.TaskStore.List()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[string(s)] = 0
	}
	for _, t := range tasks {
		counts[string(t.Status)]++
	}
	return counts, nil
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ResolveBasePath determines the agentjobs data directory. It checks
// AGENTJOBS_HOME, then walks up from the working directory looking for
// .agentjobs.yaml, then falls back to the working directory.
func ResolveBasePath() string {
	if home := os.Getenv("AGENTJOBS_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

// --- Adapters ---

// taskStoreAdapter adapts storage.TaskStore to core.TaskStore. The store
// logs corrupt documents; the engine never sees them.
type taskStoreAdapter struct {
	store storage.TaskStore
}

func (a *taskStoreAdapter) Load(taskID string) (*models.Task, error) {
	return a.store.Load(taskID)
}

func (a *taskStoreAdapter) Save(task *models.Task) error {
	return a.store.Save(task)
}

func (a *taskStoreAdapter) Exists(taskID string) (bool, error) {
	return a.store.Exists(taskID)
}

func (a *taskStoreAdapter) List() ([]*models.Task, error) {
	tasks, _, err := a.store.List()
	return tasks, err
}
