// Package scheduler runs the background sweeps of the sync server on a
// gocron scheduler, one duration job per task.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chainnotes-sync-server/internal/logging"

	"github.com/go-co-op/gocron/v2"
)

// A run gets this share of the time left until the next tick.
const safetyMargin = 0.95

type TaskName string

const (
	TaskIndexerScan     TaskName = "indexer_scan"
	TaskIndexerPending  TaskName = "indexer_pending"
	TaskTransactionSync TaskName = "transaction_sync"
)

type TaskConfig struct {
	Interval         time.Duration
	StartImmediately bool
}

// Task is one unit of background work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

type activeTask struct {
	name     TaskName
	instance Task
	job      gocron.Job
}

// Daemon schedules the registered tasks at their configured intervals.
type Daemon struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	tasks     map[TaskName]Task
	active    map[TaskName]*activeTask

	started   bool
	stopped   bool
	startLock sync.Mutex
}

func NewDaemon(logger *slog.Logger, tasks map[TaskName]Task, opts ...gocron.SchedulerOption) (*Daemon, error) {
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Daemon{
		scheduler: scheduler,
		logger:    logging.Child(logger, "scheduler"),
		tasks:     tasks,
		active:    make(map[TaskName]*activeTask),
	}, nil
}

// Start schedules every configured task that has a registered
// implementation and starts the scheduler. Calling it twice is a no-op.
func (d *Daemon) Start(configs map[TaskName]TaskConfig) error {
	d.startLock.Lock()
	defer d.startLock.Unlock()

	if d.started || d.stopped {
		d.logger.Warn("scheduler already started")
		return nil
	}

	for name, config := range configs {
		task, ok := d.tasks[name]
		if !ok {
			d.logger.Warn("unknown task, skipping", "task", name)
			continue
		}
		if err := d.schedule(name, task, config); err != nil {
			return err
		}
	}

	d.scheduler.Start()
	d.started = true
	return nil
}

// Stop shuts the scheduler down and waits for running tasks. A stopped
// Daemon cannot be restarted.
func (d *Daemon) Stop() error {
	d.startLock.Lock()
	defer d.startLock.Unlock()

	if d.stopped {
		return nil
	}
	d.stopped = true

	if err := d.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}

// Scheduled lists the tasks that were given a job.
func (d *Daemon) Scheduled() []TaskName {
	d.startLock.Lock()
	defer d.startLock.Unlock()

	names := make([]TaskName, 0, len(d.active))
	for name := range d.active {
		names = append(names, name)
	}
	return names
}

func (d *Daemon) schedule(name TaskName, task Task, config TaskConfig) error {
	if config.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}

	active := &activeTask{name: name, instance: task}

	opts := []gocron.JobOption{
		gocron.WithName(string(name)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if config.StartImmediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	job, err := d.scheduler.NewJob(
		gocron.DurationJob(config.Interval),
		gocron.NewTask(d.runner(active)),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}

	active.job = job
	d.active[name] = active

	d.logger.Info("task scheduled", "task", name, "interval", config.Interval, "start_immediately", config.StartImmediately)
	return nil
}

func (d *Daemon) runner(task *activeTask) func(ctx context.Context) {
	return func(ctx context.Context) {
		start := time.Now()

		if task.job != nil {
			if nextRun, err := task.job.NextRun(); err == nil {
				var cancel context.CancelFunc
				ctx, cancel = contextWithTimeout(ctx, start, nextRun)
				defer cancel()
			}
		}

		err := task.instance.Run(ctx)
		elapsed := time.Since(start)

		if err != nil {
			d.logger.Error("task failed", "task", task.name, "error", err, "duration", elapsed)
			return
		}
		d.logger.Debug("task finished", "task", task.name, "duration", elapsed)
	}
}

func contextWithTimeout(ctx context.Context, now, nextRun time.Time) (context.Context, context.CancelFunc) {
	if nextRun.IsZero() {
		return ctx, func() {}
	}

	untilNext := nextRun.Sub(now)
	if untilNext <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, time.Duration(float64(untilNext)*safetyMargin))
}
