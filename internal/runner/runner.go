package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Observer is told about every task execution.
type Observer interface {
	TaskRun(task string, err error)
}

// Runner manages and executes scheduled background tasks
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   *slog.Logger
	observer Observer
	wg       sync.WaitGroup
}

// NewRunner creates a new task runner. observer may be nil.
func NewRunner(registry *TaskRegistry, log *slog.Logger, observer Observer) *Runner {
	return &Runner{
		cron:     cron.New(cron.WithSeconds()),
		registry: registry,
		logger:   log.With("component", "runner"),
		observer: observer,
	}
}

// Start schedules every task and blocks until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("starting task runner")

	scheduled := r.registry.Scheduled()
	if len(scheduled) == 0 {
		r.logger.Info("no scheduled tasks")
	}
	for _, task := range scheduled {
		r.logger.Info("registering task", "task", task.Name(), "schedule", task.Schedule())
		if _, err := r.cron.AddFunc(task.Schedule(), func() {
			_ = r.executeTask(ctx, task)
		}); err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name(), err)
		}
	}

	r.cron.Start()
	r.logger.Info("task runner started")

	<-ctx.Done()
	r.Stop()
	return nil
}

// RunOnce executes the named task immediately.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	task, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	return r.executeTask(ctx, task)
}

// executeTask runs a single task with timeout and error handling
func (r *Runner) executeTask(ctx context.Context, task Task) error {
	r.wg.Add(1)
	defer r.wg.Done()

	taskCtx := ctx
	if task.Timeout() > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout())
		defer cancel()
	}

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Error("task failed", "task", task.Name(), "duration", duration, "error", err)
	} else {
		r.logger.Debug("task completed", "task", task.Name(), "duration", duration)
	}
	if r.observer != nil {
		r.observer.TaskRun(task.Name(), err)
	}
	return err
}

// Stop gracefully shuts down the runner
func (r *Runner) Stop() {
	r.logger.Info("stopping task runner")

	ctx := r.cron.Stop()
	r.wg.Wait()
	<-ctx.Done()

	r.logger.Info("task runner stopped")
}
