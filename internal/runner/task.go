package runner

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Task is a unit of background work run on its cron schedule or on demand.
type Task interface {
	Name() string
	// Schedule is a six-field cron expression. Empty means on demand only.
	Schedule() string
	// Timeout bounds one run. Zero means no limit.
	Timeout() time.Duration
	Run(ctx context.Context) error
}

// TaskRegistry is a set of tasks keyed by name.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]Task)}
}

// Register adds tasks, replacing any already registered under the same name.
func (r *TaskRegistry) Register(tasks ...Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		r.tasks[t.Name()] = t
	}
}

func (r *TaskRegistry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns the registered task names in sorted order.
func (r *TaskRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scheduled returns the tasks that have a schedule, ordered by name.
func (r *TaskRegistry) Scheduled() []Task {
	var out []Task
	for _, name := range r.Names() {
		if t, ok := r.Get(name); ok && t.Schedule() != "" {
			out = append(out, t)
		}
	}
	return out
}
