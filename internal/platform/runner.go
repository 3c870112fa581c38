package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TaskStatus describes a run loop that is running or has finished with an
// error.
type TaskStatus struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

type RunnerHooks struct {
	// OnTaskStopped is called after a loop returns on its own, with the
	// error it returned. It is not called for loops stopped by Stop.
	OnTaskStopped func(name string, err error)
}

// Runner owns named background loops. A loop that returns is not
// restarted; its error is kept until the name is started or stopped again.
type Runner struct {
	hooks RunnerHooks

	mu       sync.Mutex
	tasks    map[string]*runnerTask
	finished map[string]TaskStatus
}

type runnerTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner() *Runner {
	return NewRunnerWithHooks(RunnerHooks{})
}

func NewRunnerWithHooks(hooks RunnerHooks) *Runner {
	return &Runner{
		hooks:    hooks,
		tasks:    make(map[string]*runnerTask),
		finished: make(map[string]TaskStatus),
	}
}

func (r *Runner) Start(name string, run func(ctx context.Context) error) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if run == nil {
		return errors.New("task runner is required")
	}

	r.mu.Lock()
	if _, exists := r.tasks[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	delete(r.finished, name)
	ctx, cancel := context.WithCancel(context.Background())
	task := &runnerTask{cancel: cancel, done: make(chan struct{})}
	r.tasks[name] = task
	r.mu.Unlock()

	go r.runTask(ctx, name, task, run)
	return nil
}

func (r *Runner) runTask(ctx context.Context, name string, task *runnerTask, run func(ctx context.Context) error) {
	err := run(ctx)
	stopped := ctx.Err() != nil

	r.mu.Lock()
	if current, ok := r.tasks[name]; ok && current == task {
		if err != nil && !stopped {
			r.finished[name] = TaskStatus{Name: name, LastError: err.Error()}
		}
		delete(r.tasks, name)
	}
	r.mu.Unlock()
	task.cancel()
	close(task.done)

	if !stopped && r.hooks.OnTaskStopped != nil {
		r.hooks.OnTaskStopped(name, err)
	}
}

// Stop cancels a loop and waits for it to return. Stopping an unknown name
// is a no-op.
func (r *Runner) Stop(name string) {
	r.mu.Lock()
	task, ok := r.tasks[name]
	delete(r.finished, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

func (r *Runner) StopAll() {
	r.mu.Lock()
	tasks := make([]*runnerTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.finished = make(map[string]TaskStatus)
	r.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

func (r *Runner) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[name]
	return ok
}

func (r *Runner) Tasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) Children() []TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskStatus, 0, len(r.tasks)+len(r.finished))
	for name := range r.tasks {
		out = append(out, TaskStatus{Name: name, Running: true})
	}
	for name, status := range r.finished {
		if _, active := r.tasks[name]; active {
			continue
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
