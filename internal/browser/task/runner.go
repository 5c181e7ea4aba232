// internal/browser/task/runner.go
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a deferred unit of work for a tab's worker.
type Task struct {
	Name string
	fn   func()
}

// New binds fn into a named task. The name is only used for logging.
func New(name string, fn func()) Task {
	return Task{Name: name, fn: fn}
}

// Runner is a FIFO task queue drained by a single worker goroutine. Tasks run
// to completion one at a time, in the order they were scheduled. Schedule is
// safe to call from any goroutine.
type Runner struct {
	logger *zap.Logger
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	quit   bool
	timers map[*time.Timer]struct{}
	done   int
}

// NewRunner creates an idle runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		logger: logger.Named("task"),
		timers: map[*time.Timer]struct{}{},
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Schedule appends t to the queue and wakes the worker. Tasks scheduled after
// Quit are dropped.
func (r *Runner) Schedule(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quit {
		r.logger.Debug("Dropping task scheduled after quit", zap.String("task", t.Name))
		return
	}
	r.queue = append(r.queue, t)
	r.cond.Signal()
}

// ScheduleAfter schedules t once delay has elapsed. The timer fires on its own
// goroutine, so t still runs on the worker behind anything queued before it
// fires.
func (r *Runner) ScheduleAfter(delay time.Duration, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quit {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, timer)
		r.mu.Unlock()
		r.Schedule(t)
	})
	r.timers[timer] = struct{}{}
}

// ClearPending discards every task not yet started and returns how many were
// dropped. A running task is not interrupted.
func (r *Runner) ClearPending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.queue)
	r.queue = nil
	for t := range r.timers {
		if t.Stop() {
			n++
		}
		delete(r.timers, t)
	}
	if n > 0 {
		r.logger.Debug("Cleared pending tasks", zap.Int("count", n))
	}
	return n
}

// Quit makes Run return once the current task finishes. Pending tasks are
// discarded and timers are stopped.
func (r *Runner) Quit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quit = true
	dropped := len(r.queue)
	r.queue = nil
	for t := range r.timers {
		if t.Stop() {
			dropped++
		}
		delete(r.timers, t)
	}
	if dropped > 0 {
		r.logger.Debug("Dropped pending tasks on quit", zap.Int("count", dropped))
	}
	r.cond.Broadcast()
}

// Pending reports the number of queued tasks.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Completed reports how many tasks have run.
func (r *Runner) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Run executes tasks until Quit is called or ctx is done, blocking while the
// queue is empty. It returns ctx.Err() when stopped by the context.
func (r *Runner) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.Quit)
	defer stop()

	r.logger.Debug("Task runner started")
	for {
		t, ok := r.next()
		if !ok {
			r.logger.Debug("Task runner stopped", zap.Int("completed", r.Completed()))
			return ctx.Err()
		}
		r.run(t)
	}
}

func (r *Runner) next() (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) == 0 && !r.quit {
		r.cond.Wait()
	}
	if r.quit {
		return Task{}, false
	}
	t := r.queue[0]
	r.queue[0] = Task{}
	r.queue = r.queue[1:]
	return t, true
}

func (r *Runner) run(t Task) {
	t.fn()
	r.mu.Lock()
	r.done++
	r.mu.Unlock()
}

// RunUntilIdle runs queued tasks on the calling goroutine until the queue is
// empty, including tasks they schedule. It must not be used while Run is
// active. It returns the number of tasks run.
func (r *Runner) RunUntilIdle() int {
	n := 0
	for {
		r.mu.Lock()
		if r.quit || len(r.queue) == 0 {
			r.mu.Unlock()
			return n
		}
		t := r.queue[0]
		r.queue[0] = Task{}
		r.queue = r.queue[1:]
		r.mu.Unlock()
		r.run(t)
		n++
	}
}
