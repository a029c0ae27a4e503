package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is one run of a periodic job. The context is cancelled when the
// task is removed or the scheduler stops.
type TaskFn func(ctx context.Context) error

// TaskInfo is a snapshot of a registered task for the admin API.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Failures int64         `json:"failures"`
	LastRun  time.Time     `json:"last_run"`
	LastErr  string        `json:"last_error,omitempty"`
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	info TaskInfo
}

func (t *task) record(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Runs++
	t.info.LastRun = at
	t.info.LastErr = ""
	if err != nil {
		t.info.Failures++
		t.info.LastErr = err.Error()
	}
}

// Scheduler runs named periodic tasks. Runs of the same task never overlap.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	ctx     context.Context
	stop    context.CancelFunc
	logger  *zap.Logger
	stopped bool
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		stop:   stop,
		logger: logger,
	}
}

// Every registers fn to run each interval, replacing any task with the same
// name. Calls after Stop are ignored.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.tasks[name]; ok {
		old.cancel()
		delete(s.tasks, name)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{
		cancel: cancel,
		done:   make(chan struct{}),
		info:   TaskInfo{Name: name, Interval: interval},
	}
	s.tasks[name] = t
	go s.loop(ctx, t, name, interval, fn)
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) loop(ctx context.Context, t *task, name string, interval time.Duration, fn TaskFn) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := s.run(ctx, name, fn)
			t.record(time.Now(), err)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduler task failed", zap.String("task", name), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, name string, fn TaskFn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked", zap.String("task", name), zap.Any("recover", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Remove stops a task by name. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()
	if ok {
		t.cancel()
		<-t.done
	}
}

// Stop cancels every task and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	tasks := make([]*task, 0, len(s.tasks))
	for name, t := range s.tasks {
		tasks = append(tasks, t)
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	s.stop()
	for _, t := range tasks {
		<-t.done
	}
}

// Tasks returns the registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, t.info)
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
