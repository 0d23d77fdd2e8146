// Package scheduler implements the cooperative single-threaded task
// dispatcher: it wakes on every task completion and on every 10-50ms
// timer tick, draining the SignalBus on each tick before picking its
// next task so reflex handlers and state-stack updates are always
// processed first within a tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/statestack"
)

// Coroutine is a cooperatively scheduled unit of work. It must observe
// ctx.Done() at every suspension point (after every blocking call the
// task itself awaits) and at explicit CheckInterrupt calls; the
// Scheduler cannot forcibly preempt a synchronous block.
type Coroutine func(ctx context.Context) (any, error)

// Task is one unit of work coalesced by Name.
type Task struct {
	Name     string
	Priority statestack.Priority
	Run      Coroutine
}

type runningTask struct {
	name     string
	priority statestack.Priority
	cancel   context.CancelFunc
}

type taskResult struct {
	name    string
	result  any
	err     error
}

// DefaultTick is the tick period; 20ms splits the difference between
// responsiveness and CPU overhead within a 10-50ms working range.
const DefaultTick = 20 * time.Millisecond

// Scheduler is the cooperative dispatcher.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]Task
	order   []string // insertion order, for FIFO among equal priorities
	current *runningTask

	stack *statestack.Stack
	bus   *signalbus.Bus
	log   *logger.Logger

	tick        time.Duration
	completions chan taskResult
	stopCh      chan struct{}
	stoppedOnce sync.Once
	wg          sync.WaitGroup
}

// New builds a Scheduler driven by stack (to read the current top
// priority) and bus (drained once per tick before a new task is picked).
func New(stack *statestack.Stack, bus *signalbus.Bus, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		pending:     make(map[string]Task),
		stack:       stack,
		bus:         bus,
		log:         logger.Default(),
		tick:        tick,
		completions: make(chan taskResult, 16),
		stopCh:      make(chan struct{}),
	}
}

// Schedule enqueues a task. A task already pending under the same name
// is replaced (coalesced to the most recent); a task already running
// under that name keeps running until it completes or is preempted.
func (s *Scheduler) Schedule(name string, priority statestack.Priority, run Coroutine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[name]; !exists {
		s.order = append(s.order, name)
	}
	s.pending[name] = Task{Name: name, Priority: priority, Run: run}
}

// Run drives the scheduler loop until ctx is cancelled or StopAll is
// called. It is meant to be launched once, typically in its own
// goroutine by the process that owns the core runtime.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.StopAll()
			return
		case <-s.stopCh:
			return
		case res := <-s.completions:
			s.onCompletion(res)
		case <-ticker.C:
			s.bus.Dispatch()
			s.tickOnce(ctx)
		}
	}
}

func (s *Scheduler) onCompletion(res taskResult) {
	s.mu.Lock()
	if s.current != nil && s.current.name == res.name {
		s.current = nil
	}
	s.mu.Unlock()

	success := res.err == nil
	if !success {
		s.log.WarnCF("scheduler", "task completed with error", map[string]any{"name": res.name, "error": res.err.Error()})
	}
	s.stack.Complete(success, res.result)
}

// tickOnce picks the next task to run, preempting the current one at its
// next suspension point if a higher-priority task is waiting.
func (s *Scheduler) tickOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return
	}

	bestName, bestIdx := "", -1
	var bestPriority statestack.Priority
	for i, name := range s.order {
		t, ok := s.pending[name]
		if !ok {
			continue
		}
		if bestIdx == -1 || t.Priority > bestPriority {
			bestName, bestPriority, bestIdx = name, t.Priority, i
		}
	}
	if bestIdx == -1 {
		return
	}

	if s.current != nil {
		if bestPriority <= s.current.priority {
			return
		}
		// A strictly higher-priority task preempts: cancel the current
		// task's context. It observes this at its next suspension point;
		// no task is interrupted mid-synchronous-block.
		s.current.cancel()
	}

	t := s.pending[bestName]
	delete(s.pending, bestName)
	s.order = removeName(s.order, bestName)

	taskCtx, cancel := context.WithCancel(ctx)
	s.current = &runningTask{name: t.Name, priority: t.Priority, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := t.Run(taskCtx)
		select {
		case s.completions <- taskResult{name: t.Name, result: result, err: err}:
		case <-s.stopCh:
		}
	}()
}

func removeName(order []string, name string) []string {
	for i, n := range order {
		if n == name {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// StopAll cancels every running and pending task. Cancellation of the
// in-flight task is cooperative — it observes ctx.Done() at its next
// suspension point.
func (s *Scheduler) StopAll() {
	s.stoppedOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	if s.current != nil {
		s.current.cancel()
		s.current = nil
	}
	s.pending = make(map[string]Task)
	s.order = nil
	s.mu.Unlock()
}

// CurrentTask reports the name of the task presently running, if any.
func (s *Scheduler) CurrentTask() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.name, true
}

// PendingCount reports how many tasks are queued awaiting dispatch.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
