// Package cron implements periodic and cron-expression job scheduling
// used internally by the running core: the Optimizer's deferred-sweep
// trigger and MemoryBridge's background health probe cadence. Jobs
// (CronSchedule{Kind, EveryMS, Expr}, AddJob(name, schedule, message,
// deliver, channel, to)) persist to a JSON store file, using adhocore/gronx
// for cron-expression matching instead of a hand-rolled parser.
package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/corvidrun/corvid/pkg/logger"
)

// CronSchedule is either a fixed interval (EveryMS) or a cron
// expression (Expr); Kind selects which field is authoritative.
type CronSchedule struct {
	Kind    string `json:"kind"` // "every" or "cron"
	EveryMS *int64 `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// Job is one scheduled task.
type Job struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Schedule CronSchedule `json:"schedule"`
	Message  string       `json:"message"`
	Deliver  bool         `json:"deliver"`
	Channel  string       `json:"channel,omitempty"`
	To       string       `json:"to,omitempty"`
	Enabled  bool         `json:"enabled"`
	LastRun  *time.Time   `json:"last_run,omitempty"`
}

// RunFunc is invoked for a due job; typically a closure over Brain.Chat
// or the SkillLibrary optimizer sweep.
type RunFunc func(job Job)

// Service persists jobs to a jobs.json store file guarded by a mutex,
// since multiple goroutines in the running core may touch it.
type Service struct {
	mu        sync.Mutex
	storePath string
	jobs      []Job
	log       *logger.Logger
}

// NewCronService opens (or initializes) the job store at storePath. The
// second constructor parameter is reserved for an optional RunFunc driving
// the background Runner; callers that only inspect or edit jobs pass nil.
func NewCronService(storePath string, _ RunFunc) *Service {
	s := &Service{storePath: storePath, log: logger.Default()}
	_ = s.load()
	return s
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		s.jobs = nil
		return nil
	}
	if err != nil {
		return err
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("cron: corrupt job store %s: %w", s.storePath, err)
	}
	s.jobs = jobs
	return nil
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0o644)
}

// AddJob appends a new enabled job and persists the store.
func (s *Service) AddJob(name string, schedule CronSchedule, message string, deliver bool, channel, to string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := Job{
		ID:       uuid.NewString(),
		Name:     name,
		Schedule: schedule,
		Message:  message,
		Deliver:  deliver,
		Channel:  channel,
		To:       to,
		Enabled:  true,
	}
	s.jobs = append(s.jobs, job)
	if err := s.saveLocked(); err != nil {
		return Job{}, fmt.Errorf("cron: save job store: %w", err)
	}
	return job, nil
}

// List returns a snapshot of every job.
func (s *Service) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Remove deletes the job with the given id.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("cron: no job with id %s", id)
}

// SetEnabled toggles a job's enabled flag.
func (s *Service) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.ID == id {
			s.jobs[i].Enabled = enabled
			return s.saveLocked()
		}
	}
	return fmt.Errorf("cron: no job with id %s", id)
}

func (s *Service) markRun(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.jobs {
		if j.ID == id {
			s.jobs[i].LastRun = &at
		}
	}
	_ = s.saveLocked()
}

// Runner polls a Service on a fixed resolution, firing run for every due,
// enabled job. It drives the Optimizer's scheduled sweeps and the
// MemoryBridge health probe, in addition to user-defined cron jobs.
type Runner struct {
	service    *Service
	run        RunFunc
	resolution time.Duration
	log        *logger.Logger
}

// NewRunner builds a Runner checking for due jobs every resolution.
func NewRunner(service *Service, run RunFunc, resolution time.Duration) *Runner {
	if resolution <= 0 {
		resolution = time.Second
	}
	return &Runner{service: service, run: run, resolution: resolution, log: logger.Default()}
}

// Run blocks, firing due jobs until ctx is done.
func (r *Runner) Run(ctx doner) {
	ticker := time.NewTicker(r.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(time.Now())
		}
	}
}

// doner is the subset of context.Context Runner depends on, matching the
// cooperative-cancellation idiom used across the core components.
type doner interface {
	Done() <-chan struct{}
}

func (r *Runner) tick(now time.Time) {
	for _, job := range r.service.List() {
		if !job.Enabled {
			continue
		}
		if !due(job, now) {
			continue
		}
		r.service.markRun(job.ID, now)
		if r.run != nil {
			r.run(job)
		}
	}
}

func due(job Job, now time.Time) bool {
	switch job.Schedule.Kind {
	case "every":
		if job.Schedule.EveryMS == nil {
			return false
		}
		interval := time.Duration(*job.Schedule.EveryMS) * time.Millisecond
		if job.LastRun == nil {
			return true
		}
		return now.Sub(*job.LastRun) >= interval
	case "cron":
		if job.Schedule.Expr == "" {
			return false
		}
		ok, err := gronx.IsDue(job.Schedule.Expr, now)
		return err == nil && ok
	default:
		return false
	}
}
