// Package scheduler runs periodic simulation sweeps over the feed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/feedsim/internal/engine"
	"github.com/roach88/feedsim/internal/feed"
)

// Simulator is the part of the engine a sweep drives.
type Simulator interface {
	LoadFeed(ctx context.Context) ([]feed.Post, error)
	SimulateAll(ctx context.Context, mode feed.Mode) ([]*engine.SimulationReport, error)
}

var _ Simulator = (*engine.Engine)(nil)

// Job represents a scheduled task.
type Job func(ctx context.Context) error

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

type job struct {
	id       cron.EntryID
	schedule string
	run      Job
}

// Scheduler manages periodic jobs.
//
// Thread-safety: all methods are safe for concurrent use.
type Scheduler struct {
	sim     Simulator
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]job
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithTimeout bounds one job run. The default is five minutes.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLocation sets the time zone schedules are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = cron.New(cron.WithLocation(loc)) }
}

// New creates a scheduler driving sim.
func New(sim Simulator, opts ...Option) *Scheduler {
	s := &Scheduler{
		sim:     sim,
		cron:    cron.New(),
		logger:  slog.Default(),
		timeout: 5 * time.Minute,
		jobs:    make(map[string]job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepName is the job name used by AddSweep for mode.
func SweepName(mode feed.Mode) string {
	return "sweep-" + string(mode)
}

// AddSweep schedules a job that reloads the feed and simulates every post
// in mode. spec is a five-field cron expression or a descriptor such as
// "@every 30s".
func (s *Scheduler) AddSweep(spec string, mode feed.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid sweep mode %q", mode)
	}
	return s.AddJob(SweepName(mode), spec, s.sweep(mode))
}

func (s *Scheduler) sweep(mode feed.Mode) Job {
	return func(ctx context.Context) error {
		posts, err := s.sim.LoadFeed(ctx)
		if err != nil {
			return fmt.Errorf("load feed: %w", err)
		}
		reports, err := s.sim.SimulateAll(ctx, mode)

		simulated := 0
		for _, r := range reports {
			if r != nil {
				simulated++
			}
		}
		s.logger.Info("sweep finished",
			"mode", mode,
			"loaded", len(posts),
			"simulated", simulated,
			"failed", err != nil,
		)
		if err != nil {
			return fmt.Errorf("simulate: %w", err)
		}
		return nil
	}
}

// AddJob schedules run under name. A job with the same name is replaced.
func (s *Scheduler) AddJob(name, spec string, run Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { _ = s.execute(name, run) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.id)
	}
	s.jobs[name] = job{id: id, schedule: spec, run: run}
	s.logger.Info("job added", "job", name, "schedule", spec)
	return nil
}

// RemoveJob unschedules a job. Unknown names are ignored.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		s.cron.Remove(j.id)
		delete(s.jobs, name)
		s.logger.Info("job removed", "job", name)
	}
}

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// RunNow executes a scheduled job immediately in the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(name, j.run)
}

func (s *Scheduler) execute(name string, run Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug("job started", "job", name)
	if err := run(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return err
	}
	s.logger.Info("job completed", "job", name, "duration", time.Since(start))
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running
// jobs complete.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")
	return s.cron.Stop()
}

// Jobs lists the scheduled jobs ordered by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[cron.EntryID]cron.Entry)
	for _, e := range s.cron.Entries() {
		entries[e.ID] = e
	}

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		e := entries[j.id]
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: j.schedule,
			NextRun:  e.Next,
			LastRun:  e.Prev,
		})
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name < infos[b].Name })
	return infos
}
