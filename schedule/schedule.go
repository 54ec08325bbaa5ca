// Package schedule triggers flow runs on cron expressions.
//
// Example:
//
//	s := schedule.New(schedule.WithLogger(logger))
//	err := s.Add("nightly-checkout", "0 2 * * *",
//	    schedule.RunEngine(engine, func() *checkout.Sale { return &checkout.Sale{} }))
//	s.Start()
//	defer s.Stop()
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dshills/simpleflow/flow"
)

var (
	// ErrDuplicate is returned by Add when the name is already scheduled.
	ErrDuplicate = errors.New("schedule already exists")

	// ErrUnknown is returned for a name that is not scheduled.
	ErrUnknown = errors.New("unknown schedule")
)

// Job is the work triggered by a schedule.
type Job func(ctx context.Context) error

// Entry describes a scheduled job.
type Entry struct {
	Name     string
	Spec     string
	Next     time.Time
	Prev     time.Time
	Runs     int
	Failures int
}

type job struct {
	id       cron.EntryID
	spec     string
	fn       Job
	runs     int
	failures int
}

// Scheduler runs jobs on cron schedules. Standard five-field expressions and
// descriptors such as "@hourly" or "@every 5m" are accepted.
//
// A job that is still running when its next activation comes is skipped,
// so runs of one schedule never overlap.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	loc     *time.Location
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Nil uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocation interprets schedules in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithJobTimeout bounds every triggered job. 0 means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: slog.Default(),
		loc:    time.Local,
		jobs:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Add schedules job under name.
func (s *Scheduler) Add(name, spec string, fn Job) error {
	if name == "" {
		return errors.New("schedule name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("schedule %q: job cannot be nil", name)
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	j := &job{spec: spec, fn: fn}
	j.id = s.cron.Schedule(sched, cron.FuncJob(func() { s.run(name, j) }))
	s.jobs[name] = j
	return nil
}

// Remove unschedules name. A run in progress is not interrupted.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	s.cron.Remove(j.id)
	delete(s.jobs, name)
	return nil
}

// Trigger runs the job of name now, in the calling goroutine, and returns
// its error.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return s.exec(ctx, name, j)
}

// Entries returns the scheduled jobs sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, j := range s.jobs {
		ce := s.cron.Entry(j.id)
		out = append(out, Entry{
			Name:     name,
			Spec:     j.spec,
			Next:     ce.Next,
			Prev:     ce.Prev,
			Runs:     j.runs,
			Failures: j.failures,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.Entries()))
}

// Stop stops triggering new runs, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, j *job) {
	// Errors are logged and counted by exec.
	_ = s.exec(s.ctx, name, j)
}

func (s *Scheduler) exec(ctx context.Context, name string, j *job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger := s.logger.With("schedule", name)
	ctx = flow.ContextWithLogger(ctx, logger)
	start := time.Now()
	err := j.fn(ctx)

	s.mu.Lock()
	j.runs++
	if err != nil {
		j.failures++
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("scheduled run completed", "duration", time.Since(start))
	return nil
}

// RunEngine returns a job that runs engine with a fresh run context from
// newContext on every activation.
func RunEngine[C flow.Context](engine *flow.Engine[C], newContext func() C) Job {
	return func(ctx context.Context) error {
		report, err := engine.Execute(ctx, newContext())
		if report != nil {
			flow.LoggerFrom(ctx).Debug("run finished",
				"run_id", report.RunID,
				"flow", report.Flow,
				"pruned", len(report.Pruned),
			)
		}
		return err
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
