// Package scheduler runs the reminder checks on cron timers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/logging"
)

// ReminderChecker performs one reminder check for a milestone.
type ReminderChecker interface {
	RunCheck(ctx context.Context, m application.Milestone) (application.ReminderReport, error)
}

// Job binds a milestone to the cron spec that triggers its check.
type Job struct {
	Milestone application.Milestone
	Spec      string
}

// Config configures a Runner.
type Config struct {
	DaySpec  string
	HourSpec string
	// TickTimeout bounds a single check. Zero disables the bound.
	TickTimeout time.Duration
	Location    *time.Location
}

// Default specs.
const (
	DefaultDaySpec  = "@every 1h"
	DefaultHourSpec = "@every 10m"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner owns the cron timers for the reminder checks. A tick that fires
// while the previous tick of the same timer is still running is skipped.
type Runner struct {
	checker ReminderChecker
	jobs    []Job
	timeout time.Duration
	loc     *time.Location
	logger  *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRunner validates the specs and returns a stopped runner.
func NewRunner(checker ReminderChecker, cfg Config, logger *slog.Logger) (*Runner, error) {
	if checker == nil {
		return nil, errors.New("scheduler: reminder checker is required")
	}
	if cfg.DaySpec == "" {
		cfg.DaySpec = DefaultDaySpec
	}
	if cfg.HourSpec == "" {
		cfg.HourSpec = DefaultHourSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	jobs := []Job{
		{Milestone: application.DayMilestone, Spec: cfg.DaySpec},
		{Milestone: application.HourMilestone, Spec: cfg.HourSpec},
	}
	for _, j := range jobs {
		if _, err := parser.Parse(j.Spec); err != nil {
			return nil, fmt.Errorf("scheduler: invalid spec %q for %s reminders: %w", j.Spec, j.Milestone.Name, err)
		}
	}

	return &Runner{
		checker: checker,
		jobs:    jobs,
		timeout: cfg.TickTimeout,
		loc:     cfg.Location,
		logger:  logger.With("component", "scheduler"),
	}, nil
}

// Jobs returns the configured timers.
func (r *Runner) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Running reports whether the timers are active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cron != nil
}

// Start schedules the timers. Ticks run with a context derived from ctx, so
// cancelling ctx aborts in-flight checks. Starting a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	base, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(r.loc),
		cron.WithLogger(cronLogger{logger: r.logger}),
		cron.WithChain(r.wrappers()...),
	)
	for _, j := range r.jobs {
		if _, err := c.AddJob(j.Spec, r.job(base, j.Milestone)); err != nil {
			cancel()
			return fmt.Errorf("scheduler: schedule %s reminders: %w", j.Milestone.Name, err)
		}
	}
	c.Start()

	r.cron = c
	r.cancel = cancel
	r.logger.InfoContext(ctx, "reminder scheduler started", "day_spec", r.jobs[0].Spec, "hour_spec", r.jobs[1].Spec)
	return nil
}

// Stop halts the timers, cancels in-flight checks and waits for them to
// return or for ctx to expire. The runner can be started again afterwards.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	done := c.Stop()
	cancel()

	select {
	case <-done.Done():
		r.logger.InfoContext(ctx, "reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for running checks: %w", ctx.Err())
	}
}

// RunNow performs one check for the named milestone outside the timers.
func (r *Runner) RunNow(ctx context.Context, milestone string) (application.ReminderReport, error) {
	m, ok := application.MilestoneByName(milestone)
	if !ok {
		return application.ReminderReport{}, fmt.Errorf("scheduler: unknown milestone %q", milestone)
	}
	return r.check(ctx, m)
}

// wrappers keeps Recover inside the guard: SkipIfStillRunning only hands its
// token back when the wrapped job returns normally.
func (r *Runner) wrappers() []cron.JobWrapper {
	l := cronLogger{logger: r.logger}
	return []cron.JobWrapper{cron.SkipIfStillRunning(l), cron.Recover(l)}
}

func (r *Runner) job(base context.Context, m application.Milestone) cron.Job {
	return cron.FuncJob(func() {
		if base.Err() != nil {
			return
		}
		_, _ = r.check(base, m)
	})
}

func (r *Runner) check(ctx context.Context, m application.Milestone) (application.ReminderReport, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ctx = logging.ContextWithLogger(ctx, r.logger.With("milestone", m.Name))
	// RunCheck logs its own outcome.
	return r.checker.RunCheck(ctx, m)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
