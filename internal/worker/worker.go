package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/telemetry"
)

// Config holds scheduler configuration
type Config struct {
	// DispatchSchedule runs ProcessScheduledReminders. Cron syntax, with or
	// without a leading seconds field. Empty disables the job.
	DispatchSchedule string

	// OverdueSchedule runs MarkInvoicesOverdue. Empty disables the job.
	OverdueSchedule string

	// Location is the zone schedules are evaluated in (default UTC).
	Location *time.Location

	// RunTimeout bounds a single job run.
	RunTimeout time.Duration
}

// Scheduler triggers reminder dispatch and the overdue sweep in-process,
// for deployments without an external cron calling /api/cron/*.
type Scheduler struct {
	reminders domain.ReminderService
	invoices  domain.InvoiceService
	config    Config
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler. Schedules are parsed here so a typo
// fails at startup rather than silently never firing.
func NewScheduler(reminders domain.ReminderService, invoices domain.InvoiceService, config Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 5 * time.Minute
	}

	s := &Scheduler{
		reminders: reminders,
		invoices:  invoices,
		config:    config,
		logger:    logger.With("component", "scheduler"),
	}

	cronLogger := &slogCronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(config.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if spec := normalizeSpec(config.DispatchSchedule); spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.run("reminders", s.RunReminders) }); err != nil {
			return nil, fmt.Errorf("invalid reminder schedule %q: %w", config.DispatchSchedule, err)
		}
	}
	if spec := normalizeSpec(config.OverdueSchedule); spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.run("overdue", s.RunOverdue) }); err != nil {
			return nil, fmt.Errorf("invalid overdue schedule %q: %w", config.OverdueSchedule, err)
		}
	}

	return s, nil
}

// Enabled reports whether any job is scheduled.
func (s *Scheduler) Enabled() bool {
	return len(s.cron.Entries()) > 0
}

// Start begins firing jobs. It is a no-op when nothing is scheduled.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !s.Enabled() {
		return
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started",
		"reminders", s.config.DispatchSchedule,
		"overdue", s.config.OverdueSchedule,
		"location", s.config.Location.String(),
	)
}

// Stop stops scheduling and waits for running jobs, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunReminders runs one reminder dispatch pass.
func (s *Scheduler) RunReminders(ctx context.Context) error {
	result, err := s.reminders.ProcessScheduledReminders(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("reminder dispatch finished",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return nil
}

// RunOverdue runs one overdue sweep.
func (s *Scheduler) RunOverdue(ctx context.Context) error {
	count, err := s.invoices.MarkInvoicesOverdue(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("overdue sweep finished", "marked", count)
	return nil
}

func (s *Scheduler) run(job string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	ctx, finish := telemetry.StartSpan(ctx, "scheduler."+job, "scheduled "+job+" run")
	defer finish()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", "job", job, "error", err, "duration", time.Since(start))
		telemetry.CaptureError(err, map[string]interface{}{"job": job})
	}
}

// normalizeSpec accepts standard five-field expressions as well as the
// six-field form with seconds and descriptors such as "@every 1m".
func normalizeSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.HasPrefix(spec, "@") {
		return spec
	}
	if len(strings.Fields(spec)) == 5 {
		return "0 " + spec
	}
	return spec
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l *slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
