// Command reminders runs a single scheduler job and exits. It suits
// platforms where an external cron starts a process instead of calling
// the /api/cron endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/ledgerline/internal"
	"github.com/dukerupert/ledgerline/internal/bootstrap"
	"github.com/dukerupert/ledgerline/internal/telemetry"
	"github.com/dukerupert/ledgerline/internal/worker"
)

func run() error {
	task := flag.String("task", "reminders", "job to run: reminders or overdue")
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum run time")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel).With("task", *task)

	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()
	defer telemetry.RecoverWithSentry()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// No schedules: the scheduler only lends its job bodies here.
	jobs, err := worker.NewScheduler(app.Reminders, app.Invoices, worker.Config{Location: cfg.Reminder.Location}, logger)
	if err != nil {
		return err
	}

	switch *task {
	case "reminders":
		err = jobs.RunReminders(ctx)
	case "overdue":
		err = jobs.RunOverdue(ctx)
	default:
		return fmt.Errorf("unknown task %q (want reminders or overdue)", *task)
	}
	if err != nil {
		telemetry.CaptureError(err, map[string]interface{}{"job": *task})
		return fmt.Errorf("%s failed: %w", *task, err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
