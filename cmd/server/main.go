package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/ledgerline/internal"
	"github.com/dukerupert/ledgerline/internal/bootstrap"
	"github.com/dukerupert/ledgerline/internal/handler/api"
	"github.com/dukerupert/ledgerline/internal/handler/portal"
	"github.com/dukerupert/ledgerline/internal/handler/webhook"
	"github.com/dukerupert/ledgerline/internal/middleware"
	"github.com/dukerupert/ledgerline/internal/router"
	"github.com/dukerupert/ledgerline/internal/routes"
	"github.com/dukerupert/ledgerline/internal/telemetry"
	"github.com/dukerupert/ledgerline/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize Sentry before anything that may report to it
	release := cfg.Sentry.Release
	if release == "" {
		release = version
	}
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// ==========================================================================
	// Initialize handlers
	// ==========================================================================

	invoiceHandler := api.NewInvoiceHandler(app.Invoices, app.Reminders, logger)
	accountHandler := api.NewAccountHandler(app.Accounts, app.Reminders, logger)
	cronHandler := api.NewCronHandler(app.Invoices, app.Reminders, logger)
	portalHandler := portal.NewHandler(app.Invoices, logger)
	stripeWebhookHandler := webhook.NewStripeHandler(app.Billing, app.Payments, app.Metrics, logger, webhook.StripeWebhookConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Archive:       app.Archive,
	})

	// ==========================================================================
	// Initialize middleware
	// ==========================================================================

	metrics := middleware.NewMetrics(bootstrap.MetricsNamespace, app.Registry)

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "dev" {
		securityConfig.HSTSMaxAge = 0
	}

	portalRateLimiter := middleware.NewRateLimiter(middleware.PortalRateLimiterConfig())
	defer portalRateLimiter.Stop()

	if cfg.APIToken == "" {
		logger.Warn("API_TOKEN not set; /api routes are disabled")
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set; /api/cron routes are disabled")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	r := router.New(
		telemetry.SentryMiddleware(),
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		metrics.Middleware,
		middleware.SecurityHeaders(securityConfig),
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		router.Logger(logger),
	)

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Health:  api.NewHealthHandler(app.Pool, version),
		Metrics: metrics.Handler(),
	})
	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		StripeHandler: stripeWebhookHandler.HandleWebhook,
	})
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		InvoiceHandler: invoiceHandler,
		AccountHandler: accountHandler,
		Auth:           middleware.BearerToken(cfg.APIToken),
	})
	routes.RegisterCronRoutes(r, routes.CronDeps{
		CronHandler: cronHandler,
		Auth:        middleware.BearerToken(cfg.CronSecret),
	})
	routes.RegisterPortalRoutes(r, routes.PortalDeps{
		Handler:   portalHandler,
		RateLimit: portalRateLimiter.Middleware,
	})

	// ==========================================================================
	// Start background scheduler
	// ==========================================================================

	scheduler, err := worker.NewScheduler(app.Reminders, app.Invoices, worker.Config{
		DispatchSchedule: cfg.Reminder.DispatchSchedule,
		OverdueSchedule:  cfg.Reminder.OverdueSchedule,
		Location:         cfg.Reminder.Location,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	if scheduler.Enabled() {
		scheduler.Start()
	} else {
		logger.Info("In-process scheduler disabled; expecting an external caller on /api/cron")
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	// CORS wraps the router so preflight requests are answered before
	// method-specific patterns are matched.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.CORS(cfg.CORSOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("Scheduler shutdown failed", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
