package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/ledgerline/internal"
	"github.com/dukerupert/ledgerline/internal/billing"
	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/email"
	"github.com/dukerupert/ledgerline/internal/events"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/dukerupert/ledgerline/internal/service"
	"github.com/dukerupert/ledgerline/internal/storage"
	"github.com/dukerupert/ledgerline/internal/telemetry"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "ledgerline"

// App holds the long-lived dependencies shared by the server and the
// one-shot job runner.
type App struct {
	Config   *internal.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Registry *prometheus.Registry
	Metrics  *telemetry.BusinessMetrics
	Billing  *billing.StripeProvider
	Archive  storage.Storage // nil when archiving is disabled

	Invoices  domain.InvoiceService
	Reminders domain.ReminderService
	Payments  domain.PaymentService
	Accounts  domain.AccountService

	closers []func()
}

// New connects to the database, applies migrations and builds the services.
// Call Close when done, including after an error-free partial use.
func New(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	logger.Info("Connecting to database...")
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.MigratePool(pool, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	store := repository.NewStore(pool)

	mailer, err := email.NewService(newSender(cfg.Email, logger), cfg.Email.From, cfg.Email.FromName, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}
	logger.Info("Email sender initialized", "provider", cfg.Email.Provider)

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nats, err := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.closers = append(a.closers, nats.Close)
		publisher = nats
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = telemetry.NewBusinessMetrics(MetricsNamespace, a.Registry)

	stripeConfig := billing.StripeConfig{
		APIKey:         cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		MaxRetries:     3,
		TimeoutSeconds: 30,
		Transport:      &telemetry.HTTPTransport{},
	}
	a.Billing, err = billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	a.Archive, err = storage.New(ctx, storage.Config{
		Provider:        cfg.Archive.Provider,
		LocalPath:       cfg.Archive.LocalPath,
		Bucket:          cfg.Archive.Bucket,
		Region:          cfg.Archive.Region,
		Endpoint:        cfg.Archive.Endpoint,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize payload archive: %w", err)
	}
	if a.Archive != nil {
		logger.Info("Webhook payload archive enabled", "provider", cfg.Archive.Provider)
	}

	a.Reminders = service.NewReminderService(store, mailer, publisher, a.Metrics, logger, service.ReminderConfig{
		Location:  cfg.Reminder.Location,
		BatchSize: cfg.Reminder.BatchSize,
		BaseURL:   cfg.BaseURL,
	})
	a.Invoices = service.NewInvoiceService(store, mailer, a.Billing, a.Reminders, a.Metrics, logger, service.InvoiceConfig{
		BaseURL:         cfg.BaseURL,
		DefaultCurrency: cfg.DefaultCurrency,
		Location:        cfg.Reminder.Location,
	})
	a.Payments = service.NewPaymentService(store, mailer, a.Reminders, publisher, a.Metrics, logger, service.PaymentConfig{
		BaseURL: cfg.BaseURL,
	})
	a.Accounts = service.NewAccountService(store, logger)

	return EnsureOwner(ctx, a.Accounts, &OwnerConfig{
		Email:        cfg.Owner.Email,
		Name:         cfg.Owner.Name,
		BusinessName: cfg.Owner.BusinessName,
	}, logger)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newSender(cfg internal.EmailConfig, logger *slog.Logger) email.Sender {
	switch cfg.Provider {
	case "postmark":
		return email.NewPostmarkSender(cfg.PostmarkToken)
	case "smtp":
		return email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Host,
			Port:     int(cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			FromName: cfg.FromName,
		}, logger)
	default:
		return email.NewLogSender(logger)
	}
}
