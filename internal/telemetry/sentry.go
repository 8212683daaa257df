package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool   // false, or an empty DSN, turns every helper into a no-op
	Environment string // dev, staging, prod
	Release     string

	// SampleRate is the fraction of errors sent. Zero means 1.0.
	SampleRate float64

	// TracesSampleRate is the fraction of transactions traced. Zero disables tracing.
	TracesSampleRate float64

	Debug bool
}

var enabled atomic.Bool

// sensitiveHeaders never leave the process. They carry the API token, the
// cron secret and Stripe signatures.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Stripe-Signature"}

// InitSentry initializes the Sentry client and returns a flush function to
// defer until shutdown.
func InitSentry(cfg SentryConfig, logger *slog.Logger) (func(), error) {
	enabled.Store(false)
	noop := func() {}

	if !cfg.Enabled {
		logger.Info("Sentry disabled (SENTRY_ENABLED=false)")
		return noop, nil
	}
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured, disabling error tracking")
		return noop, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
		Debug:            cfg.Debug,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled.Store(true)

	logger.Info("Sentry initialized",
		"environment", cfg.Environment,
		"release", cfg.Release,
		"sample_rate", sampleRate,
		"traces_sample_rate", cfg.TracesSampleRate,
	)

	return func() { sentry.Flush(flushTimeout) }, nil
}

func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request == nil {
		return event
	}
	for name := range event.Request.Headers {
		for _, sensitive := range sensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				event.Request.Headers[name] = "[redacted]"
			}
		}
	}
	event.Request.Cookies = ""
	return event
}

// IsEnabled reports whether events are being sent.
func IsEnabled() bool {
	return enabled.Load()
}

// CaptureError reports err with optional extras. Safe to call when disabled.
func CaptureError(err error, extras ...map[string]interface{}) {
	if !IsEnabled() || err == nil {
		return
	}
	captureWith(sentry.CurrentHub(), err, extras...)
}

// CaptureErrorFromContext reports err through the hub SentryMiddleware put on
// ctx, so the event carries the request.
func CaptureErrorFromContext(ctx context.Context, err error, extras map[string]interface{}) {
	if !IsEnabled() || err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	captureWith(hub, err, extras)
}

func captureWith(hub *sentry.Hub, err error, extras ...map[string]interface{}) {
	hub.WithScope(func(scope *sentry.Scope) {
		for _, m := range extras {
			for key, value := range m {
				scope.SetExtra(key, value)
			}
		}
		hub.CaptureException(err)
	})
}

// AddBreadcrumb records a step leading up to a possible error.
func AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !IsEnabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Data:     data,
		Level:    sentry.LevelInfo,
	})
}

// StartSpan starts a span and returns its context and finish function.
func StartSpan(ctx context.Context, operation, description string) (context.Context, func()) {
	if !IsEnabled() {
		return ctx, func() {}
	}
	span := sentry.StartSpan(ctx, operation)
	span.Description = description
	return span.Context(), span.Finish
}

// RecoverWithSentry reports a panic and re-raises it. For use at the top of
// one-shot commands:
//
//	defer telemetry.RecoverWithSentry()
func RecoverWithSentry() {
	r := recover()
	if r == nil {
		return
	}
	if IsEnabled() {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(flushTimeout)
	}
	panic(r)
}

// SentryMiddleware attaches a per-request hub carrying the request to the
// context. It must wrap router.Recovery, which reports panics through that hub.
func SentryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
			}
			hub.Scope().SetRequest(r)

			next.ServeHTTP(w, r.WithContext(sentry.SetHubOnContext(r.Context(), hub)))
		})
	}
}

// HTTPTransport traces outbound calls, such as those to Stripe.
// A nil Transport uses http.DefaultTransport.
type HTTPTransport struct {
	Transport http.RoundTripper
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if !IsEnabled() {
		return base.RoundTrip(req)
	}

	span := sentry.StartSpan(req.Context(), "http.client")
	span.Description = req.Method + " " + req.URL.Host
	defer span.Finish()

	resp, err := base.RoundTrip(req)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return resp, err
	}
	span.SetData("http.status_code", resp.StatusCode)
	return resp, nil
}
