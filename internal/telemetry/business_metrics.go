package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for invoicing, payments and reminders.
// Methods are safe to call on a nil receiver so services can run without metrics.
type BusinessMetrics struct {
	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookDuplicate *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Payments
	PaymentsRecorded *prometheus.CounterVec
	PaymentsFailed   prometheus.Counter
	RevenueCollected *prometheus.CounterVec
	RefundsIssued    *prometheus.CounterVec
	RefundAmount     *prometheus.CounterVec

	// Invoices
	InvoicesCreated prometheus.Counter
	InvoicesSent    prometheus.Counter
	InvoicesOverdue prometheus.Counter

	// Reminders
	RemindersScheduled *prometheus.CounterVec
	RemindersSent      *prometheus.CounterVec
	RemindersFailed    *prometheus.CounterVec
	RemindersCancelled *prometheus.CounterVec
	DispatchDuration   prometheus.Histogram

	// Email delivery
	EmailSent   *prometheus.CounterVec
	EmailFailed *prometheus.CounterVec

	// External API performance
	StripeAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates all business metrics and registers them with reg.
// A nil reg uses the default Prometheus registry.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "ledgerline"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	subsystem := "business"

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	plain := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &BusinessMetrics{
		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived:  counter("webhooks_received_total", "Total webhooks received", "provider", "event_type"),
		WebhookProcessed: counter("webhooks_processed_total", "Total webhooks processed successfully", "provider", "event_type"),
		WebhookFailed:    counter("webhooks_failed_total", "Total webhook processing failures", "provider", "event_type", "error_type"),
		WebhookDuplicate: counter("webhooks_duplicate_total", "Total redelivered webhooks ignored", "provider", "event_type"),
		WebhookLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_processing_seconds",
			Help:      "Webhook processing time",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"provider", "event_type"}),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentsRecorded: counter("payments_recorded_total", "Total payments applied to invoices", "source"), // source: checkout, payment_intent
		PaymentsFailed:   plain("payments_failed_total", "Total failed payment attempts"),
		RevenueCollected: counter("revenue_collected_minor_units_total", "Revenue collected in minor currency units", "currency"),
		RefundsIssued:    counter("refunds_total", "Total refunds applied", "kind"), // kind: full, partial
		RefundAmount:     counter("refund_amount_minor_units_total", "Refunded amount in minor currency units", "currency"),

		// =======================================================================
		// Invoices
		// =======================================================================
		InvoicesCreated: plain("invoices_created_total", "Total invoices created"),
		InvoicesSent:    plain("invoices_sent_total", "Total invoices sent to clients"),
		InvoicesOverdue: plain("invoices_marked_overdue_total", "Total invoices moved to overdue"),

		// =======================================================================
		// Reminders
		// =======================================================================
		RemindersScheduled: counter("reminders_scheduled_total", "Total reminder rows scheduled", "reminder_type"),
		RemindersSent:      counter("reminders_sent_total", "Total reminders delivered", "reminder_type"),
		RemindersFailed:    counter("reminders_failed_total", "Total reminders that failed to send", "reminder_type"),
		RemindersCancelled: counter("reminders_cancelled_total", "Total reminders cancelled before sending", "reason"),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminder_dispatch_seconds",
			Help:      "Duration of one reminder dispatch pass",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		// =======================================================================
		// Email Delivery
		// =======================================================================
		EmailSent:   counter("emails_sent_total", "Total emails sent by type", "email_type"),
		EmailFailed: counter("emails_failed_total", "Total email delivery failures", "email_type"),

		// =======================================================================
		// External API Performance
		// =======================================================================
		StripeAPILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stripe_api_duration_seconds",
			Help:      "Stripe API call duration (helps differentiate app slowness from Stripe issues)",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}
}

func (m *BusinessMetrics) WebhookReceivedInc(provider, eventType string) {
	if m == nil {
		return
	}
	m.WebhookReceived.WithLabelValues(provider, eventType).Inc()
}

// ObserveWebhook records the outcome of one webhook delivery.
func (m *BusinessMetrics) ObserveWebhook(provider, eventType string, start time.Time, duplicate bool, err error) {
	if m == nil {
		return
	}
	m.WebhookLatency.WithLabelValues(provider, eventType).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		m.WebhookFailed.WithLabelValues(provider, eventType, "processing").Inc()
	case duplicate:
		m.WebhookDuplicate.WithLabelValues(provider, eventType).Inc()
	default:
		m.WebhookProcessed.WithLabelValues(provider, eventType).Inc()
	}
}

func (m *BusinessMetrics) PaymentRecorded(source, currency string, amount int64) {
	if m == nil {
		return
	}
	m.PaymentsRecorded.WithLabelValues(source).Inc()
	m.RevenueCollected.WithLabelValues(currency).Add(float64(amount))
}

func (m *BusinessMetrics) PaymentFailed() {
	if m == nil {
		return
	}
	m.PaymentsFailed.Inc()
}

func (m *BusinessMetrics) RefundApplied(full bool, currency string, amount int64) {
	if m == nil {
		return
	}
	kind := "partial"
	if full {
		kind = "full"
	}
	m.RefundsIssued.WithLabelValues(kind).Inc()
	m.RefundAmount.WithLabelValues(currency).Add(float64(amount))
}

func (m *BusinessMetrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.InvoicesCreated.Inc()
}

func (m *BusinessMetrics) InvoiceSent() {
	if m == nil {
		return
	}
	m.InvoicesSent.Inc()
}

func (m *BusinessMetrics) InvoicesMarkedOverdue(n int64) {
	if m == nil {
		return
	}
	m.InvoicesOverdue.Add(float64(n))
}

func (m *BusinessMetrics) ReminderScheduled(reminderType string) {
	if m == nil {
		return
	}
	m.RemindersScheduled.WithLabelValues(reminderType).Inc()
}

func (m *BusinessMetrics) ReminderSent(reminderType string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(reminderType).Inc()
}

func (m *BusinessMetrics) ReminderFailed(reminderType string) {
	if m == nil {
		return
	}
	m.RemindersFailed.WithLabelValues(reminderType).Inc()
}

func (m *BusinessMetrics) ReminderCancelled(reason string) {
	if m == nil {
		return
	}
	m.RemindersCancelled.WithLabelValues(reason).Inc()
}

func (m *BusinessMetrics) ObserveDispatch(start time.Time) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}

func (m *BusinessMetrics) EmailDelivered(emailType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EmailFailed.WithLabelValues(emailType).Inc()
		return
	}
	m.EmailSent.WithLabelValues(emailType).Inc()
}

func (m *BusinessMetrics) ObserveStripe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.StripeAPILatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
