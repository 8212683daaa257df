package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/ledgerline/internal/billing"
	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/handler"
	"github.com/dukerupert/ledgerline/internal/storage"
	"github.com/dukerupert/ledgerline/internal/telemetry"
	"github.com/stripe/stripe-go/v82"
)

// maxPayloadBytes caps the webhook body. Stripe events are well under this.
const maxPayloadBytes = 65536

// StripeHandler handles Stripe webhook events
type StripeHandler struct {
	provider billing.Provider
	payments domain.PaymentService
	metrics  *telemetry.BusinessMetrics
	logger   *slog.Logger
	config   StripeWebhookConfig
}

// StripeWebhookConfig contains configuration for Stripe webhook handling
type StripeWebhookConfig struct {
	// WebhookSecret is the webhook signing secret from Stripe dashboard
	WebhookSecret string

	// Archive keeps verified raw payloads. Optional.
	Archive storage.Storage
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(provider billing.Provider, payments domain.PaymentService, metrics *telemetry.BusinessMetrics, logger *slog.Logger, config StripeWebhookConfig) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		provider: provider,
		payments: payments,
		metrics:  metrics,
		logger:   logger.With("component", "stripe_webhook"),
		config:   config,
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger checkout.session.completed
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Warn("unreadable webhook payload", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.logger.Warn("webhook missing Stripe-Signature header")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Missing signature"))
		return
	}

	if h.config.WebhookSecret == "" {
		h.logger.Warn("webhook secret is empty; every signature will be rejected by Stripe verification")
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Data == nil {
		h.logger.Warn("webhook payload is not a Stripe event", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Invalid JSON"))
		return
	}

	eventType := string(event.Type)
	log := h.logger.With("event_id", event.ID, "event_type", eventType)
	log.Info("webhook received")
	h.metrics.WebhookReceivedInc(domain.WebhookProviderStripe, eventType)
	telemetry.AddBreadcrumb("webhook", "stripe event received", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": eventType,
	})
	h.archive(r.Context(), event, payload, log)

	err = h.dispatch(r, event, log)
	duplicate := errors.Is(err, domain.ErrPaymentAlreadyProcessed)
	if duplicate {
		err = nil
	}
	h.metrics.ObserveWebhook(domain.WebhookProviderStripe, eventType, start, duplicate, err)

	if err != nil {
		// A non-2xx makes Stripe redeliver the event later.
		log.Error("webhook processing failed", "error", err)
		handler.ErrorResponse(w, r, err)
		return
	}
	if duplicate {
		log.Info("webhook already processed")
	}

	handler.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// archive stores the payload keyed by event creation date and ID, so a
// redelivered event overwrites its earlier copy. Failures are only logged.
func (h *StripeHandler) archive(ctx context.Context, event stripe.Event, payload []byte, log *slog.Logger) {
	if h.config.Archive == nil {
		return
	}
	key := archiveKey(event)
	if err := h.config.Archive.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		log.Warn("failed to archive webhook payload", "key", key, "error", err)
	}
}

func archiveKey(event stripe.Event) string {
	created := time.Unix(event.Created, 0).UTC()
	return domain.WebhookProviderStripe + "/" + created.Format("2006/01/02") + "/" + event.ID + ".json"
}

func (h *StripeHandler) dispatch(r *http.Request, event stripe.Event, log *slog.Logger) error {
	ctx := r.Context()
	raw := event.Data.Raw

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return domain.WrapError(err, domain.EINVALID, "webhook.stripe", "Invalid checkout session payload")
		}
		return h.payments.HandleCheckoutSessionCompleted(ctx, domain.CheckoutCompleted{
			EventID:         event.ID,
			SessionID:       session.ID,
			PaymentIntentID: paymentIntentID(session.PaymentIntent),
			InvoiceID:       invoiceID(session.Metadata, session.ClientReferenceID),
			AmountTotal:     session.AmountTotal,
			Currency:        string(session.Currency),
			PaymentStatus:   string(session.PaymentStatus),
		})

	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return domain.WrapError(err, domain.EINVALID, "webhook.stripe", "Invalid payment intent payload")
		}
		return h.payments.HandlePaymentSucceeded(ctx, domain.PaymentSucceeded{
			EventID:         event.ID,
			PaymentIntentID: pi.ID,
			InvoiceID:       invoiceID(pi.Metadata, ""),
			Amount:          pi.Amount,
			Currency:        string(pi.Currency),
		})

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return domain.WrapError(err, domain.EINVALID, "webhook.stripe", "Invalid payment intent payload")
		}
		failure := ""
		if pi.LastPaymentError != nil {
			failure = pi.LastPaymentError.Msg
		}
		return h.payments.HandlePaymentFailed(ctx, domain.PaymentFailed{
			EventID:         event.ID,
			PaymentIntentID: pi.ID,
			InvoiceID:       invoiceID(pi.Metadata, ""),
			Amount:          pi.Amount,
			Currency:        string(pi.Currency),
			FailureMessage:  failure,
		})

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(raw, &charge); err != nil {
			return domain.WrapError(err, domain.EINVALID, "webhook.stripe", "Invalid charge payload")
		}
		return h.payments.HandleChargeRefunded(ctx, domain.ChargeRefunded{
			EventID:         event.ID,
			ChargeID:        charge.ID,
			PaymentIntentID: paymentIntentID(charge.PaymentIntent),
			Amount:          charge.Amount,
			AmountRefunded:  charge.AmountRefunded,
			Refunded:        charge.Refunded,
		})

	default:
		log.Debug("unhandled webhook event type")
		return nil
	}
}

func paymentIntentID(pi *stripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ID
}

func invoiceID(metadata map[string]string, fallback string) string {
	if id := metadata["invoiceId"]; id != "" {
		return id
	}
	return fallback
}
