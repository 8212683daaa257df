package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/email"
	"github.com/dukerupert/ledgerline/internal/events"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/dukerupert/ledgerline/internal/telemetry"
)

// errSkipEvent aborts a reconciliation transaction for an event that does
// not concern a known invoice or has nothing left to apply. It never escapes
// the service.
var errSkipEvent = errors.New("event skipped")

// Stripe event types, as stored in the webhook ledger.
const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventPaymentSucceeded  = "payment_intent.succeeded"
	eventPaymentFailed     = "payment_intent.payment_failed"
	eventChargeRefunded    = "charge.refunded"
)

// PaymentConfig holds the knobs of the payment reconciler.
type PaymentConfig struct {
	// BaseURL prefixes portal and retry links in emails.
	BaseURL string
	// Now overrides the clock in tests.
	Now func() time.Time
}

type paymentService struct {
	store     repository.Store
	mailer    Mailer
	reminders domain.ReminderService
	events    events.Publisher
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
	baseURL   string
	now       func() time.Time
}

// NewPaymentService creates the Stripe payment reconciler.
func NewPaymentService(
	store repository.Store,
	mailer Mailer,
	reminders domain.ReminderService,
	publisher events.Publisher,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
	cfg PaymentConfig,
) domain.PaymentService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Noop{}
	}

	return &paymentService{
		store:     store,
		mailer:    mailer,
		reminders: reminders,
		events:    publisher,
		metrics:   metrics,
		logger:    logger.With("component", "payments"),
		baseURL:   cfg.BaseURL,
		now:       cfg.Now,
	}
}

// incomingPayment is a successful payment from either checkout or a payment intent.
type incomingPayment struct {
	eventID         string
	eventType       string
	source          string
	invoiceID       string
	paymentIntentID string
	sessionID       string
	amount          int64
	currency        string
}

// appliedPayment is what a committed payment changed.
type appliedPayment struct {
	invoice    repository.Invoice
	payment    repository.Payment
	becamePaid bool
}

func (s *paymentService) HandleCheckoutSessionCompleted(ctx context.Context, event domain.CheckoutCompleted) error {
	logger := s.logger.With("event_id", event.EventID, "session_id", event.SessionID)

	if event.InvoiceID == "" {
		logger.WarnContext(ctx, "checkout session has no invoice metadata, ignoring")
		return nil
	}
	// Delayed payment methods complete checkout before funds arrive; the
	// payment_intent.succeeded event records those.
	if event.PaymentStatus != "" && event.PaymentStatus != "paid" {
		logger.InfoContext(ctx, "checkout completed without payment, waiting for payment intent", "payment_status", event.PaymentStatus)
		return nil
	}

	return s.applyPayment(ctx, logger, incomingPayment{
		eventID:         event.EventID,
		eventType:       eventCheckoutCompleted,
		source:          "checkout",
		invoiceID:       event.InvoiceID,
		paymentIntentID: event.PaymentIntentID,
		sessionID:       event.SessionID,
		amount:          event.AmountTotal,
		currency:        event.Currency,
	})
}

func (s *paymentService) HandlePaymentSucceeded(ctx context.Context, event domain.PaymentSucceeded) error {
	logger := s.logger.With("event_id", event.EventID, "payment_intent_id", event.PaymentIntentID)

	if event.InvoiceID == "" {
		logger.WarnContext(ctx, "payment intent has no invoice metadata, ignoring")
		return nil
	}

	return s.applyPayment(ctx, logger, incomingPayment{
		eventID:         event.EventID,
		eventType:       eventPaymentSucceeded,
		source:          "payment_intent",
		invoiceID:       event.InvoiceID,
		paymentIntentID: event.PaymentIntentID,
		amount:          event.Amount,
		currency:        event.Currency,
	})
}

// applyPayment records a completed payment and advances the invoice in one
// transaction. The webhook ledger and the payment intent ID each make the
// operation safe to repeat.
func (s *paymentService) applyPayment(ctx context.Context, logger *slog.Logger, in incomingPayment) error {
	const op = "payment.apply"

	invoiceID, err := parseUUID(op, "invoice_id", in.invoiceID)
	if err != nil {
		logger.WarnContext(ctx, "payment metadata has malformed invoice id, ignoring", "invoice_id", in.invoiceID)
		return nil
	}
	if in.amount <= 0 {
		logger.WarnContext(ctx, "payment has no amount, ignoring", "amount", in.amount)
		return nil
	}

	now := s.now()
	var applied appliedPayment

	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := s.claimEvent(ctx, q, in.eventID, in.eventType); err != nil {
			return err
		}

		inv, err := q.GetInvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			if isNotFound(err) {
				logger.WarnContext(ctx, "payment references unknown invoice", "invoice_id", in.invoiceID)
				return errSkipEvent
			}
			return internalErr(err, op, "failed to lock invoice")
		}

		if in.paymentIntentID != "" {
			_, err := q.GetPaymentByStripePaymentIntentID(ctx, text(in.paymentIntentID))
			if err == nil {
				return domain.ErrPaymentAlreadyProcessed
			}
			if !isNotFound(err) {
				return internalErr(err, op, "failed to check existing payment")
			}
		}

		currency := in.currency
		if currency == "" {
			currency = inv.Currency
		}

		payment, err := q.CreatePayment(ctx, repository.CreatePaymentParams{
			InvoiceID:             inv.ID,
			Amount:                in.amount,
			Currency:              currency,
			Method:                domain.PaymentMethodStripe,
			Status:                string(domain.PaymentStatusCompleted),
			StripePaymentIntentID: text(in.paymentIntentID),
			StripeSessionID:       text(in.sessionID),
		})
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrPaymentAlreadyProcessed
			}
			return internalErr(err, op, "failed to record payment")
		}

		amountPaid := inv.AmountPaid + in.amount
		status := domain.InvoiceStatus(inv.Status)
		paidAt := inv.PaidAt
		becamePaid := false
		if amountPaid >= inv.Total && domain.CanTransition(status, domain.InvoiceStatusPaid) {
			status = domain.InvoiceStatusPaid
			paidAt = timestamptz(now)
			becamePaid = true
		}
		if status == domain.InvoiceStatusCancelled {
			logger.WarnContext(ctx, "payment received for cancelled invoice", "invoice_id", in.invoiceID)
		}

		updated, err := q.UpdateInvoicePayment(ctx, repository.UpdateInvoicePaymentParams{
			ID:         inv.ID,
			AmountPaid: amountPaid,
			Status:     string(status),
			PaidAt:     paidAt,
		})
		if err != nil {
			return internalErr(err, op, "failed to update invoice")
		}

		if becamePaid {
			if _, err := q.CancelScheduledReminders(ctx, inv.ID); err != nil {
				return internalErr(err, op, "failed to cancel reminders")
			}
		}

		applied = appliedPayment{invoice: updated, payment: payment, becamePaid: becamePaid}
		return nil
	})
	if err != nil {
		return s.finishSkipped(ctx, logger, in.eventType, err)
	}

	s.metrics.PaymentRecorded(in.source, applied.payment.Currency, applied.payment.Amount)
	logger.InfoContext(ctx, "payment recorded",
		"invoice_id", in.invoiceID,
		"amount", applied.payment.Amount,
		"amount_paid", applied.invoice.AmountPaid,
		"status", applied.invoice.Status,
	)

	s.notifyPayment(ctx, logger, applied, now)
	return nil
}

// finishSkipped maps transaction outcomes that are not failures.
func (s *paymentService) finishSkipped(ctx context.Context, logger *slog.Logger, eventType string, err error) error {
	switch {
	case errors.Is(err, errSkipEvent):
		return nil
	case errors.Is(err, domain.ErrPaymentAlreadyProcessed):
		logger.InfoContext(ctx, "event already applied", "event_type", eventType)
		return domain.ErrPaymentAlreadyProcessed
	default:
		logger.ErrorContext(ctx, "failed to apply event", "event_type", eventType, "error", err)
		return err
	}
}

// claimEvent inserts the event into the webhook ledger. A redelivered event
// is reported as already processed.
func (s *paymentService) claimEvent(ctx context.Context, q repository.Querier, eventID, eventType string) error {
	if eventID == "" {
		return nil
	}
	n, err := q.CreateWebhookEvent(ctx, repository.CreateWebhookEventParams{
		Provider:        domain.WebhookProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
	})
	if err != nil {
		return internalErr(err, "payment.claim_event", "failed to record webhook event")
	}
	if n == 0 {
		return domain.ErrPaymentAlreadyProcessed
	}
	return nil
}

// notifyPayment sends the receipt and the freelancer notification. Failures
// are logged; the payment is already committed.
func (s *paymentService) notifyPayment(ctx context.Context, logger *slog.Logger, applied appliedPayment, now time.Time) {
	inv := applied.invoice

	if err := s.events.Publish(ctx, events.SubjectInvoicePaid, events.InvoicePaid{
		InvoiceID:     uuidString(inv.ID),
		UserID:        uuidString(inv.UserID),
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        applied.payment.Amount,
		AmountPaid:    inv.AmountPaid,
		Total:         inv.Total,
		Currency:      applied.payment.Currency,
		PaidInFull:    inv.AmountPaid >= inv.Total,
	}); err != nil {
		logger.WarnContext(ctx, "failed to publish payment event", "error", err)
	}

	client, user, err := s.parties(ctx, inv)
	if err != nil {
		logger.WarnContext(ctx, "skipping payment emails", "error", err)
		return
	}

	_, err = s.mailer.SendPaymentReceipt(ctx, email.PaymentReceiptEmail{
		ClientName:      client.Name,
		ClientEmail:     client.Email,
		BusinessName:    businessName(user),
		FreelancerEmail: user.Email,
		InvoiceNumber:   inv.InvoiceNumber,
		Currency:        applied.payment.Currency,
		Amount:          applied.payment.Amount,
		Total:           inv.Total,
		AmountPaid:      inv.AmountPaid,
		PaidAt:          now,
		PortalURL:       portalURL(s.baseURL, inv.PortalToken),
	})
	s.metrics.EmailDelivered("payment_receipt", err)
	if err != nil {
		logger.WarnContext(ctx, "failed to send payment receipt", "error", err)
	}

	_, err = s.mailer.SendPaymentNotification(ctx, email.PaymentNotificationEmail{
		FreelancerName:  user.Name,
		FreelancerEmail: user.Email,
		ClientName:      client.Name,
		InvoiceNumber:   inv.InvoiceNumber,
		Currency:        applied.payment.Currency,
		Amount:          applied.payment.Amount,
		Total:           inv.Total,
		AmountPaid:      inv.AmountPaid,
	})
	s.metrics.EmailDelivered("payment_notification", err)
	if err != nil {
		logger.WarnContext(ctx, "failed to send payment notification", "error", err)
	}
}

func (s *paymentService) parties(ctx context.Context, inv repository.Invoice) (repository.Client, repository.User, error) {
	client, err := s.store.GetClientByID(ctx, inv.ClientID)
	if err != nil {
		return repository.Client{}, repository.User{}, fmt.Errorf("load client: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, inv.UserID)
	if err != nil {
		return repository.Client{}, repository.User{}, fmt.Errorf("load user: %w", err)
	}
	return client, user, nil
}

// HandlePaymentFailed records a failed attempt for the audit trail and sends
// the client a retry link. The invoice balance is not touched.
func (s *paymentService) HandlePaymentFailed(ctx context.Context, event domain.PaymentFailed) error {
	const op = "payment.failed"
	logger := s.logger.With("event_id", event.EventID, "payment_intent_id", event.PaymentIntentID)

	if event.InvoiceID == "" {
		logger.WarnContext(ctx, "failed payment has no invoice metadata, ignoring")
		return nil
	}
	invoiceID, err := parseUUID(op, "invoice_id", event.InvoiceID)
	if err != nil {
		logger.WarnContext(ctx, "failed payment has malformed invoice id, ignoring", "invoice_id", event.InvoiceID)
		return nil
	}

	var inv repository.Invoice
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := s.claimEvent(ctx, q, event.EventID, eventPaymentFailed); err != nil {
			return err
		}

		inv, err = q.GetInvoiceByID(ctx, invoiceID)
		if err != nil {
			if isNotFound(err) {
				logger.WarnContext(ctx, "failed payment references unknown invoice", "invoice_id", event.InvoiceID)
				return errSkipEvent
			}
			return internalErr(err, op, "failed to load invoice")
		}

		currency := event.Currency
		if currency == "" {
			currency = inv.Currency
		}
		if _, err := q.CreatePayment(ctx, repository.CreatePaymentParams{
			InvoiceID:             inv.ID,
			Amount:                event.Amount,
			Currency:              currency,
			Method:                domain.PaymentMethodStripe,
			Status:                string(domain.PaymentStatusFailed),
			StripePaymentIntentID: text(event.PaymentIntentID),
			Notes:                 text(event.FailureMessage),
		}); err != nil {
			return internalErr(err, op, "failed to record failed payment")
		}
		return nil
	})
	if err != nil {
		return s.finishSkipped(ctx, logger, eventPaymentFailed, err)
	}

	s.metrics.PaymentFailed()
	logger.InfoContext(ctx, "failed payment recorded", "invoice_id", event.InvoiceID, "reason", event.FailureMessage)

	if err := s.events.Publish(ctx, events.SubjectInvoicePaymentFailed, events.InvoicePaymentFailed{
		InvoiceID:       uuidString(inv.ID),
		UserID:          uuidString(inv.UserID),
		PaymentIntentID: event.PaymentIntentID,
		Amount:          event.Amount,
		FailureMessage:  event.FailureMessage,
	}); err != nil {
		logger.WarnContext(ctx, "failed to publish payment failure event", "error", err)
	}

	client, user, err := s.parties(ctx, inv)
	if err != nil {
		logger.WarnContext(ctx, "skipping payment failure email", "error", err)
		return nil
	}

	_, err = s.mailer.SendPaymentFailed(ctx, email.PaymentFailedEmail{
		ClientName:      client.Name,
		ClientEmail:     client.Email,
		BusinessName:    businessName(user),
		FreelancerEmail: user.Email,
		InvoiceNumber:   inv.InvoiceNumber,
		Currency:        inv.Currency,
		Amount:          event.Amount,
		FailureMessage:  event.FailureMessage,
		RetryURL:        portalURL(s.baseURL, inv.PortalToken),
	})
	s.metrics.EmailDelivered("payment_failed", err)
	if err != nil {
		logger.WarnContext(ctx, "failed to send payment failure email", "error", err)
	}
	return nil
}

// HandleChargeRefunded applies the part of a charge's cumulative refund that
// has not been applied yet, so redelivered or overlapping refund events never
// decrement the invoice twice.
func (s *paymentService) HandleChargeRefunded(ctx context.Context, event domain.ChargeRefunded) error {
	const op = "payment.refund"
	logger := s.logger.With("event_id", event.EventID, "charge_id", event.ChargeID, "payment_intent_id", event.PaymentIntentID)

	if event.PaymentIntentID == "" {
		logger.WarnContext(ctx, "refunded charge has no payment intent, ignoring")
		return nil
	}

	var (
		inv      repository.Invoice
		payment  repository.Payment
		delta    int64
		reverted bool
	)

	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := s.claimEvent(ctx, q, event.EventID, eventChargeRefunded); err != nil {
			return err
		}

		original, err := q.GetPaymentByStripePaymentIntentID(ctx, text(event.PaymentIntentID))
		if err != nil {
			if isNotFound(err) {
				logger.WarnContext(ctx, "refund for unknown payment, ignoring")
				return errSkipEvent
			}
			return internalErr(err, op, "failed to load payment")
		}

		refunded := event.AmountRefunded
		if refunded > original.Amount {
			refunded = original.Amount
		}
		delta = refunded - original.AmountRefunded
		if delta <= 0 {
			logger.InfoContext(ctx, "refund already applied", "amount_refunded", event.AmountRefunded)
			return errSkipEvent
		}

		status := domain.PaymentStatusPartialRefund
		if event.Refunded || refunded >= original.Amount {
			status = domain.PaymentStatusRefunded
		}

		payment, err = q.UpdatePaymentRefund(ctx, repository.UpdatePaymentRefundParams{
			ID:             original.ID,
			AmountRefunded: refunded,
			Status:         string(status),
			StripeChargeID: text(event.ChargeID),
			Notes:          original.Notes,
		})
		if err != nil {
			return internalErr(err, op, "failed to update payment")
		}

		current, err := q.GetInvoiceByIDForUpdate(ctx, original.InvoiceID)
		if err != nil {
			return internalErr(err, op, "failed to lock invoice")
		}

		amountPaid := current.AmountPaid - delta
		if amountPaid < 0 {
			amountPaid = 0
		}
		invStatus := domain.InvoiceStatus(current.Status)
		paidAt := current.PaidAt
		if invStatus == domain.InvoiceStatusPaid && amountPaid < current.Total {
			invStatus = domain.InvoiceStatusSent
			paidAt = pgtype.Timestamptz{}
			reverted = true
		}

		inv, err = q.UpdateInvoicePayment(ctx, repository.UpdateInvoicePaymentParams{
			ID:         current.ID,
			AmountPaid: amountPaid,
			Status:     string(invStatus),
			PaidAt:     paidAt,
		})
		if err != nil {
			return internalErr(err, op, "failed to update invoice")
		}
		return nil
	})
	if err != nil {
		return s.finishSkipped(ctx, logger, eventChargeRefunded, err)
	}

	s.metrics.RefundApplied(payment.Status == string(domain.PaymentStatusRefunded), payment.Currency, delta)
	logger.InfoContext(ctx, "refund applied",
		"invoice_id", uuidString(inv.ID),
		"refunded", delta,
		"amount_paid", inv.AmountPaid,
		"invoice_status", inv.Status,
		"payment_status", payment.Status,
	)

	if err := s.events.Publish(ctx, events.SubjectInvoiceRefunded, events.InvoiceRefunded{
		InvoiceID:      uuidString(inv.ID),
		UserID:         uuidString(inv.UserID),
		ChargeID:       event.ChargeID,
		RefundedAmount: delta,
		AmountPaid:     inv.AmountPaid,
		Status:         inv.Status,
	}); err != nil {
		logger.WarnContext(ctx, "failed to publish refund event", "error", err)
	}

	// A reopened invoice needs chasing again.
	if reverted && s.reminders != nil {
		if _, err := s.reminders.ScheduleRemindersForInvoice(ctx, uuidString(inv.ID)); err != nil {
			logger.WarnContext(ctx, "failed to reschedule reminders after refund", "error", err)
		}
	}

	return nil
}
