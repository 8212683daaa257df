package domain

import (
	"context"
)

// PaymentStatus represents the state of a recorded payment.
type PaymentStatus string

const (
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

// PaymentMethodStripe marks payments collected through Stripe.
const PaymentMethodStripe = "stripe"

// WebhookProviderStripe keys Stripe events in the webhook ledger.
const WebhookProviderStripe = "stripe"

// Payment-related domain errors.
var (
	// ErrPaymentAlreadyProcessed is returned when an event or payment intent
	// has already been applied. Webhook handlers treat it as success.
	ErrPaymentAlreadyProcessed = &Error{Code: ECONFLICT, Message: "Payment already processed"}
	ErrPaymentNotFound         = &Error{Code: ENOTFOUND, Message: "Payment not found"}
)

// CheckoutCompleted carries the fields of a checkout.session.completed event.
type CheckoutCompleted struct {
	EventID         string
	SessionID       string
	PaymentIntentID string
	InvoiceID       string
	AmountTotal     int64
	Currency        string
	PaymentStatus   string
}

// PaymentSucceeded carries the fields of a payment_intent.succeeded event.
type PaymentSucceeded struct {
	EventID         string
	PaymentIntentID string
	InvoiceID       string
	Amount          int64
	Currency        string
}

// PaymentFailed carries the fields of a payment_intent.payment_failed event.
type PaymentFailed struct {
	EventID         string
	PaymentIntentID string
	InvoiceID       string
	Amount          int64
	Currency        string
	FailureMessage  string
}

// ChargeRefunded carries the fields of a charge.refunded event.
// AmountRefunded is cumulative across all refunds on the charge.
type ChargeRefunded struct {
	EventID         string
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	AmountRefunded  int64
	Refunded        bool
}

// PaymentService reconciles payment processor events against the invoice ledger.
type PaymentService interface {
	HandleCheckoutSessionCompleted(ctx context.Context, event CheckoutCompleted) error
	HandlePaymentSucceeded(ctx context.Context, event PaymentSucceeded) error
	HandlePaymentFailed(ctx context.Context, event PaymentFailed) error
	HandleChargeRefunded(ctx context.Context, event ChargeRefunded) error
}
