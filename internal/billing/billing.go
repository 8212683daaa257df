package billing

import (
	"context"
)

// Provider defines the interface for payment processing.
type Provider interface {
	// CreateCheckoutSession creates a hosted payment page for a one-time charge.
	// The returned URL is where the payer completes the payment.
	CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	// Returns ErrInvalidWebhookSignature when it is not.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreateCheckoutSessionParams contains parameters for a hosted checkout.
type CreateCheckoutSessionParams struct {
	// AmountCents is the amount in smallest currency unit (cents for USD)
	AmountCents int64

	// Currency code (ISO 4217) - e.g., "usd", "eur"
	Currency string

	// Description is the line item name shown on the payment page
	Description string

	// CustomerEmail prefills the payer's email
	CustomerEmail string

	SuccessURL string
	CancelURL  string

	// Metadata is attached to both the session and its payment intent, so
	// events for either can be traced back (always include invoiceId).
	Metadata map[string]string

	// IdempotencyKey prevents duplicate sessions on client retries
	IdempotencyKey string
}

// CheckoutSession represents a created hosted checkout.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}
