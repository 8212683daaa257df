package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe rejects charges below this many cents for USD.
const minimumChargeCents = 50

// StripeProvider implements Provider using the Stripe API.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.APIKey == "" {
		return nil, ErrInvalidAPIKey
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 2
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 30
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
			Transport: config.Transport,
		},
		MaxNetworkRetries: stripe.Int64(int64(config.MaxRetries)),
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(config.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	api := &client.API{}
	api.Init(config.APIKey, &stripe.Backends{
		API:     backend,
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	return &StripeProvider{api: api, config: config}, nil
}

// CreateCheckoutSession creates a Stripe Checkout session in payment mode
// with a single line item for the requested amount.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	if params.AmountCents < minimumChargeCents {
		return nil, ErrAmountTooSmall
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(params.Description),
			Metadata:    params.Metadata,
		},
	}
	if params.CustomerEmail != "" {
		sp.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		sp.SetIdempotencyKey(params.IdempotencyKey)
	}
	sp.Context = ctx

	cs, err := s.api.CheckoutSessions.New(sp)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	result := &CheckoutSession{ID: cs.ID, URL: cs.URL}
	if cs.PaymentIntent != nil {
		result.PaymentIntentID = cs.PaymentIntent.ID
	}
	return result, nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
// API version mismatches are tolerated; the handler reads only stable fields.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	_, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return errors.Join(ErrInvalidWebhookSignature, err)
	}
	return nil
}

func wrapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	return &StripeError{
		Message:       se.Msg,
		Code:          string(se.Code),
		DeclineCode:   string(se.DeclineCode),
		StatusCode:    se.HTTPStatusCode,
		RequestID:     se.RequestID,
		OriginalError: err,
	}
}

var _ Provider = (*StripeProvider)(nil)
