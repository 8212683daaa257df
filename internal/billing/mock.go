package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider is a mock billing provider for testing.
// Simulates successful flows without calling the Stripe API.
type MockProvider struct {
	mu sync.Mutex

	// CreateCheckoutSessionFunc allows customizing checkout session creation
	CreateCheckoutSessionFunc func(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// VerifyWebhookSignatureFunc allows customizing webhook verification behavior
	VerifyWebhookSignatureFunc func(payload []byte, signature string, secret string) error

	// Sessions stores created checkout sessions by ID
	Sessions map[string]CreateCheckoutSessionParams

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Sessions: make(map[string]CreateCheckoutSessionParams),
		CallLog:  []string{},
	}
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCheckoutSession(%d, %s)", params.AmountCents, params.Currency))
	m.mu.Unlock()

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	id := "cs_test_" + uuid.NewString()
	m.mu.Lock()
	m.Sessions[id] = params
	m.mu.Unlock()

	return &CheckoutSession{
		ID:  id,
		URL: "https://checkout.stripe.com/c/pay/" + id,
	}, nil
}

func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "VerifyWebhookSignature")
	m.mu.Unlock()

	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature, secret)
	}

	// Default mock behavior: any non-empty signature is valid
	if signature == "" {
		return ErrInvalidWebhookSignature
	}
	return nil
}

var _ Provider = (*MockProvider)(nil)
