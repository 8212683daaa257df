package routes

import (
	"github.com/dukerupert/ledgerline/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
//
// Webhook routes carry no authentication middleware; the handler verifies
// the Stripe-Signature header itself.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/stripe", deps.StripeHandler)
}
