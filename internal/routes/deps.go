package routes

import (
	"net/http"

	"github.com/dukerupert/ledgerline/internal/handler/api"
	"github.com/dukerupert/ledgerline/internal/handler/portal"
	"github.com/dukerupert/ledgerline/internal/router"
)

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}

// APIDeps contains dependencies for the authenticated JSON API
type APIDeps struct {
	InvoiceHandler *api.InvoiceHandler
	AccountHandler *api.AccountHandler

	// Auth guards the API routes
	Auth router.Middleware
}

// CronDeps contains dependencies for the scheduler-facing routes
type CronDeps struct {
	CronHandler *api.CronHandler

	// Auth guards the cron routes
	Auth router.Middleware
}

// PortalDeps contains dependencies for the client portal
type PortalDeps struct {
	Handler *portal.Handler

	// RateLimit throttles portal requests per client IP
	RateLimit router.Middleware
}

// OpsDeps contains dependencies for health and metrics endpoints
type OpsDeps struct {
	Health  http.Handler
	Metrics http.Handler
}
