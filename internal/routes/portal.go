package routes

import (
	"github.com/dukerupert/ledgerline/internal/router"
)

// RegisterPortalRoutes registers the public client portal. Access is by
// unguessable token, so the group is rate limited rather than authenticated.
func RegisterPortalRoutes(r *router.Router, deps PortalDeps) {
	g := r
	if deps.RateLimit != nil {
		g = r.Group(deps.RateLimit)
	}

	g.Get("/portal/{token}", deps.Handler.Show)
	g.Post("/portal/{token}/checkout", deps.Handler.Checkout)
}
