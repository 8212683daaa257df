package routes

import (
	"github.com/dukerupert/ledgerline/internal/router"
)

// RegisterAPIRoutes registers the invoice, account and settings API.
// Every route sits behind deps.Auth.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	g := r.Group(deps.Auth)

	// Accounts
	g.Post("/api/users", deps.AccountHandler.CreateUser)
	g.Get("/api/users/{id}", deps.AccountHandler.GetUser)
	g.Get("/api/users/{id}/reminder-settings", deps.AccountHandler.GetReminderSettings)
	g.Put("/api/users/{id}/reminder-settings", deps.AccountHandler.UpdateReminderSettings)
	g.Post("/api/clients", deps.AccountHandler.CreateClient)

	// Invoices
	g.Post("/api/invoices", deps.InvoiceHandler.Create)
	g.Get("/api/invoices/{id}", deps.InvoiceHandler.Get)
	g.Post("/api/invoices/{id}/send", deps.InvoiceHandler.Send)
	g.Post("/api/invoices/{id}/cancel", deps.InvoiceHandler.Cancel)
	g.Get("/api/invoices/{id}/reminders", deps.InvoiceHandler.ListReminders)
	g.Post("/api/invoices/{id}/reminders", deps.InvoiceHandler.ScheduleReminders)
}

// RegisterCronRoutes registers the endpoints an external scheduler calls.
func RegisterCronRoutes(r *router.Router, deps CronDeps) {
	g := r.Group(deps.Auth)

	g.Post("/api/cron/reminders", deps.CronHandler.ProcessReminders)
	g.Post("/api/cron/overdue", deps.CronHandler.MarkOverdue)
}

// RegisterOpsRoutes registers health and metrics endpoints.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Handle("GET", "/health", deps.Health)
	if deps.Metrics != nil {
		r.Handle("GET", "/metrics", deps.Metrics)
	}
}
