package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/handler"
)

// CronHandler exposes the periodic jobs for an external scheduler
// (Vercel cron, a Kubernetes CronJob, or curl in a crontab).
type CronHandler struct {
	invoices  domain.InvoiceService
	reminders domain.ReminderService
	logger    *slog.Logger
}

// NewCronHandler creates a new cron handler
func NewCronHandler(invoices domain.InvoiceService, reminders domain.ReminderService, logger *slog.Logger) *CronHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronHandler{
		invoices:  invoices,
		reminders: reminders,
		logger:    logger.With("component", "cron"),
	}
}

// ProcessReminders handles POST /api/cron/reminders
func (h *CronHandler) ProcessReminders(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := h.reminders.ProcessScheduledReminders(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	h.logger.Info("reminder dispatch finished",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", time.Since(start),
	)
	handler.WriteJSON(w, http.StatusOK, result)
}

// MarkOverdue handles POST /api/cron/overdue
func (h *CronHandler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	count, err := h.invoices.MarkInvoicesOverdue(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	h.logger.Info("overdue sweep finished", "marked", count)
	handler.WriteJSON(w, http.StatusOK, map[string]int64{"marked": count})
}
