package api

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/handler"
)

// InvoiceHandler serves the invoice ledger API.
type InvoiceHandler struct {
	invoices  domain.InvoiceService
	reminders domain.ReminderService
	logger    *slog.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoices domain.InvoiceService, reminders domain.ReminderService, logger *slog.Logger) *InvoiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceHandler{
		invoices:  invoices,
		reminders: reminders,
		logger:    logger,
	}
}

// Create handles POST /api/invoices
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params domain.CreateInvoiceParams
	if err := handler.DecodeJSON(r, &params); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	detail, err := h.invoices.CreateInvoice(r.Context(), params)
	if err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, detail)
}

// Get handles GET /api/invoices/{id}
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.invoices.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, invoiceResponse{InvoiceDetail: detail, Balance: detail.Balance()})
}

// Send handles POST /api/invoices/{id}/send
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.invoices.SendInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, invoice)
}

// Cancel handles POST /api/invoices/{id}/cancel
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.invoices.CancelInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, invoice)
}

// ScheduleReminders handles POST /api/invoices/{id}/reminders.
// It replaces the invoice's pending reminders from the current settings.
func (h *InvoiceHandler) ScheduleReminders(w http.ResponseWriter, r *http.Request) {
	count, err := h.reminders.ScheduleRemindersForInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]int{"scheduled": count})
}

// ListReminders handles GET /api/invoices/{id}/reminders
func (h *InvoiceHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.reminders.ListRemindersForInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

type invoiceResponse struct {
	*domain.InvoiceDetail
	Balance int64 `json:"balance"`
}
