// Package portal serves the client-facing invoice page. Clients reach it
// through the tokenised link in their invoice email; there is no login.
package portal

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/handler"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Handler serves the client portal.
type Handler struct {
	invoices domain.InvoiceService
	logger   *slog.Logger
}

// NewHandler creates a new portal handler
func NewHandler(invoices domain.InvoiceService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		invoices: invoices,
		logger:   logger.With("component", "portal"),
	}
}

// invoiceView is what a client may see. Internal IDs and the portal token
// itself stay out of the payload.
type invoiceView struct {
	InvoiceNumber string      `json:"invoice_number"`
	Status        string      `json:"status"`
	Currency      string      `json:"currency"`
	IssueDate     pgtype.Date `json:"issue_date"`
	DueDate       pgtype.Date `json:"due_date"`
	Subtotal      int64       `json:"subtotal"`
	Tax           int64       `json:"tax"`
	Discount      int64       `json:"discount"`
	Total         int64       `json:"total"`
	AmountPaid    int64       `json:"amount_paid"`
	Balance       int64       `json:"balance"`
	Payable       bool        `json:"payable"`
	Notes         pgtype.Text `json:"notes"`
	Client        clientView  `json:"client"`
	Items         []itemView  `json:"items"`
}

type clientView struct {
	Name    string      `json:"name"`
	Company pgtype.Text `json:"company"`
}

type itemView struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Amount      int64           `json:"amount"`
}

// Show handles GET /portal/{token}. Opening a sent invoice marks it viewed.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	detail, err := h.invoices.GetInvoiceByPortalToken(r.Context(), r.PathValue("token"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	inv := detail.Invoice
	if domain.InvoiceStatus(inv.Status) == domain.InvoiceStatusDraft {
		handler.ErrorResponse(w, r, domain.ErrInvoiceNotFound)
		return
	}

	if domain.InvoiceStatus(inv.Status) == domain.InvoiceStatusSent {
		if err := h.invoices.MarkViewed(r.Context(), uuidString(inv.ID)); err != nil {
			h.logger.Warn("failed to mark invoice viewed", "invoice", inv.InvoiceNumber, "error", err)
		} else {
			inv.Status = string(domain.InvoiceStatusViewed)
		}
	}

	handler.WriteJSON(w, http.StatusOK, newInvoiceView(inv, detail))
}

// Checkout handles POST /portal/{token}/checkout and returns the hosted
// payment page for the outstanding balance.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	session, err := h.invoices.CreateCheckoutSession(r.Context(), r.PathValue("token"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, session)
}

func newInvoiceView(inv repository.Invoice, detail *domain.InvoiceDetail) invoiceView {
	status := domain.InvoiceStatus(inv.Status)
	view := invoiceView{
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status,
		Currency:      inv.Currency,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		Discount:      inv.Discount,
		Total:         inv.Total,
		AmountPaid:    inv.AmountPaid,
		Balance:       domain.Balance(inv),
		Notes:         inv.Notes,
		Client: clientView{
			Name:    detail.Client.Name,
			Company: detail.Client.Company,
		},
		Items: make([]itemView, 0, len(detail.Items)),
	}
	view.Payable = !status.IsClosed() && view.Balance > 0

	for _, item := range detail.Items {
		view.Items = append(view.Items, itemView{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return view
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return id.String()
}
