package domain

import (
	"context"

	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE DOMAIN TYPES
// =============================================================================

// InvoiceStatus represents where an invoice is in its lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsClosed reports whether the invoice no longer expects payment.
func (s InvoiceStatus) IsClosed() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// invoiceTransitions lists the forward moves allowed from each status.
// paid -> sent is the single backwards move, driven by refunds.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusSent:      {InvoiceStatusViewed, InvoiceStatusOverdue, InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusViewed:    {InvoiceStatusOverdue, InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusOverdue:   {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPaid:      {InvoiceStatusSent},
	InvoiceStatusCancelled: nil,
}

// CanTransition reports whether an invoice may move from one status to another.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Invoice-related domain errors.
var (
	ErrInvoiceNotFound      = &Error{Code: ENOTFOUND, Message: "Invoice not found"}
	ErrInvoiceNotDraft      = &Error{Code: ECONFLICT, Message: "Invoice must be in draft status"}
	ErrInvoiceAlreadyPaid   = &Error{Code: ECONFLICT, Message: "Invoice already paid in full"}
	ErrInvoiceClosed        = &Error{Code: ECONFLICT, Message: "Invoice is paid or cancelled"}
	ErrInvoiceNotPayable    = &Error{Code: ECONFLICT, Message: "Invoice has no outstanding balance"}
	ErrInvalidInvoiceStatus = &Error{Code: ECONFLICT, Message: "Invoice status change not allowed"}
	ErrClientNotFound       = &Error{Code: ENOTFOUND, Message: "Client not found"}
	ErrClientOwnerMismatch  = &Error{Code: EFORBIDDEN, Message: "Client belongs to another user"}
	ErrUserNotFound         = &Error{Code: ENOTFOUND, Message: "User not found"}
)

// CreateInvoiceItemParams describes one line on a new invoice.
type CreateInvoiceItemParams struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price" validate:"gte=0"`
}

// CreateInvoiceParams contains the input for creating a draft invoice.
// Dates are calendar dates in YYYY-MM-DD form.
type CreateInvoiceParams struct {
	UserID    string                    `json:"user_id" validate:"required,uuid"`
	ClientID  string                    `json:"client_id" validate:"required,uuid"`
	Currency  string                    `json:"currency" validate:"omitempty,len=3,lowercase"`
	IssueDate string                    `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate   string                    `json:"due_date" validate:"required,datetime=2006-01-02"`
	TaxRate   decimal.Decimal           `json:"tax_rate"`
	Discount  int64                     `json:"discount" validate:"gte=0"`
	Notes     string                    `json:"notes" validate:"max=2000"`
	Items     []CreateInvoiceItemParams `json:"items" validate:"required,min=1,dive"`
}

// InvoiceDetail is an invoice with its client, line items and payments.
type InvoiceDetail struct {
	Invoice  repository.Invoice       `json:"invoice"`
	Client   repository.Client        `json:"client"`
	Items    []repository.InvoiceItem `json:"items"`
	Payments []repository.Payment     `json:"payments"`
}

// Balance is the amount still owed in minor units, never negative.
func (d *InvoiceDetail) Balance() int64 {
	return Balance(d.Invoice)
}

// Balance returns total minus amount paid, floored at zero.
func Balance(inv repository.Invoice) int64 {
	if inv.AmountPaid >= inv.Total {
		return 0
	}
	return inv.Total - inv.AmountPaid
}

// CheckoutSession is a hosted payment page for an invoice balance.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// InvoiceService manages the invoice ledger.
type InvoiceService interface {
	// CreateInvoice creates a draft invoice, computing totals from its items.
	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*InvoiceDetail, error)

	// GetInvoice retrieves an invoice with client, items and payments.
	GetInvoice(ctx context.Context, invoiceID string) (*InvoiceDetail, error)

	// GetInvoiceByPortalToken retrieves an invoice for the client portal.
	GetInvoiceByPortalToken(ctx context.Context, token string) (*InvoiceDetail, error)

	// SendInvoice emails a draft invoice to its client and schedules reminders.
	SendInvoice(ctx context.Context, invoiceID string) (*repository.Invoice, error)

	// MarkViewed moves a sent invoice to viewed. Other statuses are left alone.
	MarkViewed(ctx context.Context, invoiceID string) error

	// CancelInvoice cancels an unpaid invoice and its pending reminders.
	CancelInvoice(ctx context.Context, invoiceID string) (*repository.Invoice, error)

	// MarkInvoicesOverdue flags sent/viewed invoices past their due date.
	MarkInvoicesOverdue(ctx context.Context) (int64, error)

	// CreateCheckoutSession starts a hosted payment for the outstanding balance.
	CreateCheckoutSession(ctx context.Context, portalToken string) (*CheckoutSession, error)
}
