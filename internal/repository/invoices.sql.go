package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, user_id, client_id, invoice_number, currency, subtotal, tax, discount, total,
    amount_paid, status, issue_date, due_date, paid_at, sent_at, viewed_at, reminder_count,
    last_reminder_at, portal_token, notes, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.ClientID,
		&i.InvoiceNumber,
		&i.Currency,
		&i.Subtotal,
		&i.Tax,
		&i.Discount,
		&i.Total,
		&i.AmountPaid,
		&i.Status,
		&i.IssueDate,
		&i.DueDate,
		&i.PaidAt,
		&i.SentAt,
		&i.ViewedAt,
		&i.ReminderCount,
		&i.LastReminderAt,
		&i.PortalToken,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const nextInvoiceSequence = `-- name: NextInvoiceSequence :one
INSERT INTO invoice_sequences (user_id, year, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, year) DO UPDATE
SET last_value = invoice_sequences.last_value + 1
RETURNING last_value
`

type NextInvoiceSequenceParams struct {
	UserID pgtype.UUID `json:"user_id"`
	Year   int32       `json:"year"`
}

func (q *Queries) NextInvoiceSequence(ctx context.Context, arg NextInvoiceSequenceParams) (int32, error) {
	row := q.db.QueryRow(ctx, nextInvoiceSequence, arg.UserID, arg.Year)
	var last_value int32
	err := row.Scan(&last_value)
	return last_value, err
}

const createInvoice = `-- name: CreateInvoice :one
INSERT INTO invoices (
    user_id, client_id, invoice_number, currency, subtotal, tax, discount, total,
    status, issue_date, due_date, portal_token, notes
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, 'draft', $9, $10, $11, $12
)
RETURNING ` + invoiceColumns + `
`

type CreateInvoiceParams struct {
	UserID        pgtype.UUID `json:"user_id"`
	ClientID      pgtype.UUID `json:"client_id"`
	InvoiceNumber string      `json:"invoice_number"`
	Currency      string      `json:"currency"`
	Subtotal      int64       `json:"subtotal"`
	Tax           int64       `json:"tax"`
	Discount      int64       `json:"discount"`
	Total         int64       `json:"total"`
	IssueDate     pgtype.Date `json:"issue_date"`
	DueDate       pgtype.Date `json:"due_date"`
	PortalToken   string      `json:"portal_token"`
	Notes         pgtype.Text `json:"notes"`
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, createInvoice,
		arg.UserID,
		arg.ClientID,
		arg.InvoiceNumber,
		arg.Currency,
		arg.Subtotal,
		arg.Tax,
		arg.Discount,
		arg.Total,
		arg.IssueDate,
		arg.DueDate,
		arg.PortalToken,
		arg.Notes,
	)
	return scanInvoice(row)
}

const createInvoiceItem = `-- name: CreateInvoiceItem :one
INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, amount, position)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, invoice_id, description, quantity, unit_price, amount, position
`

type CreateInvoiceItemParams struct {
	InvoiceID   pgtype.UUID     `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Amount      int64           `json:"amount"`
	Position    int32           `json:"position"`
}

func (q *Queries) CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error) {
	row := q.db.QueryRow(ctx, createInvoiceItem,
		arg.InvoiceID,
		arg.Description,
		arg.Quantity,
		arg.UnitPrice,
		arg.Amount,
		arg.Position,
	)
	var i InvoiceItem
	err := row.Scan(
		&i.ID,
		&i.InvoiceID,
		&i.Description,
		&i.Quantity,
		&i.UnitPrice,
		&i.Amount,
		&i.Position,
	)
	return i, err
}

const listInvoiceItems = `-- name: ListInvoiceItems :many
SELECT id, invoice_id, description, quantity, unit_price, amount, position
FROM invoice_items
WHERE invoice_id = $1
ORDER BY position
`

func (q *Queries) ListInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) ([]InvoiceItem, error) {
	rows, err := q.db.Query(ctx, listInvoiceItems, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		var i InvoiceItem
		if err := rows.Scan(
			&i.ID,
			&i.InvoiceID,
			&i.Description,
			&i.Quantity,
			&i.UnitPrice,
			&i.Amount,
			&i.Position,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getInvoiceByID = `-- name: GetInvoiceByID :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE id = $1
`

func (q *Queries) GetInvoiceByID(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceByID, id))
}

const getInvoiceByIDForUpdate = `-- name: GetInvoiceByIDForUpdate :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE id = $1
FOR UPDATE
`

// GetInvoiceByIDForUpdate locks the invoice row for the rest of the transaction.
func (q *Queries) GetInvoiceByIDForUpdate(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceByIDForUpdate, id))
}

const getInvoiceByPortalToken = `-- name: GetInvoiceByPortalToken :one
SELECT ` + invoiceColumns + `
FROM invoices
WHERE portal_token = $1
`

func (q *Queries) GetInvoiceByPortalToken(ctx context.Context, portalToken string) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceByPortalToken, portalToken))
}

const updateInvoiceStatus = `-- name: UpdateInvoiceStatus :one
UPDATE invoices
SET status = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns + `
`

type UpdateInvoiceStatusParams struct {
	ID     pgtype.UUID `json:"id"`
	Status string      `json:"status"`
}

func (q *Queries) UpdateInvoiceStatus(ctx context.Context, arg UpdateInvoiceStatusParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, updateInvoiceStatus, arg.ID, arg.Status))
}

const markInvoiceSent = `-- name: MarkInvoiceSent :one
UPDATE invoices
SET status = 'sent', sent_at = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns + `
`

type MarkInvoiceSentParams struct {
	ID     pgtype.UUID        `json:"id"`
	SentAt pgtype.Timestamptz `json:"sent_at"`
}

func (q *Queries) MarkInvoiceSent(ctx context.Context, arg MarkInvoiceSentParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, markInvoiceSent, arg.ID, arg.SentAt))
}

const markInvoiceViewed = `-- name: MarkInvoiceViewed :execrows
UPDATE invoices
SET status = 'viewed', viewed_at = $2, updated_at = NOW()
WHERE id = $1 AND status = 'sent'
`

type MarkInvoiceViewedParams struct {
	ID       pgtype.UUID        `json:"id"`
	ViewedAt pgtype.Timestamptz `json:"viewed_at"`
}

func (q *Queries) MarkInvoiceViewed(ctx context.Context, arg MarkInvoiceViewedParams) (int64, error) {
	result, err := q.db.Exec(ctx, markInvoiceViewed, arg.ID, arg.ViewedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const updateInvoicePayment = `-- name: UpdateInvoicePayment :one
UPDATE invoices
SET amount_paid = $2, status = $3, paid_at = $4, updated_at = NOW()
WHERE id = $1
RETURNING ` + invoiceColumns + `
`

type UpdateInvoicePaymentParams struct {
	ID         pgtype.UUID        `json:"id"`
	AmountPaid int64              `json:"amount_paid"`
	Status     string             `json:"status"`
	PaidAt     pgtype.Timestamptz `json:"paid_at"`
}

func (q *Queries) UpdateInvoicePayment(ctx context.Context, arg UpdateInvoicePaymentParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, updateInvoicePayment,
		arg.ID,
		arg.AmountPaid,
		arg.Status,
		arg.PaidAt,
	)
	return scanInvoice(row)
}

const recordInvoiceReminderSent = `-- name: RecordInvoiceReminderSent :exec
UPDATE invoices
SET reminder_count = reminder_count + 1, last_reminder_at = $2, updated_at = NOW()
WHERE id = $1
`

type RecordInvoiceReminderSentParams struct {
	ID             pgtype.UUID        `json:"id"`
	LastReminderAt pgtype.Timestamptz `json:"last_reminder_at"`
}

func (q *Queries) RecordInvoiceReminderSent(ctx context.Context, arg RecordInvoiceReminderSentParams) error {
	_, err := q.db.Exec(ctx, recordInvoiceReminderSent, arg.ID, arg.LastReminderAt)
	return err
}

const markInvoicesOverdue = `-- name: MarkInvoicesOverdue :execrows
UPDATE invoices
SET status = 'overdue', updated_at = NOW()
WHERE status IN ('sent', 'viewed')
  AND due_date < $1
  AND amount_paid < total
`

func (q *Queries) MarkInvoicesOverdue(ctx context.Context, today pgtype.Date) (int64, error) {
	result, err := q.db.Exec(ctx, markInvoicesOverdue, today)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
