package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, invoice_id, amount, amount_refunded, currency, method, status,
    stripe_payment_intent_id, stripe_session_id, stripe_charge_id, notes, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.InvoiceID,
		&i.Amount,
		&i.AmountRefunded,
		&i.Currency,
		&i.Method,
		&i.Status,
		&i.StripePaymentIntentID,
		&i.StripeSessionID,
		&i.StripeChargeID,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (
    invoice_id, amount, currency, method, status,
    stripe_payment_intent_id, stripe_session_id, notes
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8
)
RETURNING ` + paymentColumns + `
`

type CreatePaymentParams struct {
	InvoiceID             pgtype.UUID `json:"invoice_id"`
	Amount                int64       `json:"amount"`
	Currency              string      `json:"currency"`
	Method                string      `json:"method"`
	Status                string      `json:"status"`
	StripePaymentIntentID pgtype.Text `json:"stripe_payment_intent_id"`
	StripeSessionID       pgtype.Text `json:"stripe_session_id"`
	Notes                 pgtype.Text `json:"notes"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment,
		arg.InvoiceID,
		arg.Amount,
		arg.Currency,
		arg.Method,
		arg.Status,
		arg.StripePaymentIntentID,
		arg.StripeSessionID,
		arg.Notes,
	)
	return scanPayment(row)
}

const getPaymentByStripePaymentIntentID = `-- name: GetPaymentByStripePaymentIntentID :one
SELECT ` + paymentColumns + `
FROM payments
WHERE stripe_payment_intent_id = $1
  AND status <> 'failed'
ORDER BY created_at
LIMIT 1
`

// GetPaymentByStripePaymentIntentID returns the recorded (non-failed) payment for a payment intent.
func (q *Queries) GetPaymentByStripePaymentIntentID(ctx context.Context, stripePaymentIntentID pgtype.Text) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByStripePaymentIntentID, stripePaymentIntentID))
}

const updatePaymentRefund = `-- name: UpdatePaymentRefund :one
UPDATE payments
SET amount_refunded = $2,
    status = $3,
    stripe_charge_id = $4,
    notes = $5,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + paymentColumns + `
`

type UpdatePaymentRefundParams struct {
	ID             pgtype.UUID `json:"id"`
	AmountRefunded int64       `json:"amount_refunded"`
	Status         string      `json:"status"`
	StripeChargeID pgtype.Text `json:"stripe_charge_id"`
	Notes          pgtype.Text `json:"notes"`
}

func (q *Queries) UpdatePaymentRefund(ctx context.Context, arg UpdatePaymentRefundParams) (Payment, error) {
	row := q.db.QueryRow(ctx, updatePaymentRefund,
		arg.ID,
		arg.AmountRefunded,
		arg.Status,
		arg.StripeChargeID,
		arg.Notes,
	)
	return scanPayment(row)
}

const listPaymentsForInvoice = `-- name: ListPaymentsForInvoice :many
SELECT ` + paymentColumns + `
FROM payments
WHERE invoice_id = $1
ORDER BY created_at
`

func (q *Queries) ListPaymentsForInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsForInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Payment
	for rows.Next() {
		i, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
