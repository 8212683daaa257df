package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const reminderColumns = `id, invoice_id, user_id, reminder_type, days_offset, scheduled_for,
    status, claimed_at, sent_at, error, email_id, created_at`

func scanReminder(row pgx.Row) (ReminderSchedule, error) {
	var i ReminderSchedule
	err := row.Scan(
		&i.ID,
		&i.InvoiceID,
		&i.UserID,
		&i.ReminderType,
		&i.DaysOffset,
		&i.ScheduledFor,
		&i.Status,
		&i.ClaimedAt,
		&i.SentAt,
		&i.Error,
		&i.EmailID,
		&i.CreatedAt,
	)
	return i, err
}

func collectReminders(rows pgx.Rows) ([]ReminderSchedule, error) {
	defer rows.Close()
	var items []ReminderSchedule
	for rows.Next() {
		i, err := scanReminder(rows)
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

const deleteScheduledReminders = `-- name: DeleteScheduledReminders :execrows
DELETE FROM reminder_schedules
WHERE invoice_id = $1 AND status = 'scheduled'
`

func (q *Queries) DeleteScheduledReminders(ctx context.Context, invoiceID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteScheduledReminders, invoiceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const createReminderSchedule = `-- name: CreateReminderSchedule :one
INSERT INTO reminder_schedules (invoice_id, user_id, reminder_type, days_offset, scheduled_for, status)
VALUES ($1, $2, $3, $4, $5, 'scheduled')
RETURNING ` + reminderColumns + `
`

type CreateReminderScheduleParams struct {
	InvoiceID    pgtype.UUID        `json:"invoice_id"`
	UserID       pgtype.UUID        `json:"user_id"`
	ReminderType string             `json:"reminder_type"`
	DaysOffset   int32              `json:"days_offset"`
	ScheduledFor pgtype.Timestamptz `json:"scheduled_for"`
}

func (q *Queries) CreateReminderSchedule(ctx context.Context, arg CreateReminderScheduleParams) (ReminderSchedule, error) {
	row := q.db.QueryRow(ctx, createReminderSchedule,
		arg.InvoiceID,
		arg.UserID,
		arg.ReminderType,
		arg.DaysOffset,
		arg.ScheduledFor,
	)
	return scanReminder(row)
}

const claimDueReminders = `-- name: ClaimDueReminders :many
UPDATE reminder_schedules
SET status = 'sending', claimed_at = $1
WHERE id IN (
    SELECT id FROM reminder_schedules
    WHERE status = 'scheduled' AND scheduled_for <= $1
    ORDER BY scheduled_for
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + reminderColumns + `
`

type ClaimDueRemindersParams struct {
	Now   pgtype.Timestamptz `json:"now"`
	Limit int32              `json:"limit"`
}

// ClaimDueReminders moves up to Limit due rows to 'sending' and returns them.
// Rows locked by a concurrent claim are skipped, so two passes never share a row.
func (q *Queries) ClaimDueReminders(ctx context.Context, arg ClaimDueRemindersParams) ([]ReminderSchedule, error) {
	rows, err := q.db.Query(ctx, claimDueReminders, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

const expireReminderClaims = `-- name: ExpireReminderClaims :execrows
UPDATE reminder_schedules
SET status = 'failed', error = $2
WHERE status = 'sending' AND claimed_at < $1
`

type ExpireReminderClaimsParams struct {
	Before pgtype.Timestamptz `json:"before"`
	Error  pgtype.Text        `json:"error"`
}

func (q *Queries) ExpireReminderClaims(ctx context.Context, arg ExpireReminderClaimsParams) (int64, error) {
	result, err := q.db.Exec(ctx, expireReminderClaims, arg.Before, arg.Error)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listRemindersForInvoice = `-- name: ListRemindersForInvoice :many
SELECT ` + reminderColumns + `
FROM reminder_schedules
WHERE invoice_id = $1
ORDER BY scheduled_for
`

func (q *Queries) ListRemindersForInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]ReminderSchedule, error) {
	rows, err := q.db.Query(ctx, listRemindersForInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

const releaseReminderClaim = `-- name: ReleaseReminderClaim :execrows
UPDATE reminder_schedules
SET status = 'scheduled', claimed_at = NULL
WHERE id = $1 AND status = 'sending'
`

// ReleaseReminderClaim returns a claimed row that was never attempted.
func (q *Queries) ReleaseReminderClaim(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, releaseReminderClaim, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// The three transitions below only apply to a claimed row, so a row reaches
// a terminal status at most once.

const markReminderSent = `-- name: MarkReminderSent :execrows
UPDATE reminder_schedules
SET status = 'sent', sent_at = $2, email_id = $3
WHERE id = $1 AND status = 'sending'
`

type MarkReminderSentParams struct {
	ID      pgtype.UUID        `json:"id"`
	SentAt  pgtype.Timestamptz `json:"sent_at"`
	EmailID pgtype.Text        `json:"email_id"`
}

func (q *Queries) MarkReminderSent(ctx context.Context, arg MarkReminderSentParams) (int64, error) {
	result, err := q.db.Exec(ctx, markReminderSent, arg.ID, arg.SentAt, arg.EmailID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markReminderFailed = `-- name: MarkReminderFailed :execrows
UPDATE reminder_schedules
SET status = 'failed', error = $2
WHERE id = $1 AND status = 'sending'
`

type MarkReminderFailedParams struct {
	ID    pgtype.UUID `json:"id"`
	Error pgtype.Text `json:"error"`
}

func (q *Queries) MarkReminderFailed(ctx context.Context, arg MarkReminderFailedParams) (int64, error) {
	result, err := q.db.Exec(ctx, markReminderFailed, arg.ID, arg.Error)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markReminderCancelled = `-- name: MarkReminderCancelled :execrows
UPDATE reminder_schedules
SET status = 'cancelled'
WHERE id = $1 AND status = 'sending'
`

func (q *Queries) MarkReminderCancelled(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, markReminderCancelled, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const cancelScheduledReminders = `-- name: CancelScheduledReminders :execrows
UPDATE reminder_schedules
SET status = 'cancelled'
WHERE invoice_id = $1 AND status = 'scheduled'
`

func (q *Queries) CancelScheduledReminders(ctx context.Context, invoiceID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, cancelScheduledReminders, invoiceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
