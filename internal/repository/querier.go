package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	CancelScheduledReminders(ctx context.Context, invoiceID pgtype.UUID) (int64, error)
	ClaimDueReminders(ctx context.Context, arg ClaimDueRemindersParams) ([]ReminderSchedule, error)
	CreateClient(ctx context.Context, arg CreateClientParams) (Client, error)
	CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error)
	CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error)
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error)
	CreateReminderSchedule(ctx context.Context, arg CreateReminderScheduleParams) (ReminderSchedule, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	CreateWebhookEvent(ctx context.Context, arg CreateWebhookEventParams) (int64, error)
	DeleteScheduledReminders(ctx context.Context, invoiceID pgtype.UUID) (int64, error)
	ExpireReminderClaims(ctx context.Context, arg ExpireReminderClaimsParams) (int64, error)
	GetClientByID(ctx context.Context, id pgtype.UUID) (Client, error)
	GetInvoiceByID(ctx context.Context, id pgtype.UUID) (Invoice, error)
	GetInvoiceByIDForUpdate(ctx context.Context, id pgtype.UUID) (Invoice, error)
	GetInvoiceByPortalToken(ctx context.Context, portalToken string) (Invoice, error)
	GetPaymentByStripePaymentIntentID(ctx context.Context, stripePaymentIntentID pgtype.Text) (Payment, error)
	GetReminderSettings(ctx context.Context, userID pgtype.UUID) ([]byte, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (User, error)
	ListInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) ([]InvoiceItem, error)
	ListPaymentsForInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]Payment, error)
	ListRemindersForInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]ReminderSchedule, error)
	MarkInvoiceSent(ctx context.Context, arg MarkInvoiceSentParams) (Invoice, error)
	MarkInvoiceViewed(ctx context.Context, arg MarkInvoiceViewedParams) (int64, error)
	MarkInvoicesOverdue(ctx context.Context, today pgtype.Date) (int64, error)
	MarkReminderCancelled(ctx context.Context, id pgtype.UUID) (int64, error)
	MarkReminderFailed(ctx context.Context, arg MarkReminderFailedParams) (int64, error)
	MarkReminderSent(ctx context.Context, arg MarkReminderSentParams) (int64, error)
	NextInvoiceSequence(ctx context.Context, arg NextInvoiceSequenceParams) (int32, error)
	RecordInvoiceReminderSent(ctx context.Context, arg RecordInvoiceReminderSentParams) error
	ReleaseReminderClaim(ctx context.Context, id pgtype.UUID) (int64, error)
	UpdateInvoicePayment(ctx context.Context, arg UpdateInvoicePaymentParams) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, arg UpdateInvoiceStatusParams) (Invoice, error)
	UpdatePaymentRefund(ctx context.Context, arg UpdatePaymentRefundParams) (Payment, error)
	UpsertReminderSettings(ctx context.Context, arg UpsertReminderSettingsParams) error
}

var _ Querier = (*Queries)(nil)
