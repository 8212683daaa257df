package service

import (
	"context"

	"github.com/dukerupert/ledgerline/internal/email"
)

// Mailer composes and delivers the emails services send. *email.Service
// implements it.
type Mailer interface {
	SendReminder(ctx context.Context, data email.ReminderEmail) (email.SendResult, error)
	SendInvoice(ctx context.Context, data email.InvoiceEmail) (email.SendResult, error)
	SendPaymentReceipt(ctx context.Context, data email.PaymentReceiptEmail) (email.SendResult, error)
	SendPaymentNotification(ctx context.Context, data email.PaymentNotificationEmail) (email.SendResult, error)
	SendPaymentFailed(ctx context.Context, data email.PaymentFailedEmail) (email.SendResult, error)
}

var _ Mailer = (*email.Service)(nil)

// portalURL builds the client-facing link for an invoice.
func portalURL(baseURL, token string) string {
	return baseURL + "/portal/" + token
}
