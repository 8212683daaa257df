package email

import (
	"fmt"
	"time"

	"github.com/dukerupert/ledgerline/internal/domain"
)

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// ReminderEmail is the data for a payment reminder sent to a client.
type ReminderEmail struct {
	Type            domain.ReminderType
	ClientName      string
	ClientEmail     string
	BusinessName    string
	FreelancerEmail string
	InvoiceNumber   string
	Currency        string
	Total           int64
	AmountPaid      int64
	DueDate         time.Time
	DaysOverdue     int
	PortalURL       string
}

// AmountDue is the outstanding balance, never negative.
func (e ReminderEmail) AmountDue() int64 {
	if e.AmountPaid >= e.Total {
		return 0
	}
	return e.Total - e.AmountPaid
}

func (e ReminderEmail) Subject() string {
	return e.Copy().Subject
}

func (e ReminderEmail) TemplateName() string {
	return "reminder.html"
}

// Copy returns the fixed wording for the reminder's tier.
func (e ReminderEmail) Copy() ReminderCopy {
	c, _ := reminderCopy(e)
	return c
}

// ReminderCopy is the tier-specific wording of a reminder.
type ReminderCopy struct {
	Subject string
	Heading string
	Intro   string
	Closing string
}

// reminderCopy selects wording by reminder type. Unknown types report false.
func reminderCopy(e ReminderEmail) (ReminderCopy, bool) {
	days := e.DaysOverdue
	if days < 0 {
		days = 0
	}
	due := e.DueDate.Format("January 2, 2006")
	amount := FormatMoney(e.AmountDue(), e.Currency)
	from := e.BusinessName

	switch e.Type {
	case domain.ReminderUpcomingDue:
		return ReminderCopy{
			Subject: fmt.Sprintf("Upcoming: invoice %s is due %s", e.InvoiceNumber, due),
			Heading: "A friendly heads-up",
			Intro:   fmt.Sprintf("Invoice %s from %s for %s is due on %s.", e.InvoiceNumber, from, amount, due),
			Closing: "If you have already arranged payment, thank you and please disregard this note.",
		}, true
	case domain.ReminderDueToday:
		return ReminderCopy{
			Subject: fmt.Sprintf("Invoice %s is due today", e.InvoiceNumber),
			Heading: "Your invoice is due today",
			Intro:   fmt.Sprintf("Invoice %s from %s for %s is due today.", e.InvoiceNumber, from, amount),
			Closing: "You can pay securely online using the link below.",
		}, true
	case domain.ReminderOverdueGentle:
		return ReminderCopy{
			Subject: fmt.Sprintf("Reminder: invoice %s is past due", e.InvoiceNumber),
			Heading: "Just a quick reminder",
			Intro: fmt.Sprintf("Invoice %s for %s was due on %s and is now %s overdue.",
				e.InvoiceNumber, amount, due, pluralDays(days)),
			Closing: "It may have slipped through the cracks. We would appreciate payment at your earliest convenience.",
		}, true
	case domain.ReminderOverdueFirm:
		return ReminderCopy{
			Subject: fmt.Sprintf("Second notice: invoice %s is %s overdue", e.InvoiceNumber, pluralDays(days)),
			Heading: "Payment is overdue",
			Intro: fmt.Sprintf("We have not yet received payment of %s for invoice %s, which was due on %s.",
				amount, e.InvoiceNumber, due),
			Closing: "Please arrange payment promptly or reply to let us know when we can expect it.",
		}, true
	case domain.ReminderOverdueFinal:
		return ReminderCopy{
			Subject: fmt.Sprintf("Final notice: invoice %s", e.InvoiceNumber),
			Heading: "Final notice",
			Intro: fmt.Sprintf("Invoice %s for %s is now %s overdue. This is our final reminder before further action.",
				e.InvoiceNumber, amount, pluralDays(days)),
			Closing: "Please pay the outstanding balance immediately or contact us to discuss.",
		}, true
	case domain.ReminderOverdueUrgent:
		return ReminderCopy{
			Subject: fmt.Sprintf("Urgent: invoice %s requires immediate attention", e.InvoiceNumber),
			Heading: "Urgent: immediate payment required",
			Intro: fmt.Sprintf("Invoice %s for %s has been outstanding for %s past its due date of %s.",
				e.InvoiceNumber, amount, pluralDays(days), due),
			Closing: "If payment is not received we may need to suspend work and pursue collection.",
		}, true
	}
	return ReminderCopy{}, false
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// InvoiceEmail is sent to the client when an invoice goes out.
type InvoiceEmail struct {
	ClientName      string
	ClientEmail     string
	BusinessName    string
	FreelancerEmail string
	InvoiceNumber   string
	Currency        string
	Total           int64
	DueDate         time.Time
	Notes           string
	PortalURL       string
}

func (e InvoiceEmail) Subject() string {
	return fmt.Sprintf("Invoice %s from %s", e.InvoiceNumber, e.BusinessName)
}

func (e InvoiceEmail) TemplateName() string {
	return "invoice.html"
}

// PaymentReceiptEmail confirms a payment to the client.
type PaymentReceiptEmail struct {
	ClientName      string
	ClientEmail     string
	BusinessName    string
	FreelancerEmail string
	InvoiceNumber   string
	Currency        string
	Amount          int64
	Total           int64
	AmountPaid      int64
	PaidAt          time.Time
	PortalURL       string
}

// PaidInFull reports whether the payment settled the invoice.
func (e PaymentReceiptEmail) PaidInFull() bool {
	return e.AmountPaid >= e.Total
}

func (e PaymentReceiptEmail) Balance() int64 {
	if e.PaidInFull() {
		return 0
	}
	return e.Total - e.AmountPaid
}

func (e PaymentReceiptEmail) Subject() string {
	return fmt.Sprintf("Payment received for invoice %s", e.InvoiceNumber)
}

func (e PaymentReceiptEmail) TemplateName() string {
	return "payment_receipt.html"
}

// PaymentNotificationEmail tells the freelancer a client has paid.
type PaymentNotificationEmail struct {
	FreelancerName  string
	FreelancerEmail string
	ClientName      string
	InvoiceNumber   string
	Currency        string
	Amount          int64
	Total           int64
	AmountPaid      int64
}

func (e PaymentNotificationEmail) PaidInFull() bool {
	return e.AmountPaid >= e.Total
}

func (e PaymentNotificationEmail) Subject() string {
	return fmt.Sprintf("%s paid %s on invoice %s", e.ClientName, FormatMoney(e.Amount, e.Currency), e.InvoiceNumber)
}

func (e PaymentNotificationEmail) TemplateName() string {
	return "payment_notification.html"
}

// PaymentFailedEmail tells the client a card payment did not go through.
type PaymentFailedEmail struct {
	ClientName      string
	ClientEmail     string
	BusinessName    string
	FreelancerEmail string
	InvoiceNumber   string
	Currency        string
	Amount          int64
	FailureMessage  string
	RetryURL        string
}

func (e PaymentFailedEmail) Subject() string {
	return fmt.Sprintf("Payment failed for invoice %s", e.InvoiceNumber)
}

func (e PaymentFailedEmail) TemplateName() string {
	return "payment_failed.html"
}
