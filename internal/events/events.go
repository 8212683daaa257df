// Package events publishes invoice and reminder domain events.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subjects published by the service.
const (
	SubjectInvoicePaid          = "invoice.paid"
	SubjectInvoiceRefunded      = "invoice.refunded"
	SubjectInvoicePaymentFailed = "invoice.payment_failed"
	SubjectReminderSent         = "reminder.sent"
)

// Event is the envelope every message is wrapped in.
type Event struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// NewEvent wraps data for subject with a fresh ID.
func NewEvent(subject string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type InvoicePaid struct {
	InvoiceID     string `json:"invoice_id"`
	UserID        string `json:"user_id"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        int64  `json:"amount"`
	AmountPaid    int64  `json:"amount_paid"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
	PaidInFull    bool   `json:"paid_in_full"`
}

type InvoiceRefunded struct {
	InvoiceID      string `json:"invoice_id"`
	UserID         string `json:"user_id"`
	ChargeID       string `json:"charge_id"`
	RefundedAmount int64  `json:"refunded_amount"`
	AmountPaid     int64  `json:"amount_paid"`
	Status         string `json:"status"`
}

type InvoicePaymentFailed struct {
	InvoiceID       string `json:"invoice_id"`
	UserID          string `json:"user_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	FailureMessage  string `json:"failure_message,omitempty"`
}

type ReminderSent struct {
	ReminderID   string `json:"reminder_id"`
	InvoiceID    string `json:"invoice_id"`
	UserID       string `json:"user_id"`
	ReminderType string `json:"reminder_type"`
	EmailID      string `json:"email_id"`
}

// Publisher publishes domain events. Publishing is fire-and-forget from the
// caller's point of view; errors are returned for logging only.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

// Noop discards every event. Used when NATS is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, NewEvent(subject, data))
	return nil
}

// Subjects returns the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Subject
	}
	return out
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
