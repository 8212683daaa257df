package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Client struct {
	ID        pgtype.UUID        `json:"id"`
	UserID    pgtype.UUID        `json:"user_id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Company   pgtype.Text        `json:"company"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type Invoice struct {
	ID             pgtype.UUID        `json:"id"`
	UserID         pgtype.UUID        `json:"user_id"`
	ClientID       pgtype.UUID        `json:"client_id"`
	InvoiceNumber  string             `json:"invoice_number"`
	Currency       string             `json:"currency"`
	Subtotal       int64              `json:"subtotal"`
	Tax            int64              `json:"tax"`
	Discount       int64              `json:"discount"`
	Total          int64              `json:"total"`
	AmountPaid     int64              `json:"amount_paid"`
	Status         string             `json:"status"`
	IssueDate      pgtype.Date        `json:"issue_date"`
	DueDate        pgtype.Date        `json:"due_date"`
	PaidAt         pgtype.Timestamptz `json:"paid_at"`
	SentAt         pgtype.Timestamptz `json:"sent_at"`
	ViewedAt       pgtype.Timestamptz `json:"viewed_at"`
	ReminderCount  int32              `json:"reminder_count"`
	LastReminderAt pgtype.Timestamptz `json:"last_reminder_at"`
	PortalToken    string             `json:"portal_token"`
	Notes          pgtype.Text        `json:"notes"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
}

type InvoiceItem struct {
	ID          pgtype.UUID     `json:"id"`
	InvoiceID   pgtype.UUID     `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Amount      int64           `json:"amount"`
	Position    int32           `json:"position"`
}

type Payment struct {
	ID                    pgtype.UUID        `json:"id"`
	InvoiceID             pgtype.UUID        `json:"invoice_id"`
	Amount                int64              `json:"amount"`
	AmountRefunded        int64              `json:"amount_refunded"`
	Currency              string             `json:"currency"`
	Method                string             `json:"method"`
	Status                string             `json:"status"`
	StripePaymentIntentID pgtype.Text        `json:"stripe_payment_intent_id"`
	StripeSessionID       pgtype.Text        `json:"stripe_session_id"`
	StripeChargeID        pgtype.Text        `json:"stripe_charge_id"`
	Notes                 pgtype.Text        `json:"notes"`
	CreatedAt             pgtype.Timestamptz `json:"created_at"`
	UpdatedAt             pgtype.Timestamptz `json:"updated_at"`
}

type ReminderSchedule struct {
	ID           pgtype.UUID        `json:"id"`
	InvoiceID    pgtype.UUID        `json:"invoice_id"`
	UserID       pgtype.UUID        `json:"user_id"`
	ReminderType string             `json:"reminder_type"`
	DaysOffset   int32              `json:"days_offset"`
	ScheduledFor pgtype.Timestamptz `json:"scheduled_for"`
	Status       string             `json:"status"`
	ClaimedAt    pgtype.Timestamptz `json:"claimed_at"`
	SentAt       pgtype.Timestamptz `json:"sent_at"`
	Error        pgtype.Text        `json:"error"`
	EmailID      pgtype.Text        `json:"email_id"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

type User struct {
	ID           pgtype.UUID        `json:"id"`
	Email        string             `json:"email"`
	Name         string             `json:"name"`
	BusinessName pgtype.Text        `json:"business_name"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
}

type UserSetting struct {
	UserID           pgtype.UUID        `json:"user_id"`
	ReminderSettings []byte             `json:"reminder_settings"`
	UpdatedAt        pgtype.Timestamptz `json:"updated_at"`
}

type WebhookEvent struct {
	ID              pgtype.UUID        `json:"id"`
	Provider        string             `json:"provider"`
	ProviderEventID string             `json:"provider_event_id"`
	EventType       string             `json:"event_type"`
	ProcessedAt     pgtype.Timestamptz `json:"processed_at"`
}
