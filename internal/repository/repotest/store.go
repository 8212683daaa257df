// Package repotest provides an in-memory repository.Store for service tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Store is an in-memory repository.Store. Transactions are serialized and
// rolled back by restoring a snapshot taken when they began.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	// Now supplies timestamps for columns the database would default.
	Now func() time.Time

	users         map[[16]byte]repository.User
	settings      map[[16]byte][]byte
	clients       map[[16]byte]repository.Client
	invoices      map[[16]byte]repository.Invoice
	items         []repository.InvoiceItem
	sequences     map[string]int32
	payments      []repository.Payment
	reminders     []repository.ReminderSchedule
	webhookEvents map[string]repository.WebhookEvent

	failures map[string]error
}

type snapshot struct {
	users         map[[16]byte]repository.User
	settings      map[[16]byte][]byte
	clients       map[[16]byte]repository.Client
	invoices      map[[16]byte]repository.Invoice
	items         []repository.InvoiceItem
	sequences     map[string]int32
	payments      []repository.Payment
	reminders     []repository.ReminderSchedule
	webhookEvents map[string]repository.WebhookEvent
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		Now:           time.Now,
		users:         make(map[[16]byte]repository.User),
		settings:      make(map[[16]byte][]byte),
		clients:       make(map[[16]byte]repository.Client),
		invoices:      make(map[[16]byte]repository.Invoice),
		sequences:     make(map[string]int32),
		webhookEvents: make(map[string]repository.WebhookEvent),
		failures:      make(map[string]error),
	}
}

// FailOn makes every later call to the named method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

func (s *Store) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:         make(map[[16]byte]repository.User, len(s.users)),
		settings:      make(map[[16]byte][]byte, len(s.settings)),
		clients:       make(map[[16]byte]repository.Client, len(s.clients)),
		invoices:      make(map[[16]byte]repository.Invoice, len(s.invoices)),
		items:         append([]repository.InvoiceItem(nil), s.items...),
		sequences:     make(map[string]int32, len(s.sequences)),
		payments:      append([]repository.Payment(nil), s.payments...),
		reminders:     append([]repository.ReminderSchedule(nil), s.reminders...),
		webhookEvents: make(map[string]repository.WebhookEvent, len(s.webhookEvents)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.settings {
		snap.settings[k] = v
	}
	for k, v := range s.clients {
		snap.clients[k] = v
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	for k, v := range s.webhookEvents {
		snap.webhookEvents[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.settings = snap.settings
	s.clients = snap.clients
	s.invoices = snap.invoices
	s.items = snap.items
	s.sequences = snap.sequences
	s.payments = snap.payments
	s.reminders = snap.reminders
	s.webhookEvents = snap.webhookEvents
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func (s *Store) now() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: s.Now(), Valid: true}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

// =============================================================================
// Test helpers
// =============================================================================

// PutInvoice inserts or replaces an invoice as-is.
func (s *Store) PutInvoice(inv repository.Invoice) repository.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !inv.ID.Valid {
		inv.ID = newID()
	}
	if inv.PortalToken == "" {
		inv.PortalToken = uuid.NewString()
	}
	s.invoices[inv.ID.Bytes] = inv
	return inv
}

// PutReminder inserts a reminder row as-is.
func (s *Store) PutReminder(r repository.ReminderSchedule) repository.ReminderSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !r.ID.Valid {
		r.ID = newID()
	}
	s.reminders = append(s.reminders, r)
	return r
}

// PutSettings stores a raw reminder settings document for a user.
func (s *Store) PutSettings(userID pgtype.UUID, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[userID.Bytes] = raw
}

// Invoice returns the current state of an invoice.
func (s *Store) Invoice(id pgtype.UUID) repository.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id.Bytes]
}

// Payments returns all payments for an invoice in insertion order.
func (s *Store) Payments(invoiceID pgtype.UUID) []repository.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Payment
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out
}

// Reminders returns all reminder rows for an invoice in insertion order.
func (s *Store) Reminders(invoiceID pgtype.UUID) []repository.ReminderSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.ReminderSchedule
	for _, r := range s.reminders {
		if r.InvoiceID == invoiceID {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// Users and settings
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateUser"); err != nil {
		return repository.User{}, err
	}
	for _, u := range s.users {
		if u.Email == arg.Email {
			return repository.User{}, uniqueViolation("users_email_key")
		}
	}
	u := repository.User{
		ID:           newID(),
		Email:        arg.Email,
		Name:         arg.Name,
		BusinessName: arg.BusinessName,
		CreatedAt:    s.now(),
	}
	s.users[u.ID.Bytes] = u
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id pgtype.UUID) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetUserByID"); err != nil {
		return repository.User{}, err
	}
	u, ok := s.users[id.Bytes]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetReminderSettings(ctx context.Context, userID pgtype.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetReminderSettings"); err != nil {
		return nil, err
	}
	raw, ok := s.settings[userID.Bytes]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return raw, nil
}

func (s *Store) UpsertReminderSettings(ctx context.Context, arg repository.UpsertReminderSettingsParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertReminderSettings"); err != nil {
		return err
	}
	s.settings[arg.UserID.Bytes] = arg.ReminderSettings
	return nil
}

// =============================================================================
// Clients
// =============================================================================

func (s *Store) CreateClient(ctx context.Context, arg repository.CreateClientParams) (repository.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateClient"); err != nil {
		return repository.Client{}, err
	}
	c := repository.Client{
		ID:        newID(),
		UserID:    arg.UserID,
		Name:      arg.Name,
		Email:     arg.Email,
		Company:   arg.Company,
		CreatedAt: s.now(),
	}
	s.clients[c.ID.Bytes] = c
	return c, nil
}

func (s *Store) GetClientByID(ctx context.Context, id pgtype.UUID) (repository.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetClientByID"); err != nil {
		return repository.Client{}, err
	}
	c, ok := s.clients[id.Bytes]
	if !ok {
		return repository.Client{}, pgx.ErrNoRows
	}
	return c, nil
}

// =============================================================================
// Invoices
// =============================================================================

func (s *Store) NextInvoiceSequence(ctx context.Context, arg repository.NextInvoiceSequenceParams) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("NextInvoiceSequence"); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%x/%d", arg.UserID.Bytes, arg.Year)
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *Store) CreateInvoice(ctx context.Context, arg repository.CreateInvoiceParams) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateInvoice"); err != nil {
		return repository.Invoice{}, err
	}
	for _, inv := range s.invoices {
		if inv.PortalToken == arg.PortalToken {
			return repository.Invoice{}, uniqueViolation("invoices_portal_token_key")
		}
		if inv.UserID == arg.UserID && inv.InvoiceNumber == arg.InvoiceNumber {
			return repository.Invoice{}, uniqueViolation("invoices_user_id_invoice_number_key")
		}
	}
	inv := repository.Invoice{
		ID:            newID(),
		UserID:        arg.UserID,
		ClientID:      arg.ClientID,
		InvoiceNumber: arg.InvoiceNumber,
		Currency:      arg.Currency,
		Subtotal:      arg.Subtotal,
		Tax:           arg.Tax,
		Discount:      arg.Discount,
		Total:         arg.Total,
		Status:        "draft",
		IssueDate:     arg.IssueDate,
		DueDate:       arg.DueDate,
		PortalToken:   arg.PortalToken,
		Notes:         arg.Notes,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	s.invoices[inv.ID.Bytes] = inv
	return inv, nil
}

func (s *Store) CreateInvoiceItem(ctx context.Context, arg repository.CreateInvoiceItemParams) (repository.InvoiceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateInvoiceItem"); err != nil {
		return repository.InvoiceItem{}, err
	}
	item := repository.InvoiceItem{
		ID:          newID(),
		InvoiceID:   arg.InvoiceID,
		Description: arg.Description,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		Amount:      arg.Amount,
		Position:    arg.Position,
	}
	s.items = append(s.items, item)
	return item, nil
}

func (s *Store) ListInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) ([]repository.InvoiceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListInvoiceItems"); err != nil {
		return nil, err
	}
	var out []repository.InvoiceItem
	for _, item := range s.items {
		if item.InvoiceID == invoiceID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) getInvoice(method string, id pgtype.UUID) (repository.Invoice, error) {
	if err := s.fail(method); err != nil {
		return repository.Invoice{}, err
	}
	inv, ok := s.invoices[id.Bytes]
	if !ok {
		return repository.Invoice{}, pgx.ErrNoRows
	}
	return inv, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id pgtype.UUID) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInvoice("GetInvoiceByID", id)
}

func (s *Store) GetInvoiceByIDForUpdate(ctx context.Context, id pgtype.UUID) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInvoice("GetInvoiceByIDForUpdate", id)
}

func (s *Store) GetInvoiceByPortalToken(ctx context.Context, portalToken string) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetInvoiceByPortalToken"); err != nil {
		return repository.Invoice{}, err
	}
	for _, inv := range s.invoices {
		if inv.PortalToken == portalToken {
			return inv, nil
		}
	}
	return repository.Invoice{}, pgx.ErrNoRows
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, arg repository.UpdateInvoiceStatusParams) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.getInvoice("UpdateInvoiceStatus", arg.ID)
	if err != nil {
		return inv, err
	}
	inv.Status = arg.Status
	inv.UpdatedAt = s.now()
	s.invoices[inv.ID.Bytes] = inv
	return inv, nil
}

func (s *Store) MarkInvoiceSent(ctx context.Context, arg repository.MarkInvoiceSentParams) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.getInvoice("MarkInvoiceSent", arg.ID)
	if err != nil {
		return inv, err
	}
	inv.Status = "sent"
	inv.SentAt = arg.SentAt
	inv.UpdatedAt = s.now()
	s.invoices[inv.ID.Bytes] = inv
	return inv, nil
}

func (s *Store) MarkInvoiceViewed(ctx context.Context, arg repository.MarkInvoiceViewedParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkInvoiceViewed"); err != nil {
		return 0, err
	}
	inv, ok := s.invoices[arg.ID.Bytes]
	if !ok || inv.Status != "sent" {
		return 0, nil
	}
	inv.Status = "viewed"
	inv.ViewedAt = arg.ViewedAt
	s.invoices[inv.ID.Bytes] = inv
	return 1, nil
}

func (s *Store) UpdateInvoicePayment(ctx context.Context, arg repository.UpdateInvoicePaymentParams) (repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.getInvoice("UpdateInvoicePayment", arg.ID)
	if err != nil {
		return inv, err
	}
	if arg.AmountPaid < 0 {
		return repository.Invoice{}, &pgconn.PgError{Code: "23514", ConstraintName: "invoices_amount_paid_check"}
	}
	inv.AmountPaid = arg.AmountPaid
	inv.Status = arg.Status
	inv.PaidAt = arg.PaidAt
	inv.UpdatedAt = s.now()
	s.invoices[inv.ID.Bytes] = inv
	return inv, nil
}

func (s *Store) RecordInvoiceReminderSent(ctx context.Context, arg repository.RecordInvoiceReminderSentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.getInvoice("RecordInvoiceReminderSent", arg.ID)
	if err != nil {
		// UPDATE on a missing row is not an error
		if err == pgx.ErrNoRows {
			return nil
		}
		return err
	}
	inv.ReminderCount++
	inv.LastReminderAt = arg.LastReminderAt
	s.invoices[inv.ID.Bytes] = inv
	return nil
}

func (s *Store) MarkInvoicesOverdue(ctx context.Context, today pgtype.Date) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkInvoicesOverdue"); err != nil {
		return 0, err
	}
	var n int64
	for id, inv := range s.invoices {
		if (inv.Status == "sent" || inv.Status == "viewed") &&
			inv.DueDate.Time.Before(today.Time) &&
			inv.AmountPaid < inv.Total {
			inv.Status = "overdue"
			s.invoices[id] = inv
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Payments
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, arg repository.CreatePaymentParams) (repository.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePayment"); err != nil {
		return repository.Payment{}, err
	}
	if arg.StripePaymentIntentID.Valid && arg.Status != "failed" {
		for _, p := range s.payments {
			if p.StripePaymentIntentID == arg.StripePaymentIntentID && p.Status != "failed" {
				return repository.Payment{}, uniqueViolation("idx_payments_payment_intent")
			}
		}
	}
	p := repository.Payment{
		ID:                    newID(),
		InvoiceID:             arg.InvoiceID,
		Amount:                arg.Amount,
		Currency:              arg.Currency,
		Method:                arg.Method,
		Status:                arg.Status,
		StripePaymentIntentID: arg.StripePaymentIntentID,
		StripeSessionID:       arg.StripeSessionID,
		Notes:                 arg.Notes,
		CreatedAt:             s.now(),
		UpdatedAt:             s.now(),
	}
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *Store) GetPaymentByStripePaymentIntentID(ctx context.Context, stripePaymentIntentID pgtype.Text) (repository.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPaymentByStripePaymentIntentID"); err != nil {
		return repository.Payment{}, err
	}
	for _, p := range s.payments {
		if p.StripePaymentIntentID == stripePaymentIntentID && p.Status != "failed" {
			return p, nil
		}
	}
	return repository.Payment{}, pgx.ErrNoRows
}

func (s *Store) UpdatePaymentRefund(ctx context.Context, arg repository.UpdatePaymentRefundParams) (repository.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePaymentRefund"); err != nil {
		return repository.Payment{}, err
	}
	for i, p := range s.payments {
		if p.ID == arg.ID {
			p.AmountRefunded = arg.AmountRefunded
			p.Status = arg.Status
			p.StripeChargeID = arg.StripeChargeID
			p.Notes = arg.Notes
			p.UpdatedAt = s.now()
			s.payments[i] = p
			return p, nil
		}
	}
	return repository.Payment{}, pgx.ErrNoRows
}

func (s *Store) ListPaymentsForInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]repository.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListPaymentsForInvoice"); err != nil {
		return nil, err
	}
	var out []repository.Payment
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// Reminder schedules
// =============================================================================

func (s *Store) DeleteScheduledReminders(ctx context.Context, invoiceID pgtype.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteScheduledReminders"); err != nil {
		return 0, err
	}
	var n int64
	kept := s.reminders[:0:0]
	for _, r := range s.reminders {
		if r.InvoiceID == invoiceID && r.Status == "scheduled" {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.reminders = kept
	return n, nil
}

func (s *Store) CreateReminderSchedule(ctx context.Context, arg repository.CreateReminderScheduleParams) (repository.ReminderSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateReminderSchedule"); err != nil {
		return repository.ReminderSchedule{}, err
	}
	r := repository.ReminderSchedule{
		ID:           newID(),
		InvoiceID:    arg.InvoiceID,
		UserID:       arg.UserID,
		ReminderType: arg.ReminderType,
		DaysOffset:   arg.DaysOffset,
		ScheduledFor: arg.ScheduledFor,
		Status:       "scheduled",
		CreatedAt:    s.now(),
	}
	s.reminders = append(s.reminders, r)
	return r, nil
}

// ClaimDueReminders claims under the store lock, so concurrent callers never
// receive the same row.
func (s *Store) ClaimDueReminders(ctx context.Context, arg repository.ClaimDueRemindersParams) ([]repository.ReminderSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ClaimDueReminders"); err != nil {
		return nil, err
	}
	var due []int
	for i, r := range s.reminders {
		if r.Status == "scheduled" && !r.ScheduledFor.Time.After(arg.Now.Time) {
			due = append(due, i)
		}
	}
	sort.SliceStable(due, func(a, b int) bool {
		return s.reminders[due[a]].ScheduledFor.Time.Before(s.reminders[due[b]].ScheduledFor.Time)
	})
	if int32(len(due)) > arg.Limit {
		due = due[:arg.Limit]
	}
	out := make([]repository.ReminderSchedule, 0, len(due))
	for _, i := range due {
		s.reminders[i].Status = "sending"
		s.reminders[i].ClaimedAt = arg.Now
		out = append(out, s.reminders[i])
	}
	return out, nil
}

func (s *Store) ExpireReminderClaims(ctx context.Context, arg repository.ExpireReminderClaimsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ExpireReminderClaims"); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.reminders {
		r := &s.reminders[i]
		if r.Status == "sending" && r.ClaimedAt.Time.Before(arg.Before.Time) {
			r.Status = "failed"
			r.Error = arg.Error
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRemindersForInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]repository.ReminderSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListRemindersForInvoice"); err != nil {
		return nil, err
	}
	var out []repository.ReminderSchedule
	for _, r := range s.reminders {
		if r.InvoiceID == invoiceID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledFor.Time.Before(out[j].ScheduledFor.Time)
	})
	return out, nil
}

// transitionReminder applies fn to a claimed row.
func (s *Store) transitionReminder(method string, id pgtype.UUID, fn func(r *repository.ReminderSchedule)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(method); err != nil {
		return 0, err
	}
	for i := range s.reminders {
		if s.reminders[i].ID == id && s.reminders[i].Status == "sending" {
			fn(&s.reminders[i])
			return 1, nil
		}
	}
	return 0, nil
}

func (s *Store) ReleaseReminderClaim(ctx context.Context, id pgtype.UUID) (int64, error) {
	return s.transitionReminder("ReleaseReminderClaim", id, func(r *repository.ReminderSchedule) {
		r.Status = "scheduled"
		r.ClaimedAt = pgtype.Timestamptz{}
	})
}

func (s *Store) MarkReminderSent(ctx context.Context, arg repository.MarkReminderSentParams) (int64, error) {
	return s.transitionReminder("MarkReminderSent", arg.ID, func(r *repository.ReminderSchedule) {
		r.Status = "sent"
		r.SentAt = arg.SentAt
		r.EmailID = arg.EmailID
	})
}

func (s *Store) MarkReminderFailed(ctx context.Context, arg repository.MarkReminderFailedParams) (int64, error) {
	return s.transitionReminder("MarkReminderFailed", arg.ID, func(r *repository.ReminderSchedule) {
		r.Status = "failed"
		r.Error = arg.Error
	})
}

func (s *Store) MarkReminderCancelled(ctx context.Context, id pgtype.UUID) (int64, error) {
	return s.transitionReminder("MarkReminderCancelled", id, func(r *repository.ReminderSchedule) {
		r.Status = "cancelled"
	})
}

func (s *Store) CancelScheduledReminders(ctx context.Context, invoiceID pgtype.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CancelScheduledReminders"); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.reminders {
		if s.reminders[i].InvoiceID == invoiceID && s.reminders[i].Status == "scheduled" {
			s.reminders[i].Status = "cancelled"
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Webhook ledger
// =============================================================================

func (s *Store) CreateWebhookEvent(ctx context.Context, arg repository.CreateWebhookEventParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateWebhookEvent"); err != nil {
		return 0, err
	}
	key := arg.Provider + "/" + arg.ProviderEventID
	if _, ok := s.webhookEvents[key]; ok {
		return 0, nil
	}
	s.webhookEvents[key] = repository.WebhookEvent{
		ID:              newID(),
		Provider:        arg.Provider,
		ProviderEventID: arg.ProviderEventID,
		EventType:       arg.EventType,
		ProcessedAt:     s.now(),
	}
	return 1, nil
}
