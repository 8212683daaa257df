package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/email"
	"github.com/dukerupert/ledgerline/internal/events"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/dukerupert/ledgerline/internal/repository/repotest"
)

var errSMTPDown = errors.New("smtp: connection refused")

// fakeSender records every email and fails deliveries to chosen recipients.
// Delay holds each delivery open; OnSend runs before each one.
type fakeSender struct {
	mu     sync.Mutex
	sent   []*email.Email
	failTo map[string]error

	Delay  time.Duration
	OnSend func()
}

func newFakeSender() *fakeSender {
	return &fakeSender{failTo: make(map[string]error)}
}

func (f *fakeSender) Send(ctx context.Context, e *email.Email) (string, error) {
	if f.OnSend != nil {
		f.OnSend()
	}
	time.Sleep(f.Delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, to := range e.To {
		if err, ok := f.failTo[to]; ok {
			return "", err
		}
	}
	f.sent = append(f.sent, e)
	return "msg-" + uuid.NewString(), nil
}

func (f *fakeSender) Sent() []*email.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*email.Email(nil), f.sent...)
}

func (f *fakeSender) To(addr string) []*email.Email {
	var out []*email.Email
	for _, e := range f.Sent() {
		for _, to := range e.To {
			if to == addr {
				out = append(out, e)
			}
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires an in-memory store, a real email service over a fake
// sender and a fixed clock.
type fixture struct {
	store  *repotest.Store
	sender *fakeSender
	mailer *email.Service
	events *events.Recorder
	now    time.Time

	user   repository.User
	client repository.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	store := repotest.NewStore()
	store.Now = func() time.Time { return now }

	sender := newFakeSender()
	mailer, err := email.NewService(sender, "billing@ledgerline.test", "Ledgerline", discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	user, err := store.CreateUser(ctx, repository.CreateUserParams{
		Email:        "ada@studio.test",
		Name:         "Ada Lovelace",
		BusinessName: pgtype.Text{String: "Analytical Studio", Valid: true},
	})
	require.NoError(t, err)

	client, err := store.CreateClient(ctx, repository.CreateClientParams{
		UserID: user.ID,
		Name:   "Charles Babbage",
		Email:  "charles@engines.test",
	})
	require.NoError(t, err)

	return &fixture{
		store:  store,
		sender: sender,
		mailer: mailer,
		events: &events.Recorder{},
		now:    now,
		user:   user,
		client: client,
	}
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) reminders(cfg ReminderConfig) *reminderService {
	cfg.Now = f.clock
	return NewReminderService(f.store, f.mailer, f.events, nil, discardLogger(), cfg).(*reminderService)
}

func (f *fixture) payments(reminders domain.ReminderService) *paymentService {
	return NewPaymentService(f.store, f.mailer, reminders, f.events, nil, discardLogger(), PaymentConfig{
		BaseURL: "https://app.ledgerline.test",
		Now:     f.clock,
	}).(*paymentService)
}

// date returns a DATE column value n days from the fixture's today.
func (f *fixture) date(days int) pgtype.Date {
	y, m, d := f.now.AddDate(0, 0, days).Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

// invoice stores a sent invoice for the fixture's client, due in ten days,
// with a total of 100.00.
func (f *fixture) invoice(mutate func(inv *repository.Invoice)) repository.Invoice {
	inv := repository.Invoice{
		UserID:        f.user.ID,
		ClientID:      f.client.ID,
		InvoiceNumber: "INV-2026-0001",
		Currency:      "usd",
		Subtotal:      10000,
		Total:         10000,
		Status:        "sent",
		IssueDate:     f.date(-20),
		DueDate:       f.date(10),
	}
	if mutate != nil {
		mutate(&inv)
	}
	return f.store.PutInvoice(inv)
}

func statuses(rows []repository.ReminderSchedule) map[string]string {
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ReminderType] = r.Status
	}
	return out
}

func countStatus(rows []repository.ReminderSchedule, status string) int {
	n := 0
	for _, r := range rows {
		if r.Status == status {
			n++
		}
	}
	return n
}
