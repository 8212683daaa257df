package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoices struct {
	domain.InvoiceService

	created domain.CreateInvoiceParams
	detail  *domain.InvoiceDetail
	invoice *repository.Invoice
	overdue int64
	err     error
	lastID  string
}

func (f *fakeInvoices) CreateInvoice(_ context.Context, p domain.CreateInvoiceParams) (*domain.InvoiceDetail, error) {
	f.created = p
	return f.detail, f.err
}

func (f *fakeInvoices) GetInvoice(_ context.Context, id string) (*domain.InvoiceDetail, error) {
	f.lastID = id
	return f.detail, f.err
}

func (f *fakeInvoices) SendInvoice(_ context.Context, id string) (*repository.Invoice, error) {
	f.lastID = id
	return f.invoice, f.err
}

func (f *fakeInvoices) CancelInvoice(_ context.Context, id string) (*repository.Invoice, error) {
	f.lastID = id
	return f.invoice, f.err
}

func (f *fakeInvoices) MarkInvoicesOverdue(context.Context) (int64, error) {
	return f.overdue, f.err
}

type fakeReminders struct {
	domain.ReminderService

	scheduled int
	rows      []repository.ReminderSchedule
	dispatch  domain.DispatchResult
	settings  domain.ReminderSettings
	err       error
	lastID    string
}

func (f *fakeReminders) ScheduleRemindersForInvoice(_ context.Context, id string) (int, error) {
	f.lastID = id
	return f.scheduled, f.err
}

func (f *fakeReminders) ListRemindersForInvoice(_ context.Context, id string) ([]repository.ReminderSchedule, error) {
	f.lastID = id
	return f.rows, f.err
}

func (f *fakeReminders) ProcessScheduledReminders(context.Context) (domain.DispatchResult, error) {
	return f.dispatch, f.err
}

func (f *fakeReminders) GetReminderSettings(_ context.Context, userID string) (domain.ReminderSettings, error) {
	f.lastID = userID
	return f.settings, f.err
}

func (f *fakeReminders) UpdateReminderSettings(_ context.Context, userID string, s domain.ReminderSettings) (domain.ReminderSettings, error) {
	f.lastID = userID
	f.settings = s
	return s, f.err
}

type fakeAccounts struct {
	user   *repository.User
	client *repository.Client
	err    error
	params any
}

func (f *fakeAccounts) CreateUser(_ context.Context, p domain.CreateUserParams) (*repository.User, error) {
	f.params = p
	return f.user, f.err
}

func (f *fakeAccounts) GetUser(context.Context, string) (*repository.User, error) {
	return f.user, f.err
}

func (f *fakeAccounts) CreateClient(_ context.Context, p domain.CreateClientParams) (*repository.Client, error) {
	f.params = p
	return f.client, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve routes one request through a mux so path values are populated.
func serve(pattern string, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected an error envelope, got %v", body)
	return errBody["code"].(string)
}

func TestInvoiceHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		invoices := &fakeInvoices{detail: &domain.InvoiceDetail{Invoice: repository.Invoice{InvoiceNumber: "INV-2026-0001"}}}
		h := NewInvoiceHandler(invoices, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/invoices", h.Create, http.MethodPost, "/api/invoices",
			`{"user_id":"u","client_id":"c","due_date":"2026-04-09","tax_rate":"8.25","items":[{"description":"Design","quantity":"2","unit_price":5000}]}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "2026-04-09", invoices.created.DueDate)
		assert.Equal(t, "8.25", invoices.created.TaxRate.String())
		require.Len(t, invoices.created.Items, 1)
		assert.Equal(t, "2", invoices.created.Items[0].Quantity.String())
		assert.Equal(t, "INV-2026-0001", decode(t, rec)["invoice"].(map[string]any)["invoice_number"])
	})

	t.Run("validation errors carry fields", func(t *testing.T) {
		invoices := &fakeInvoices{err: domain.NewValidationError("invoice.create", "DueDate", "failed required")}
		h := NewInvoiceHandler(invoices, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/invoices", h.Create, http.MethodPost, "/api/invoices", `{"items":[]}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decode(t, rec)["error"].(map[string]any)["fields"].(map[string]any)
		assert.Equal(t, "failed required", fields["DueDate"])
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		invoices := &fakeInvoices{}
		h := NewInvoiceHandler(invoices, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/invoices", h.Create, http.MethodPost, "/api/invoices", `{"status":"paid"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, invoices.created.DueDate)
	})
}

func TestInvoiceHandler_Get(t *testing.T) {
	invoices := &fakeInvoices{detail: &domain.InvoiceDetail{Invoice: repository.Invoice{Total: 10000, AmountPaid: 4000}}}
	h := NewInvoiceHandler(invoices, &fakeReminders{}, quietLogger())

	rec := serve("GET /api/invoices/{id}", h.Get, http.MethodGet, "/api/invoices/inv-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv-1", invoices.lastID)
	assert.Equal(t, 6000.0, decode(t, rec)["balance"])

	invoices.err = domain.ErrInvoiceNotFound
	rec = serve("GET /api/invoices/{id}", h.Get, http.MethodGet, "/api/invoices/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ENOTFOUND, errorCode(t, rec))
}

func TestInvoiceHandler_SendAndCancel(t *testing.T) {
	invoices := &fakeInvoices{invoice: &repository.Invoice{Status: "sent"}}
	h := NewInvoiceHandler(invoices, &fakeReminders{}, quietLogger())

	rec := serve("POST /api/invoices/{id}/send", h.Send, http.MethodPost, "/api/invoices/inv-1/send", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sent", decode(t, rec)["status"])

	invoices.err = domain.ErrInvoiceNotDraft
	rec = serve("POST /api/invoices/{id}/send", h.Send, http.MethodPost, "/api/invoices/inv-1/send", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	invoices.err = nil
	invoices.invoice = &repository.Invoice{Status: "cancelled"}
	rec = serve("POST /api/invoices/{id}/cancel", h.Cancel, http.MethodPost, "/api/invoices/inv-2/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv-2", invoices.lastID)
	assert.Equal(t, "cancelled", decode(t, rec)["status"])
}

func TestInvoiceHandler_Reminders(t *testing.T) {
	reminders := &fakeReminders{
		scheduled: 6,
		rows:      []repository.ReminderSchedule{{ReminderType: "upcoming_due", Status: "scheduled"}},
	}
	h := NewInvoiceHandler(&fakeInvoices{}, reminders, quietLogger())

	rec := serve("POST /api/invoices/{id}/reminders", h.ScheduleReminders, http.MethodPost, "/api/invoices/inv-1/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6.0, decode(t, rec)["scheduled"])
	assert.Equal(t, "inv-1", reminders.lastID)

	rec = serve("GET /api/invoices/{id}/reminders", h.ListReminders, http.MethodGet, "/api/invoices/inv-1/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["reminders"], 1)
}

func TestAccountHandler(t *testing.T) {
	t.Run("create user", func(t *testing.T) {
		accounts := &fakeAccounts{user: &repository.User{Email: "ada@studio.test"}}
		h := NewAccountHandler(accounts, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/users", h.CreateUser, http.MethodPost, "/api/users",
			`{"email":"ada@studio.test","name":"Ada","business_name":"Analytical Studio"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Analytical Studio", accounts.params.(domain.CreateUserParams).BusinessName)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		h := NewAccountHandler(&fakeAccounts{err: domain.ErrDuplicateEmail}, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/users", h.CreateUser, http.MethodPost, "/api/users", `{"email":"ada@studio.test","name":"Ada"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("create client", func(t *testing.T) {
		accounts := &fakeAccounts{client: &repository.Client{Name: "Charles"}}
		h := NewAccountHandler(accounts, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/clients", h.CreateClient, http.MethodPost, "/api/clients",
			`{"user_id":"u","name":"Charles","email":"charles@engines.test"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Charles", decode(t, rec)["name"])
	})

	t.Run("get user not found", func(t *testing.T) {
		h := NewAccountHandler(&fakeAccounts{err: domain.ErrUserNotFound}, &fakeReminders{}, quietLogger())

		rec := serve("GET /api/users/{id}", h.GetUser, http.MethodGet, "/api/users/nope", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAccountHandler_ReminderSettings(t *testing.T) {
	reminders := &fakeReminders{settings: domain.DefaultReminderSettings()}
	h := NewAccountHandler(&fakeAccounts{}, reminders, quietLogger())

	rec := serve("GET /api/users/{id}/reminder-settings", h.GetReminderSettings, http.MethodGet, "/api/users/u-1/reminder-settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	schedule := decode(t, rec)["schedule"].(map[string]any)
	assert.Equal(t, 3.0, schedule["upcomingDue"].(map[string]any)["daysBefore"])

	settings := domain.DefaultReminderSettings()
	settings.Schedule.OverdueUrgent.Enabled = false
	body, err := json.Marshal(settings)
	require.NoError(t, err)

	rec = serve("PUT /api/users/{id}/reminder-settings", h.UpdateReminderSettings, http.MethodPut, "/api/users/u-1/reminder-settings", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", reminders.lastID)
	assert.False(t, reminders.settings.Schedule.OverdueUrgent.Enabled)

	reminders.err = domain.NewValidationError("reminder.settings", "Schedule.OverdueFirm.DaysAfter", "failed lte")
	rec = serve("PUT /api/users/{id}/reminder-settings", h.UpdateReminderSettings, http.MethodPut, "/api/users/u-1/reminder-settings", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCronHandler(t *testing.T) {
	t.Run("reminders returns counters", func(t *testing.T) {
		reminders := &fakeReminders{dispatch: domain.DispatchResult{Processed: 3, Sent: 2, Failed: 1}}
		h := NewCronHandler(&fakeInvoices{}, reminders, quietLogger())

		rec := serve("POST /api/cron/reminders", h.ProcessReminders, http.MethodPost, "/api/cron/reminders", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"processed":3,"sent":2,"failed":1,"skipped":0}`, rec.Body.String())
	})

	t.Run("reminders failure is a 500", func(t *testing.T) {
		reminders := &fakeReminders{err: domain.Internal(errors.New("db down"), "reminder.process", "failed to list due reminders")}
		h := NewCronHandler(&fakeInvoices{}, reminders, quietLogger())

		rec := serve("POST /api/cron/reminders", h.ProcessReminders, http.MethodPost, "/api/cron/reminders", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})

	t.Run("overdue returns count", func(t *testing.T) {
		h := NewCronHandler(&fakeInvoices{overdue: 4}, &fakeReminders{}, quietLogger())

		rec := serve("POST /api/cron/overdue", h.MarkOverdue, http.MethodPost, "/api/cron/overdue", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"marked":4}`, rec.Body.String())
	})
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}, "v1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"v1","database":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("refused")}, "v1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(nil, "dev").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok","version":"dev"}`, rec.Body.String())
}
