package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoices struct {
	domain.InvoiceService

	detail    *domain.InvoiceDetail
	err       error
	viewErr   error
	viewed    []string
	session   *domain.CheckoutSession
	lastToken string
}

func (f *fakeInvoices) GetInvoiceByPortalToken(_ context.Context, token string) (*domain.InvoiceDetail, error) {
	f.lastToken = token
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.detail
	return &copied, nil
}

func (f *fakeInvoices) MarkViewed(_ context.Context, id string) error {
	f.viewed = append(f.viewed, id)
	return f.viewErr
}

func (f *fakeInvoices) CreateCheckoutSession(_ context.Context, token string) (*domain.CheckoutSession, error) {
	f.lastToken = token
	return f.session, f.err
}

func newDetail(status string) *domain.InvoiceDetail {
	return &domain.InvoiceDetail{
		Invoice: repository.Invoice{
			ID:            pgtype.UUID{Bytes: uuid.MustParse("6f1c1a52-0d5b-4a83-8b0e-1b2f0c6f8e11"), Valid: true},
			InvoiceNumber: "INV-2026-0001",
			Status:        status,
			Currency:      "usd",
			Total:         10000,
			AmountPaid:    4000,
			PortalToken:   "secret-token",
		},
		Client: repository.Client{Name: "Charles Babbage", Email: "charles@engines.test"},
		Items: []repository.InvoiceItem{
			{Description: "Difference engine review", Quantity: decimal.NewFromInt(2), UnitPrice: 5000, Amount: 10000},
		},
	}
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /portal/{token}", h.Show)
	mux.HandleFunc("POST /portal/{token}/checkout", h.Checkout)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_Show(t *testing.T) {
	t.Run("sent invoice is marked viewed", func(t *testing.T) {
		invoices := &fakeInvoices{detail: newDetail("sent")}
		rec := serve(NewHandler(invoices, quietLogger()), http.MethodGet, "/portal/secret-token")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "secret-token", invoices.lastToken)
		assert.Equal(t, []string{"6f1c1a52-0d5b-4a83-8b0e-1b2f0c6f8e11"}, invoices.viewed)

		var view map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, "viewed", view["status"])
		assert.Equal(t, 6000.0, view["balance"])
		assert.Equal(t, true, view["payable"])
		assert.NotContains(t, rec.Body.String(), "secret-token")
		assert.NotContains(t, rec.Body.String(), "charles@engines.test")
	})

	t.Run("other statuses are not re-marked", func(t *testing.T) {
		invoices := &fakeInvoices{detail: newDetail("overdue")}
		rec := serve(NewHandler(invoices, quietLogger()), http.MethodGet, "/portal/secret-token")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, invoices.viewed)
	})

	t.Run("mark viewed failure still renders", func(t *testing.T) {
		invoices := &fakeInvoices{detail: newDetail("sent"), viewErr: errors.New("db down")}
		rec := serve(NewHandler(invoices, quietLogger()), http.MethodGet, "/portal/secret-token")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"sent"`)
	})

	t.Run("paid invoice is not payable", func(t *testing.T) {
		detail := newDetail("paid")
		detail.Invoice.AmountPaid = 10000
		rec := serve(NewHandler(&fakeInvoices{detail: detail}, quietLogger()), http.MethodGet, "/portal/secret-token")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"payable":false`)
	})

	t.Run("drafts are hidden", func(t *testing.T) {
		invoices := &fakeInvoices{detail: newDetail("draft")}
		rec := serve(NewHandler(invoices, quietLogger()), http.MethodGet, "/portal/secret-token")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, invoices.viewed)
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := serve(NewHandler(&fakeInvoices{err: domain.ErrInvoiceNotFound}, quietLogger()), http.MethodGet, "/portal/nope")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Checkout(t *testing.T) {
	t.Run("returns the hosted page", func(t *testing.T) {
		invoices := &fakeInvoices{session: &domain.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}}
		rec := serve(NewHandler(invoices, quietLogger()), http.MethodPost, "/portal/secret-token/checkout")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":"cs_1","url":"https://checkout.stripe.com/c/pay/cs_1"}`, rec.Body.String())
		assert.Equal(t, "secret-token", invoices.lastToken)
	})

	t.Run("closed invoice conflicts", func(t *testing.T) {
		rec := serve(NewHandler(&fakeInvoices{err: domain.ErrInvoiceClosed}, quietLogger()), http.MethodPost, "/portal/secret-token/checkout")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("processor failure is a 402", func(t *testing.T) {
		err := domain.WrapError(errors.New("stripe: rate limited"), domain.EPAYMENT, "invoice.checkout", "Unable to start payment")
		rec := serve(NewHandler(&fakeInvoices{err: err}, quietLogger()), http.MethodPost, "/portal/secret-token/checkout")
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})
}
