package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/ledgerline/internal/billing"
	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/email"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/dukerupert/ledgerline/internal/telemetry"
)

var hundred = decimal.NewFromInt(100)

// InvoiceConfig holds the knobs of the invoice service.
type InvoiceConfig struct {
	// BaseURL prefixes portal links.
	BaseURL string
	// DefaultCurrency applies when an invoice does not name one.
	DefaultCurrency string
	// Location is the zone "today" is computed in. Default UTC.
	Location *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

type invoiceService struct {
	store     repository.Store
	mailer    Mailer
	billing   billing.Provider
	reminders domain.ReminderService
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
	validate  *validator.Validate
	baseURL   string
	currency  string
	loc       *time.Location
	now       func() time.Time
}

// NewInvoiceService creates the invoice ledger service.
func NewInvoiceService(
	store repository.Store,
	mailer Mailer,
	billingProvider billing.Provider,
	reminders domain.ReminderService,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
	cfg InvoiceConfig,
) domain.InvoiceService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &invoiceService{
		store:     store,
		mailer:    mailer,
		billing:   billingProvider,
		reminders: reminders,
		metrics:   metrics,
		logger:    logger.With("component", "invoices"),
		validate:  validator.New(),
		baseURL:   cfg.BaseURL,
		currency:  cfg.DefaultCurrency,
		loc:       cfg.Location,
		now:       cfg.Now,
	}
}

// invoiceTotals are the computed money columns of a new invoice.
type invoiceTotals struct {
	lineAmounts []int64
	subtotal    int64
	tax         int64
	discount    int64
	total       int64
}

// computeTotals prices the items. Line amounts and tax are rounded to the
// minor unit with banker's rounding; tax applies after the discount.
func computeTotals(items []domain.CreateInvoiceItemParams, taxRate decimal.Decimal, discount int64) invoiceTotals {
	t := invoiceTotals{discount: discount}
	for _, item := range items {
		amount := item.Quantity.Mul(decimal.NewFromInt(item.UnitPrice)).RoundBank(0).IntPart()
		t.lineAmounts = append(t.lineAmounts, amount)
		t.subtotal += amount
	}
	taxable := t.subtotal - discount
	t.tax = decimal.NewFromInt(taxable).Mul(taxRate).Div(hundred).RoundBank(0).IntPart()
	t.total = taxable + t.tax
	return t
}

func (s *invoiceService) CreateInvoice(ctx context.Context, params domain.CreateInvoiceParams) (*domain.InvoiceDetail, error) {
	const op = "invoice.create"

	if err := s.validate.Struct(params); err != nil {
		return nil, domain.FromValidator(op, err)
	}
	fields := map[string]string{}
	for i, item := range params.Items {
		if !item.Quantity.IsPositive() {
			fields[fmt.Sprintf("Items[%d].Quantity", i)] = "must be greater than 0"
		}
	}
	if params.TaxRate.IsNegative() || params.TaxRate.GreaterThan(hundred) {
		fields["TaxRate"] = "must be between 0 and 100"
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Op: op, Fields: fields}
	}

	userID, err := parseUUID(op, "user_id", params.UserID)
	if err != nil {
		return nil, err
	}
	clientID, err := parseUUID(op, "client_id", params.ClientID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	issueDate := today
	if params.IssueDate != "" {
		issueDate, _ = time.Parse(time.DateOnly, params.IssueDate)
	}
	dueDate, _ := time.Parse(time.DateOnly, params.DueDate)
	if dueDate.Before(issueDate) {
		return nil, domain.NewValidationError(op, "DueDate", "must not be before the issue date")
	}

	totals := computeTotals(params.Items, params.TaxRate, params.Discount)
	if params.Discount > totals.subtotal {
		return nil, domain.NewValidationError(op, "Discount", "must not exceed the subtotal")
	}

	currency := params.Currency
	if currency == "" {
		currency = s.currency
	}

	detail := &domain.InvoiceDetail{}
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if _, err := q.GetUserByID(ctx, userID); err != nil {
			if isNotFound(err) {
				return domain.ErrUserNotFound
			}
			return internalErr(err, op, "failed to load user")
		}
		client, err := q.GetClientByID(ctx, clientID)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrClientNotFound
			}
			return internalErr(err, op, "failed to load client")
		}
		if client.UserID != userID {
			return domain.ErrClientOwnerMismatch
		}

		seq, err := q.NextInvoiceSequence(ctx, repository.NextInvoiceSequenceParams{
			UserID: userID,
			Year:   int32(issueDate.Year()),
		})
		if err != nil {
			return internalErr(err, op, "failed to allocate invoice number")
		}

		inv, err := q.CreateInvoice(ctx, repository.CreateInvoiceParams{
			UserID:        userID,
			ClientID:      clientID,
			InvoiceNumber: fmt.Sprintf("INV-%d-%04d", issueDate.Year(), seq),
			Currency:      currency,
			Subtotal:      totals.subtotal,
			Tax:           totals.tax,
			Discount:      totals.discount,
			Total:         totals.total,
			IssueDate:     pgtype.Date{Time: issueDate, Valid: true},
			DueDate:       pgtype.Date{Time: dueDate, Valid: true},
			PortalToken:   newPortalToken(),
			Notes:         text(params.Notes),
		})
		if err != nil {
			return internalErr(err, op, "failed to create invoice")
		}

		items := make([]repository.InvoiceItem, 0, len(params.Items))
		for i, item := range params.Items {
			row, err := q.CreateInvoiceItem(ctx, repository.CreateInvoiceItemParams{
				InvoiceID:   inv.ID,
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Amount:      totals.lineAmounts[i],
				Position:    int32(i),
			})
			if err != nil {
				return internalErr(err, op, "failed to create invoice item")
			}
			items = append(items, row)
		}

		detail.Invoice = inv
		detail.Client = client
		detail.Items = items
		detail.Payments = []repository.Payment{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceCreated()
	s.logger.InfoContext(ctx, "invoice created",
		"invoice_id", uuidString(detail.Invoice.ID),
		"number", detail.Invoice.InvoiceNumber,
		"total", detail.Invoice.Total,
	)
	return detail, nil
}

func newPortalToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *invoiceService) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID string) (*domain.InvoiceDetail, error) {
	const op = "invoice.get"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return nil, err
	}
	inv, err := s.store.GetInvoiceByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, internalErr(err, op, "failed to load invoice")
	}
	return s.loadDetail(ctx, op, inv)
}

func (s *invoiceService) GetInvoiceByPortalToken(ctx context.Context, token string) (*domain.InvoiceDetail, error) {
	const op = "invoice.portal"

	if token == "" {
		return nil, domain.ErrInvoiceNotFound
	}
	inv, err := s.store.GetInvoiceByPortalToken(ctx, token)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, internalErr(err, op, "failed to load invoice")
	}
	return s.loadDetail(ctx, op, inv)
}

func (s *invoiceService) loadDetail(ctx context.Context, op string, inv repository.Invoice) (*domain.InvoiceDetail, error) {
	client, err := s.store.GetClientByID(ctx, inv.ClientID)
	if err != nil {
		return nil, internalErr(err, op, "failed to load client")
	}
	items, err := s.store.ListInvoiceItems(ctx, inv.ID)
	if err != nil {
		return nil, internalErr(err, op, "failed to load invoice items")
	}
	payments, err := s.store.ListPaymentsForInvoice(ctx, inv.ID)
	if err != nil {
		return nil, internalErr(err, op, "failed to load payments")
	}
	return &domain.InvoiceDetail{
		Invoice:  inv,
		Client:   client,
		Items:    items,
		Payments: payments,
	}, nil
}

// SendInvoice moves a draft to sent, emails the client and schedules
// reminders. Email and scheduling failures are logged; the invoice stays sent.
func (s *invoiceService) SendInvoice(ctx context.Context, invoiceID string) (*repository.Invoice, error) {
	const op = "invoice.send"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return nil, err
	}

	var inv repository.Invoice
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		current, err := q.GetInvoiceByIDForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvoiceNotFound
			}
			return internalErr(err, op, "failed to lock invoice")
		}
		if domain.InvoiceStatus(current.Status) != domain.InvoiceStatusDraft {
			return domain.ErrInvoiceNotDraft
		}
		inv, err = q.MarkInvoiceSent(ctx, repository.MarkInvoiceSentParams{
			ID:     id,
			SentAt: timestamptz(s.now()),
		})
		if err != nil {
			return internalErr(err, op, "failed to mark invoice sent")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceSent()
	logger := s.logger.With("invoice_id", invoiceID)

	client, err := s.store.GetClientByID(ctx, inv.ClientID)
	if err == nil {
		var user repository.User
		user, err = s.store.GetUserByID(ctx, inv.UserID)
		if err == nil {
			_, err = s.mailer.SendInvoice(ctx, email.InvoiceEmail{
				ClientName:      client.Name,
				ClientEmail:     client.Email,
				BusinessName:    businessName(user),
				FreelancerEmail: user.Email,
				InvoiceNumber:   inv.InvoiceNumber,
				Currency:        inv.Currency,
				Total:           inv.Total,
				DueDate:         inv.DueDate.Time,
				Notes:           inv.Notes.String,
				PortalURL:       portalURL(s.baseURL, inv.PortalToken),
			})
			s.metrics.EmailDelivered("invoice", err)
		}
	}
	if err != nil {
		logger.WarnContext(ctx, "invoice marked sent but email failed", "error", err)
	}

	if s.reminders != nil {
		if _, err := s.reminders.ScheduleRemindersForInvoice(ctx, invoiceID); err != nil {
			logger.WarnContext(ctx, "failed to schedule reminders", "error", err)
		}
	}

	logger.InfoContext(ctx, "invoice sent", "number", inv.InvoiceNumber)
	return &inv, nil
}

func (s *invoiceService) MarkViewed(ctx context.Context, invoiceID string) error {
	const op = "invoice.viewed"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return err
	}
	if _, err := s.store.MarkInvoiceViewed(ctx, repository.MarkInvoiceViewedParams{
		ID:       id,
		ViewedAt: timestamptz(s.now()),
	}); err != nil {
		return internalErr(err, op, "failed to mark invoice viewed")
	}
	return nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, invoiceID string) (*repository.Invoice, error) {
	const op = "invoice.cancel"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return nil, err
	}

	var inv repository.Invoice
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		current, err := q.GetInvoiceByIDForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvoiceNotFound
			}
			return internalErr(err, op, "failed to lock invoice")
		}

		status := domain.InvoiceStatus(current.Status)
		switch {
		case status == domain.InvoiceStatusPaid:
			return domain.ErrInvoiceAlreadyPaid
		case !domain.CanTransition(status, domain.InvoiceStatusCancelled):
			return domain.ErrInvoiceClosed
		}

		inv, err = q.UpdateInvoiceStatus(ctx, repository.UpdateInvoiceStatusParams{
			ID:     id,
			Status: string(domain.InvoiceStatusCancelled),
		})
		if err != nil {
			return internalErr(err, op, "failed to cancel invoice")
		}
		if _, err := q.CancelScheduledReminders(ctx, id); err != nil {
			return internalErr(err, op, "failed to cancel reminders")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "invoice cancelled", "invoice_id", invoiceID)
	return &inv, nil
}

// MarkInvoicesOverdue flags unpaid sent or viewed invoices whose due date
// is before today.
func (s *invoiceService) MarkInvoicesOverdue(ctx context.Context) (int64, error) {
	const op = "invoice.overdue"

	n, err := s.store.MarkInvoicesOverdue(ctx, pgtype.Date{Time: s.today(), Valid: true})
	if err != nil {
		return 0, internalErr(err, op, "failed to mark invoices overdue")
	}
	s.metrics.InvoicesMarkedOverdue(n)
	if n > 0 {
		s.logger.InfoContext(ctx, "invoices marked overdue", "count", n)
	}
	return n, nil
}

// CreateCheckoutSession starts a hosted Stripe payment for the outstanding
// balance. The invoice ID travels in metadata so webhooks can find it.
func (s *invoiceService) CreateCheckoutSession(ctx context.Context, portalToken string) (*domain.CheckoutSession, error) {
	const op = "invoice.checkout"

	detail, err := s.GetInvoiceByPortalToken(ctx, portalToken)
	if err != nil {
		return nil, err
	}
	inv := detail.Invoice

	// Drafts are not visible in the portal, so they cannot be paid there either.
	if domain.InvoiceStatus(inv.Status) == domain.InvoiceStatusDraft {
		return nil, domain.ErrInvoiceNotFound
	}
	if domain.InvoiceStatus(inv.Status).IsClosed() {
		return nil, domain.ErrInvoiceClosed
	}
	balance := domain.Balance(inv)
	if balance <= 0 {
		return nil, domain.ErrInvoiceNotPayable
	}

	invoiceID := uuidString(inv.ID)
	link := portalURL(s.baseURL, inv.PortalToken)

	start := time.Now()
	session, err := s.billing.CreateCheckoutSession(ctx, billing.CreateCheckoutSessionParams{
		AmountCents:   balance,
		Currency:      inv.Currency,
		Description:   "Invoice " + inv.InvoiceNumber,
		CustomerEmail: detail.Client.Email,
		SuccessURL:    link + "?payment=success",
		CancelURL:     link + "?payment=cancelled",
		Metadata: map[string]string{
			"invoiceId":     invoiceID,
			"invoiceNumber": inv.InvoiceNumber,
		},
		IdempotencyKey: fmt.Sprintf("invoice-%s-balance-%d", invoiceID, balance),
	})
	s.metrics.ObserveStripe("create_checkout_session", start)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create checkout session", "invoice_id", invoiceID, "error", err)
		return nil, checkoutError(op, err)
	}

	return &domain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// checkoutError tells the payer whether retrying can help. Stripe rejecting
// the request itself points at our configuration, not at the payer.
func checkoutError(op string, err error) error {
	var se *billing.StripeError
	if errors.As(err, &se) && !se.IsTemporary() {
		telemetry.CaptureError(err, map[string]interface{}{"stripe_code": se.Code, "stripe_request_id": se.RequestID})
		return domain.WrapError(err, domain.EINTERNAL, op, "stripe rejected checkout session")
	}
	return domain.WrapError(err, domain.EPAYMENT, op, "Unable to start payment. Please try again.")
}
