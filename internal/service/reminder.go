package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/email"
	"github.com/dukerupert/ledgerline/internal/events"
	"github.com/dukerupert/ledgerline/internal/repository"
	"github.com/dukerupert/ledgerline/internal/telemetry"
)

const (
	defaultReminderBatchSize    = 50
	defaultReminderClaimTimeout = time.Hour
	dueTodayHour                = 9
)

// errClaimLost means the row left 'sending' while its email was in flight.
var errClaimLost = errors.New("reminder claim lost")

// ReminderConfig holds the knobs of the reminder service.
type ReminderConfig struct {
	// Location is the zone calendar due dates are interpreted in. Default UTC.
	Location *time.Location
	// BatchSize caps rows per dispatch pass. Default 50.
	BatchSize int32
	// BaseURL prefixes portal links in reminder emails.
	BaseURL string
	// ClaimTimeout is how long a row may stay claimed before a later pass
	// marks it failed. Default 1h.
	ClaimTimeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

type reminderService struct {
	store     repository.Store
	mailer    Mailer
	events    events.Publisher
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
	validate  *validator.Validate
	loc       *time.Location
	batchSize int32
	claimTTL  time.Duration
	baseURL   string
	now       func() time.Time
}

// NewReminderService creates the reminder scheduler and dispatcher.
func NewReminderService(
	store repository.Store,
	mailer Mailer,
	publisher events.Publisher,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
	cfg ReminderConfig,
) domain.ReminderService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReminderBatchSize
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = defaultReminderClaimTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Noop{}
	}

	return &reminderService{
		store:     store,
		mailer:    mailer,
		events:    publisher,
		metrics:   metrics,
		logger:    logger.With("component", "reminders"),
		validate:  validator.New(),
		loc:       cfg.Location,
		batchSize: cfg.BatchSize,
		claimTTL:  cfg.ClaimTimeout,
		baseURL:   cfg.BaseURL,
		now:       cfg.Now,
	}
}

// plannedReminder is one row the scheduler intends to create.
type plannedReminder struct {
	Type         domain.ReminderType
	DaysOffset   int
	ScheduledFor time.Time
}

// planReminders computes the reminder rows for a due date. Pre-due tiers are
// kept only if they are still in the future; overdue tiers are always kept so
// that an invoice created long after its due date is chased on the next pass.
func planReminders(settings domain.ReminderSettings, due time.Time, now time.Time) []plannedReminder {
	var planned []plannedReminder
	for _, rule := range settings.Rules() {
		if !rule.Enabled {
			continue
		}

		var at time.Time
		switch rule.Type {
		case domain.ReminderDueToday:
			at = time.Date(due.Year(), due.Month(), due.Day(), dueTodayHour, 0, 0, 0, due.Location())
		default:
			at = due.AddDate(0, 0, rule.DaysOffset)
		}

		if !rule.Type.IsOverdue() && !at.After(now) {
			continue
		}

		planned = append(planned, plannedReminder{
			Type:         rule.Type,
			DaysOffset:   rule.DaysOffset,
			ScheduledFor: at,
		})
	}
	return planned
}

// ScheduleRemindersForInvoice replaces the invoice's pending reminders.
// Stale scheduled rows are removed on every call, including when the invoice
// is closed or reminders are disabled; nothing new is created in those cases.
func (s *reminderService) ScheduleRemindersForInvoice(ctx context.Context, invoiceID string) (int, error) {
	const op = "reminder.schedule"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var created []repository.ReminderSchedule

	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		created = nil

		inv, err := q.GetInvoiceByID(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrInvoiceNotFound
			}
			return internalErr(err, op, "failed to load invoice")
		}

		removed, err := q.DeleteScheduledReminders(ctx, id)
		if err != nil {
			return internalErr(err, op, "failed to clear scheduled reminders")
		}
		if removed > 0 {
			s.logger.DebugContext(ctx, "cleared stale reminders", "invoice_id", invoiceID, "count", removed)
		}

		if domain.InvoiceStatus(inv.Status).IsClosed() {
			return nil
		}
		if !inv.DueDate.Valid {
			return nil
		}

		settings, err := s.loadSettings(ctx, q, inv.UserID)
		if err != nil {
			return internalErr(err, op, "failed to load reminder settings")
		}
		if !settings.Enabled {
			return nil
		}

		due := calendarDate(inv.DueDate, s.loc)
		for _, p := range planReminders(settings, due, now) {
			row, err := q.CreateReminderSchedule(ctx, repository.CreateReminderScheduleParams{
				InvoiceID:    inv.ID,
				UserID:       inv.UserID,
				ReminderType: string(p.Type),
				DaysOffset:   int32(p.DaysOffset),
				ScheduledFor: timestamptz(p.ScheduledFor),
			})
			if err != nil {
				return internalErr(err, op, "failed to create %s reminder", p.Type)
			}
			created = append(created, row)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, row := range created {
		s.metrics.ReminderScheduled(row.ReminderType)
	}
	s.logger.InfoContext(ctx, "reminders scheduled", "invoice_id", invoiceID, "count", len(created))

	return len(created), nil
}

// ProcessScheduledReminders sends one batch of due reminders. Rows are claimed
// before any email goes out, so overlapping passes never send the same row.
// Failures are recorded per row and never abort the batch.
func (s *reminderService) ProcessScheduledReminders(ctx context.Context) (domain.DispatchResult, error) {
	const op = "reminder.dispatch"

	ctx, finish := telemetry.StartSpan(ctx, "reminders.dispatch", "process scheduled reminders")
	defer finish()

	start := time.Now()
	defer s.metrics.ObserveDispatch(start)

	var result domain.DispatchResult
	now := s.now()

	// A claim this old belongs to a pass that died mid-send. Whether its
	// email went out is unknown, so it is failed rather than retried.
	expired, err := s.store.ExpireReminderClaims(ctx, repository.ExpireReminderClaimsParams{
		Before: timestamptz(now.Add(-s.claimTTL)),
		Error:  text("claim expired; delivery outcome unknown"),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to expire stale reminder claims", "error", err)
	} else if expired > 0 {
		s.logger.WarnContext(ctx, "expired stale reminder claims", "count", expired)
	}

	rows, err := s.store.ClaimDueReminders(ctx, repository.ClaimDueRemindersParams{
		Now:   timestamptz(now),
		Limit: s.batchSize,
	})
	if err != nil {
		return result, internalErr(err, op, "failed to claim due reminders")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ScheduledFor.Time.Before(rows[j].ScheduledFor.Time)
	})

	for i, row := range rows {
		if ctx.Err() != nil {
			s.release(ctx, rows[i:])
			break
		}
		result.Processed++

		switch s.dispatchOne(ctx, row, now) {
		case dispatchSent:
			result.Sent++
		case dispatchFailed:
			result.Failed++
		case dispatchSkipped:
			result.Skipped++
		}
	}

	s.logger.InfoContext(ctx, "reminder dispatch complete",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

type dispatchOutcome int

const (
	dispatchSent dispatchOutcome = iota
	dispatchFailed
	dispatchSkipped
)

func (s *reminderService) dispatchOne(ctx context.Context, row repository.ReminderSchedule, now time.Time) dispatchOutcome {
	reminderID := uuidString(row.ID)
	logger := s.logger.With("reminder_id", reminderID, "invoice_id", uuidString(row.InvoiceID), "reminder_type", row.ReminderType)

	inv, err := s.store.GetInvoiceByID(ctx, row.InvoiceID)
	if err != nil {
		if isNotFound(err) {
			s.cancel(ctx, logger, row, "invoice_missing")
			return dispatchSkipped
		}
		return s.fail(ctx, logger, row, fmt.Errorf("load invoice: %w", err))
	}

	// The row was planned earlier; the invoice may have been settled since.
	if domain.InvoiceStatus(inv.Status).IsClosed() || inv.AmountPaid >= inv.Total {
		s.cancel(ctx, logger, row, "invoice_settled")
		return dispatchSkipped
	}

	client, err := s.store.GetClientByID(ctx, inv.ClientID)
	if err != nil {
		return s.fail(ctx, logger, row, fmt.Errorf("load client: %w", err))
	}
	user, err := s.store.GetUserByID(ctx, inv.UserID)
	if err != nil {
		return s.fail(ctx, logger, row, fmt.Errorf("load user: %w", err))
	}

	due := calendarDate(inv.DueDate, s.loc)
	daysOverdue := daysBetween(due, now.In(s.loc))
	if daysOverdue < 0 {
		daysOverdue = 0
	}

	res, err := s.mailer.SendReminder(ctx, email.ReminderEmail{
		Type:            domain.ReminderType(row.ReminderType),
		ClientName:      client.Name,
		ClientEmail:     client.Email,
		BusinessName:    businessName(user),
		FreelancerEmail: user.Email,
		InvoiceNumber:   inv.InvoiceNumber,
		Currency:        inv.Currency,
		Total:           inv.Total,
		AmountPaid:      inv.AmountPaid,
		DueDate:         due,
		DaysOverdue:     daysOverdue,
		PortalURL:       portalURL(s.baseURL, inv.PortalToken),
	})
	s.metrics.EmailDelivered("reminder", err)
	if err != nil {
		return s.fail(ctx, logger, row, err)
	}
	if !res.Success {
		return s.fail(ctx, logger, row, fmt.Errorf("email not accepted: %s", res.Error))
	}

	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		n, err := q.MarkReminderSent(ctx, repository.MarkReminderSentParams{
			ID:      row.ID,
			SentAt:  timestamptz(now),
			EmailID: text(res.ID),
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return errClaimLost
		}
		return q.RecordInvoiceReminderSent(ctx, repository.RecordInvoiceReminderSentParams{
			ID:             inv.ID,
			LastReminderAt: timestamptz(now),
		})
	})
	if errors.Is(err, errClaimLost) {
		logger.WarnContext(ctx, "reminder claim expired during send", "email_id", res.ID)
		return dispatchSkipped
	}
	if err != nil {
		// The email is out. The row stays claimed until it expires and is
		// never picked up again.
		logger.ErrorContext(ctx, "failed to record sent reminder", "error", err, "email_id", res.ID)
		telemetry.CaptureError(err, map[string]interface{}{"reminder_id": reminderID})
		return dispatchSent
	}

	s.metrics.ReminderSent(row.ReminderType)
	if err := s.events.Publish(ctx, events.SubjectReminderSent, events.ReminderSent{
		ReminderID:   reminderID,
		InvoiceID:    uuidString(inv.ID),
		UserID:       uuidString(inv.UserID),
		ReminderType: row.ReminderType,
		EmailID:      res.ID,
	}); err != nil {
		logger.WarnContext(ctx, "failed to publish reminder event", "error", err)
	}

	logger.InfoContext(ctx, "reminder sent", "email_id", res.ID)
	return dispatchSent
}

// release hands unattempted rows back to the next pass.
func (s *reminderService) release(ctx context.Context, rows []repository.ReminderSchedule) {
	ctx = context.WithoutCancel(ctx)
	for _, row := range rows {
		if _, err := s.store.ReleaseReminderClaim(ctx, row.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to release reminder claim", "reminder_id", uuidString(row.ID), "error", err)
		}
	}
	s.logger.InfoContext(ctx, "dispatch interrupted; released claims", "count", len(rows))
}

func (s *reminderService) cancel(ctx context.Context, logger *slog.Logger, row repository.ReminderSchedule, reason string) {
	if _, err := s.store.MarkReminderCancelled(ctx, row.ID); err != nil {
		logger.ErrorContext(ctx, "failed to cancel reminder", "error", err)
		return
	}
	s.metrics.ReminderCancelled(reason)
	logger.InfoContext(ctx, "reminder cancelled", "reason", reason)
}

func (s *reminderService) fail(ctx context.Context, logger *slog.Logger, row repository.ReminderSchedule, cause error) dispatchOutcome {
	logger.WarnContext(ctx, "reminder failed", "error", cause)
	s.metrics.ReminderFailed(row.ReminderType)
	if _, err := s.store.MarkReminderFailed(ctx, repository.MarkReminderFailedParams{
		ID:    row.ID,
		Error: text(cause.Error()),
	}); err != nil {
		logger.ErrorContext(ctx, "failed to record reminder failure", "error", err)
	}
	return dispatchFailed
}

// CancelRemindersForInvoice cancels every pending reminder of an invoice.
func (s *reminderService) CancelRemindersForInvoice(ctx context.Context, invoiceID string) (int64, error) {
	const op = "reminder.cancel"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return 0, err
	}

	n, err := s.store.CancelScheduledReminders(ctx, id)
	if err != nil {
		return 0, internalErr(err, op, "failed to cancel reminders")
	}
	return n, nil
}

func (s *reminderService) ListRemindersForInvoice(ctx context.Context, invoiceID string) ([]repository.ReminderSchedule, error) {
	const op = "reminder.list"

	id, err := parseUUID(op, "invoice_id", invoiceID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListRemindersForInvoice(ctx, id)
	if err != nil {
		return nil, internalErr(err, op, "failed to list reminders")
	}
	return rows, nil
}

// GetReminderSettings returns the user's settings merged over the defaults.
func (s *reminderService) GetReminderSettings(ctx context.Context, userID string) (domain.ReminderSettings, error) {
	const op = "reminder.settings.get"

	id, err := parseUUID(op, "user_id", userID)
	if err != nil {
		return domain.ReminderSettings{}, err
	}
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		if isNotFound(err) {
			return domain.ReminderSettings{}, domain.ErrUserNotFound
		}
		return domain.ReminderSettings{}, internalErr(err, op, "failed to load user")
	}

	settings, err := s.loadSettings(ctx, s.store, id)
	if err != nil {
		return domain.ReminderSettings{}, internalErr(err, op, "failed to load reminder settings")
	}
	return settings, nil
}

// UpdateReminderSettings validates and stores a complete settings document.
func (s *reminderService) UpdateReminderSettings(ctx context.Context, userID string, settings domain.ReminderSettings) (domain.ReminderSettings, error) {
	const op = "reminder.settings.update"

	id, err := parseUUID(op, "user_id", userID)
	if err != nil {
		return domain.ReminderSettings{}, err
	}
	if err := s.validate.Struct(settings); err != nil {
		return domain.ReminderSettings{}, domain.FromValidator(op, err)
	}
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		if isNotFound(err) {
			return domain.ReminderSettings{}, domain.ErrUserNotFound
		}
		return domain.ReminderSettings{}, internalErr(err, op, "failed to load user")
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return domain.ReminderSettings{}, internalErr(err, op, "failed to encode settings")
	}
	if err := s.store.UpsertReminderSettings(ctx, repository.UpsertReminderSettingsParams{
		UserID:           id,
		ReminderSettings: raw,
	}); err != nil {
		return domain.ReminderSettings{}, internalErr(err, op, "failed to save settings")
	}

	s.logger.InfoContext(ctx, "reminder settings updated", "user_id", userID, "enabled", settings.Enabled)
	return settings, nil
}

func (s *reminderService) loadSettings(ctx context.Context, q repository.Querier, userID pgtype.UUID) (domain.ReminderSettings, error) {
	raw, err := q.GetReminderSettings(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.DefaultReminderSettings(), nil
		}
		return domain.ReminderSettings{}, err
	}
	return domain.MergeReminderSettings(raw), nil
}

func businessName(u repository.User) string {
	if u.BusinessName.Valid && u.BusinessName.String != "" {
		return u.BusinessName.String
	}
	return u.Name
}
