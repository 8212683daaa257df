package domain

import (
	"context"
	"encoding/json"

	"github.com/dukerupert/ledgerline/internal/repository"
)

// ReminderType identifies one of the six escalating reminder tiers.
type ReminderType string

const (
	ReminderUpcomingDue   ReminderType = "upcoming_due"
	ReminderDueToday      ReminderType = "due_today"
	ReminderOverdueGentle ReminderType = "overdue_gentle"
	ReminderOverdueFirm   ReminderType = "overdue_firm"
	ReminderOverdueFinal  ReminderType = "overdue_final"
	ReminderOverdueUrgent ReminderType = "overdue_urgent"
)

// IsOverdue reports whether the tier fires after the due date.
func (t ReminderType) IsOverdue() bool {
	switch t {
	case ReminderOverdueGentle, ReminderOverdueFirm, ReminderOverdueFinal, ReminderOverdueUrgent:
		return true
	}
	return false
}

// ReminderStatus is the state of a scheduled reminder row.
// A dispatch pass claims a row by moving it from "scheduled" to "sending";
// only a claimed row can become sent or failed. Rows leave "scheduled"
// exactly once, so no reminder is emailed twice.
type ReminderStatus string

const (
	ReminderStatusScheduled ReminderStatus = "scheduled"
	ReminderStatusSending   ReminderStatus = "sending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ReminderSettings is a user's reminder configuration.
type ReminderSettings struct {
	Enabled  bool          `json:"enabled"`
	Schedule ReminderTiers `json:"schedule"`
}

// ReminderTiers holds the per-tier configuration.
type ReminderTiers struct {
	UpcomingDue   BeforeDueTier `json:"upcomingDue"`
	DueToday      DueTodayTier  `json:"dueToday"`
	OverdueGentle AfterDueTier  `json:"overdueGentle"`
	OverdueFirm   AfterDueTier  `json:"overdueFirm"`
	OverdueFinal  AfterDueTier  `json:"overdueFinal"`
	OverdueUrgent AfterDueTier  `json:"overdueUrgent"`
}

type BeforeDueTier struct {
	Enabled    bool `json:"enabled"`
	DaysBefore int  `json:"daysBefore" validate:"gte=0,lte=365"`
}

type DueTodayTier struct {
	Enabled bool `json:"enabled"`
}

type AfterDueTier struct {
	Enabled   bool `json:"enabled"`
	DaysAfter int  `json:"daysAfter" validate:"gte=0,lte=365"`
}

// DefaultReminderSettings returns the built-in configuration.
func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		Enabled: true,
		Schedule: ReminderTiers{
			UpcomingDue:   BeforeDueTier{Enabled: true, DaysBefore: 3},
			DueToday:      DueTodayTier{Enabled: true},
			OverdueGentle: AfterDueTier{Enabled: true, DaysAfter: 3},
			OverdueFirm:   AfterDueTier{Enabled: true, DaysAfter: 7},
			OverdueFinal:  AfterDueTier{Enabled: true, DaysAfter: 14},
			OverdueUrgent: AfterDueTier{Enabled: true, DaysAfter: 30},
		},
	}
}

// MergeReminderSettings overlays a stored, possibly partial, settings
// document onto the defaults field by field. Each level is decoded on its
// own, so a field that is absent, null or of the wrong type keeps its
// default without discarding its siblings. A document that is not a JSON
// object yields the defaults.
func MergeReminderSettings(stored []byte) ReminderSettings {
	settings := DefaultReminderSettings()

	doc := decodeObject(stored)
	mergeBool(&settings.Enabled, doc["enabled"])

	schedule := decodeObject(doc["schedule"])
	if tier := decodeObject(schedule["upcomingDue"]); tier != nil {
		mergeBool(&settings.Schedule.UpcomingDue.Enabled, tier["enabled"])
		mergeDays(&settings.Schedule.UpcomingDue.DaysBefore, tier["daysBefore"])
	}
	if tier := decodeObject(schedule["dueToday"]); tier != nil {
		mergeBool(&settings.Schedule.DueToday.Enabled, tier["enabled"])
	}
	mergeAfterDue(&settings.Schedule.OverdueGentle, schedule["overdueGentle"])
	mergeAfterDue(&settings.Schedule.OverdueFirm, schedule["overdueFirm"])
	mergeAfterDue(&settings.Schedule.OverdueFinal, schedule["overdueFinal"])
	mergeAfterDue(&settings.Schedule.OverdueUrgent, schedule["overdueUrgent"])

	return settings
}

// decodeObject returns nil unless raw is a JSON object. Lookups on the nil
// map yield empty values, which every merge helper ignores.
func decodeObject(raw []byte) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func mergeAfterDue(dst *AfterDueTier, raw json.RawMessage) {
	tier := decodeObject(raw)
	if tier == nil {
		return
	}
	mergeBool(&dst.Enabled, tier["enabled"])
	mergeDays(&dst.DaysAfter, tier["daysAfter"])
}

func mergeBool(dst *bool, raw json.RawMessage) {
	var v *bool
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil {
		return
	}
	*dst = *v
}

// Negative offsets are ignored; they would move a tier to the wrong side
// of the due date.
func mergeDays(dst *int, raw json.RawMessage) {
	var v *int
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil || v == nil || *v < 0 {
		return
	}
	*dst = *v
}

// TierRule is one enabled-or-not tier with its signed offset from the due date.
type TierRule struct {
	Type       ReminderType
	Enabled    bool
	DaysOffset int
}

// Rules flattens the settings into tier rules in escalation order.
func (s ReminderSettings) Rules() []TierRule {
	t := s.Schedule
	return []TierRule{
		{Type: ReminderUpcomingDue, Enabled: t.UpcomingDue.Enabled, DaysOffset: -t.UpcomingDue.DaysBefore},
		{Type: ReminderDueToday, Enabled: t.DueToday.Enabled, DaysOffset: 0},
		{Type: ReminderOverdueGentle, Enabled: t.OverdueGentle.Enabled, DaysOffset: t.OverdueGentle.DaysAfter},
		{Type: ReminderOverdueFirm, Enabled: t.OverdueFirm.Enabled, DaysOffset: t.OverdueFirm.DaysAfter},
		{Type: ReminderOverdueFinal, Enabled: t.OverdueFinal.Enabled, DaysOffset: t.OverdueFinal.DaysAfter},
		{Type: ReminderOverdueUrgent, Enabled: t.OverdueUrgent.Enabled, DaysOffset: t.OverdueUrgent.DaysAfter},
	}
}

// DispatchResult counts the outcome of one reminder dispatch pass.
type DispatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ReminderService schedules and dispatches invoice reminder emails.
type ReminderService interface {
	// ScheduleRemindersForInvoice replaces the invoice's pending reminders and
	// returns how many rows were created.
	ScheduleRemindersForInvoice(ctx context.Context, invoiceID string) (int, error)

	// ProcessScheduledReminders sends one batch of due reminders.
	ProcessScheduledReminders(ctx context.Context) (DispatchResult, error)

	// CancelRemindersForInvoice cancels every pending reminder of an invoice.
	CancelRemindersForInvoice(ctx context.Context, invoiceID string) (int64, error)

	ListRemindersForInvoice(ctx context.Context, invoiceID string) ([]repository.ReminderSchedule, error)

	GetReminderSettings(ctx context.Context, userID string) (ReminderSettings, error)
	UpdateReminderSettings(ctx context.Context, userID string, settings ReminderSettings) (ReminderSettings, error)
}
