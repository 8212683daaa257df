package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/events"
	"github.com/dukerupert/ledgerline/internal/repository"
)

func checkoutEvent(inv repository.Invoice, amount int64) domain.CheckoutCompleted {
	return domain.CheckoutCompleted{
		EventID:         "evt_checkout_1",
		SessionID:       "cs_test_1",
		PaymentIntentID: "pi_1",
		InvoiceID:       uuidString(inv.ID),
		AmountTotal:     amount,
		Currency:        "usd",
		PaymentStatus:   "paid",
	}
}

// payInFull settles the invoice through checkout with payment intent pi_1.
func payInFull(t *testing.T, svc *paymentService, inv repository.Invoice) {
	t.Helper()
	require.NoError(t, svc.HandleCheckoutSessionCompleted(context.Background(), checkoutEvent(inv, inv.Total)))
}

func TestHandleCheckoutSessionCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("full payment marks the invoice paid", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		reminders := f.reminders(ReminderConfig{})
		_, err := reminders.ScheduleRemindersForInvoice(ctx, uuidString(inv.ID))
		require.NoError(t, err)

		err = f.payments(reminders).HandleCheckoutSessionCompleted(ctx, checkoutEvent(inv, 10000))
		require.NoError(t, err)

		payments := f.store.Payments(inv.ID)
		require.Len(t, payments, 1)
		assert.Equal(t, int64(10000), payments[0].Amount)
		assert.Equal(t, "completed", payments[0].Status)
		assert.Equal(t, "stripe", payments[0].Method)
		assert.Equal(t, "pi_1", payments[0].StripePaymentIntentID.String)
		assert.Equal(t, "cs_test_1", payments[0].StripeSessionID.String)

		updated := f.store.Invoice(inv.ID)
		assert.Equal(t, int64(10000), updated.AmountPaid)
		assert.Equal(t, "paid", updated.Status)
		assert.True(t, updated.PaidAt.Time.Equal(f.now))

		rows := f.store.Reminders(inv.ID)
		assert.Equal(t, len(rows), countStatus(rows, "cancelled"))

		assert.Equal(t, []string{events.SubjectInvoicePaid}, f.events.Subjects())
		paid := f.events.Events()[0].Data.(events.InvoicePaid)
		assert.True(t, paid.PaidInFull)

		receipts := f.sender.To("charles@engines.test")
		require.Len(t, receipts, 1)
		assert.Equal(t, "Payment received for invoice INV-2026-0001", receipts[0].Subject)

		notices := f.sender.To("ada@studio.test")
		require.Len(t, notices, 1)
		assert.Equal(t, "Charles Babbage paid $100.00 on invoice INV-2026-0001", notices[0].Subject)
	})

	t.Run("partial payment keeps the invoice open", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		reminders := f.reminders(ReminderConfig{})
		_, err := reminders.ScheduleRemindersForInvoice(ctx, uuidString(inv.ID))
		require.NoError(t, err)

		require.NoError(t, f.payments(reminders).HandleCheckoutSessionCompleted(ctx, checkoutEvent(inv, 4000)))

		updated := f.store.Invoice(inv.ID)
		assert.Equal(t, int64(4000), updated.AmountPaid)
		assert.Equal(t, "sent", updated.Status)
		assert.False(t, updated.PaidAt.Valid)
		assert.Equal(t, 6, countStatus(f.store.Reminders(inv.ID), "scheduled"))
	})

	t.Run("redelivered event is reported as already processed", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)

		require.NoError(t, svc.HandleCheckoutSessionCompleted(ctx, checkoutEvent(inv, 4000)))
		err := svc.HandleCheckoutSessionCompleted(ctx, checkoutEvent(inv, 4000))
		assert.ErrorIs(t, err, domain.ErrPaymentAlreadyProcessed)

		assert.Len(t, f.store.Payments(inv.ID), 1)
		assert.Equal(t, int64(4000), f.store.Invoice(inv.ID).AmountPaid)
	})

	t.Run("payment intent event after checkout is not counted twice", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)
		payInFull(t, svc, inv)

		err := svc.HandlePaymentSucceeded(ctx, domain.PaymentSucceeded{
			EventID:         "evt_pi_1",
			PaymentIntentID: "pi_1",
			InvoiceID:       uuidString(inv.ID),
			Amount:          10000,
			Currency:        "usd",
		})
		assert.ErrorIs(t, err, domain.ErrPaymentAlreadyProcessed)
		assert.Len(t, f.store.Payments(inv.ID), 1)
		assert.Equal(t, int64(10000), f.store.Invoice(inv.ID).AmountPaid)
		assert.Len(t, f.sender.Sent(), 2)
	})

	t.Run("unpaid checkout waits for the payment intent", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		event := checkoutEvent(inv, 10000)
		event.PaymentStatus = "unpaid"

		require.NoError(t, f.payments(nil).HandleCheckoutSessionCompleted(ctx, event))
		assert.Empty(t, f.store.Payments(inv.ID))
		assert.Equal(t, "sent", f.store.Invoice(inv.ID).Status)
	})

	t.Run("missing metadata is ignored", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		event := checkoutEvent(inv, 10000)
		event.InvoiceID = ""

		require.NoError(t, f.payments(nil).HandleCheckoutSessionCompleted(ctx, event))
		assert.Empty(t, f.store.Payments(inv.ID))
	})

	t.Run("unknown invoice is ignored and can be retried", func(t *testing.T) {
		f := newFixture(t)
		svc := f.payments(nil)
		event := domain.CheckoutCompleted{
			EventID:       "evt_orphan",
			InvoiceID:     uuid.NewString(),
			AmountTotal:   500,
			PaymentStatus: "paid",
		}

		require.NoError(t, svc.HandleCheckoutSessionCompleted(ctx, event))
		// The ledger row was rolled back with the skipped transaction.
		require.NoError(t, svc.HandleCheckoutSessionCompleted(ctx, event))
	})

	t.Run("draft invoice can be paid directly", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(func(inv *repository.Invoice) { inv.Status = "draft" })
		payInFull(t, f.payments(nil), inv)
		assert.Equal(t, "paid", f.store.Invoice(inv.ID).Status)
	})

	t.Run("payment on a cancelled invoice is recorded without reopening it", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(func(inv *repository.Invoice) { inv.Status = "cancelled" })
		payInFull(t, f.payments(nil), inv)

		updated := f.store.Invoice(inv.ID)
		assert.Equal(t, "cancelled", updated.Status)
		assert.Equal(t, int64(10000), updated.AmountPaid)
		assert.Len(t, f.store.Payments(inv.ID), 1)
	})

	t.Run("email failure does not undo the payment", func(t *testing.T) {
		f := newFixture(t)
		f.sender.failTo["charles@engines.test"] = errSMTPDown
		inv := f.invoice(nil)

		payInFull(t, f.payments(nil), inv)
		assert.Equal(t, "paid", f.store.Invoice(inv.ID).Status)
		assert.Len(t, f.sender.To("ada@studio.test"), 1)
	})

	t.Run("store failure rolls back the ledger entry", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)

		f.store.FailOn("UpdateInvoicePayment", assert.AnError)
		err := svc.HandleCheckoutSessionCompleted(ctx, checkoutEvent(inv, 10000))
		require.Error(t, err)
		assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
		assert.Empty(t, f.store.Payments(inv.ID))

		f.store.FailOn("UpdateInvoicePayment", nil)
		require.NoError(t, svc.HandleCheckoutSessionCompleted(ctx, checkoutEvent(inv, 10000)))
		assert.Equal(t, "paid", f.store.Invoice(inv.ID).Status)
	})
}

func TestHandlePaymentSucceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.invoice(func(inv *repository.Invoice) { inv.Status = "overdue" })

	err := f.payments(nil).HandlePaymentSucceeded(ctx, domain.PaymentSucceeded{
		EventID:         "evt_pi_2",
		PaymentIntentID: "pi_2",
		InvoiceID:       uuidString(inv.ID),
		Amount:          10000,
	})
	require.NoError(t, err)

	updated := f.store.Invoice(inv.ID)
	assert.Equal(t, "paid", updated.Status)
	payments := f.store.Payments(inv.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, "usd", payments[0].Currency)
	assert.False(t, payments[0].StripeSessionID.Valid)
}

func TestHandlePaymentFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("records the attempt and emails a retry link", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)

		err := f.payments(nil).HandlePaymentFailed(ctx, domain.PaymentFailed{
			EventID:         "evt_fail_1",
			PaymentIntentID: "pi_fail",
			InvoiceID:       uuidString(inv.ID),
			Amount:          10000,
			Currency:        "usd",
			FailureMessage:  "Your card was declined.",
		})
		require.NoError(t, err)

		payments := f.store.Payments(inv.ID)
		require.Len(t, payments, 1)
		assert.Equal(t, "failed", payments[0].Status)
		assert.Equal(t, "Your card was declined.", payments[0].Notes.String)

		updated := f.store.Invoice(inv.ID)
		assert.Zero(t, updated.AmountPaid)
		assert.Equal(t, "sent", updated.Status)

		sent := f.sender.To("charles@engines.test")
		require.Len(t, sent, 1)
		assert.Equal(t, "Payment failed for invoice INV-2026-0001", sent[0].Subject)
		assert.Contains(t, sent[0].HTMLBody, "https://app.ledgerline.test/portal/"+inv.PortalToken)
		assert.Equal(t, []string{events.SubjectInvoicePaymentFailed}, f.events.Subjects())
	})

	t.Run("a later success on the same intent still counts", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)

		require.NoError(t, svc.HandlePaymentFailed(ctx, domain.PaymentFailed{
			EventID:         "evt_fail_2",
			PaymentIntentID: "pi_retry",
			InvoiceID:       uuidString(inv.ID),
			Amount:          10000,
		}))
		require.NoError(t, svc.HandlePaymentSucceeded(ctx, domain.PaymentSucceeded{
			EventID:         "evt_ok_2",
			PaymentIntentID: "pi_retry",
			InvoiceID:       uuidString(inv.ID),
			Amount:          10000,
		}))

		assert.Len(t, f.store.Payments(inv.ID), 2)
		assert.Equal(t, "paid", f.store.Invoice(inv.ID).Status)
	})

	t.Run("redelivery is a no-op", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)
		event := domain.PaymentFailed{EventID: "evt_fail_3", PaymentIntentID: "pi_x", InvoiceID: uuidString(inv.ID), Amount: 100}

		require.NoError(t, svc.HandlePaymentFailed(ctx, event))
		assert.ErrorIs(t, svc.HandlePaymentFailed(ctx, event), domain.ErrPaymentAlreadyProcessed)
		assert.Len(t, f.store.Payments(inv.ID), 1)
	})

	t.Run("missing metadata is ignored", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.payments(nil).HandlePaymentFailed(ctx, domain.PaymentFailed{EventID: "evt_fail_4"}))
		assert.Empty(t, f.sender.Sent())
	})
}

func TestHandleChargeRefunded(t *testing.T) {
	ctx := context.Background()

	refund := func(eventID string, amountRefunded int64, full bool) domain.ChargeRefunded {
		return domain.ChargeRefunded{
			EventID:         eventID,
			ChargeID:        "ch_1",
			PaymentIntentID: "pi_1",
			Amount:          10000,
			AmountRefunded:  amountRefunded,
			Refunded:        full,
		}
	}

	t.Run("partial refund reopens a paid invoice", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(f.reminders(ReminderConfig{}))
		payInFull(t, svc, inv)

		require.NoError(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_1", 4000, false)))

		payment := f.store.Payments(inv.ID)[0]
		assert.Equal(t, "partial_refund", payment.Status)
		assert.Equal(t, int64(4000), payment.AmountRefunded)
		assert.Equal(t, "ch_1", payment.StripeChargeID.String)

		updated := f.store.Invoice(inv.ID)
		assert.Equal(t, int64(6000), updated.AmountPaid)
		assert.Equal(t, "sent", updated.Status)
		assert.False(t, updated.PaidAt.Valid)

		assert.Equal(t, 6, countStatus(f.store.Reminders(inv.ID), "scheduled"))
		assert.Equal(t, []string{events.SubjectInvoicePaid, events.SubjectInvoiceRefunded}, f.events.Subjects())
	})

	t.Run("redelivered refunds apply once", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)
		payInFull(t, svc, inv)

		require.NoError(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_1", 4000, false)))
		assert.ErrorIs(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_1", 4000, false)), domain.ErrPaymentAlreadyProcessed)
		// A different event carrying the same cumulative amount changes nothing.
		require.NoError(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_2", 4000, false)))

		assert.Equal(t, int64(6000), f.store.Invoice(inv.ID).AmountPaid)
		assert.Equal(t, int64(4000), f.store.Payments(inv.ID)[0].AmountRefunded)
	})

	t.Run("second refund applies only the difference", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(nil)
		svc := f.payments(nil)
		payInFull(t, svc, inv)

		require.NoError(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_1", 4000, false)))
		require.NoError(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_2", 10000, true)))

		payment := f.store.Payments(inv.ID)[0]
		assert.Equal(t, "refunded", payment.Status)
		assert.Equal(t, int64(10000), payment.AmountRefunded)

		updated := f.store.Invoice(inv.ID)
		assert.Zero(t, updated.AmountPaid)
		assert.Equal(t, "sent", updated.Status)
	})

	t.Run("refund on an overpaid invoice that stays covered keeps it paid", func(t *testing.T) {
		f := newFixture(t)
		inv := f.invoice(func(inv *repository.Invoice) {
			inv.Status = "paid"
			inv.AmountPaid = 5000
		})
		svc := f.payments(nil)
		payInFull(t, svc, inv)

		require.NoError(t, svc.HandleChargeRefunded(ctx, refund("evt_refund_1", 3000, false)))

		updated := f.store.Invoice(inv.ID)
		assert.Equal(t, int64(12000), updated.AmountPaid)
		assert.Equal(t, "paid", updated.Status)
	})

	t.Run("refund for an unknown payment is ignored", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.payments(nil).HandleChargeRefunded(ctx, refund("evt_refund_x", 100, false)))
		assert.Empty(t, f.events.Subjects())
	})

	t.Run("refund without a payment intent is ignored", func(t *testing.T) {
		f := newFixture(t)
		event := refund("evt_refund_y", 100, false)
		event.PaymentIntentID = ""
		require.NoError(t, f.payments(nil).HandleChargeRefunded(ctx, event))
	})
}
