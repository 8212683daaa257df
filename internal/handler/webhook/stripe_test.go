package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/ledgerline/internal/billing"
	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/storage"
	"github.com/dukerupert/ledgerline/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_secret"

// fakePayments records every call and returns err.
type fakePayments struct {
	err       error
	checkouts []domain.CheckoutCompleted
	succeeded []domain.PaymentSucceeded
	failed    []domain.PaymentFailed
	refunds   []domain.ChargeRefunded
}

func (f *fakePayments) HandleCheckoutSessionCompleted(_ context.Context, e domain.CheckoutCompleted) error {
	f.checkouts = append(f.checkouts, e)
	return f.err
}

func (f *fakePayments) HandlePaymentSucceeded(_ context.Context, e domain.PaymentSucceeded) error {
	f.succeeded = append(f.succeeded, e)
	return f.err
}

func (f *fakePayments) HandlePaymentFailed(_ context.Context, e domain.PaymentFailed) error {
	f.failed = append(f.failed, e)
	return f.err
}

func (f *fakePayments) HandleChargeRefunded(_ context.Context, e domain.ChargeRefunded) error {
	f.refunds = append(f.refunds, e)
	return f.err
}

func (f *fakePayments) calls() int {
	return len(f.checkouts) + len(f.succeeded) + len(f.failed) + len(f.refunds)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventJSON(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":"2025-04-30.basil","data":{"object":%s}}`, id, eventType, object))
}

func post(h *StripeHandler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func newHandler(payments domain.PaymentService, metrics *telemetry.BusinessMetrics) *StripeHandler {
	return NewStripeHandler(billing.NewMockProvider(), payments, metrics, quietLogger(), StripeWebhookConfig{WebhookSecret: testSecret})
}

func TestStripeHandler_HandleWebhook_Security(t *testing.T) {
	payload := eventJSON("evt_1", "checkout.session.completed", `{"id":"cs_1"}`)

	t.Run("missing signature returns 400", func(t *testing.T) {
		payments := &fakePayments{}
		rec := post(newHandler(payments, nil), payload, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, payments.calls())
	})

	t.Run("invalid signature returns 400", func(t *testing.T) {
		provider := billing.NewMockProvider()
		provider.VerifyWebhookSignatureFunc = func([]byte, string, string) error {
			return billing.ErrInvalidWebhookSignature
		}
		payments := &fakePayments{}
		h := NewStripeHandler(provider, payments, nil, quietLogger(), StripeWebhookConfig{WebhookSecret: testSecret})

		rec := post(h, payload, "t=1,v1=bogus")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, payments.calls())
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		payments := &fakePayments{}
		rec := post(newHandler(payments, nil), []byte(`{not json`), "sig")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, payments.calls())
	})

	t.Run("oversized body returns 400", func(t *testing.T) {
		payments := &fakePayments{}
		rec := post(newHandler(payments, nil), bytes.Repeat([]byte("a"), maxPayloadBytes+1), "sig")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStripeHandler_HandleWebhook_RealSignature(t *testing.T) {
	provider, err := billing.NewStripeProvider(billing.StripeConfig{APIKey: "sk_test_123", WebhookSecret: testSecret})
	require.NoError(t, err)

	payments := &fakePayments{}
	h := NewStripeHandler(provider, payments, nil, quietLogger(), StripeWebhookConfig{WebhookSecret: testSecret})

	payload := eventJSON("evt_signed", "checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","payment_intent":"pi_1","amount_total":6000,"currency":"usd","payment_status":"paid","metadata":{"invoiceId":"inv-1"}}`)

	t.Run("accepts a Stripe-signed payload", func(t *testing.T) {
		signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
			Payload:   payload,
			Secret:    testSecret,
			Timestamp: time.Now(),
		})

		rec := post(h, signed.Payload, signed.Header)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, payments.checkouts, 1)
	})

	t.Run("rejects a payload signed with another secret", func(t *testing.T) {
		signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_other",
			Timestamp: time.Now(),
		})

		rec := post(h, signed.Payload, signed.Header)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Len(t, payments.checkouts, 1)
	})
}

func TestStripeHandler_HandleWebhook_Dispatch(t *testing.T) {
	t.Run("checkout.session.completed", func(t *testing.T) {
		payments := &fakePayments{}
		payload := eventJSON("evt_cs", "checkout.session.completed",
			`{"id":"cs_1","object":"checkout.session","payment_intent":"pi_1","amount_total":6000,"currency":"usd","payment_status":"paid","metadata":{"invoiceId":"inv-1"}}`)

		rec := post(newHandler(payments, nil), payload, "sig")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		require.Len(t, payments.checkouts, 1)
		assert.Equal(t, domain.CheckoutCompleted{
			EventID:         "evt_cs",
			SessionID:       "cs_1",
			PaymentIntentID: "pi_1",
			InvoiceID:       "inv-1",
			AmountTotal:     6000,
			Currency:        "usd",
			PaymentStatus:   "paid",
		}, payments.checkouts[0])
	})

	t.Run("checkout falls back to client_reference_id", func(t *testing.T) {
		payments := &fakePayments{}
		payload := eventJSON("evt_cs2", "checkout.session.completed",
			`{"id":"cs_2","object":"checkout.session","client_reference_id":"inv-2","amount_total":100,"currency":"usd","payment_status":"paid"}`)

		rec := post(newHandler(payments, nil), payload, "sig")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, payments.checkouts, 1)
		assert.Equal(t, "inv-2", payments.checkouts[0].InvoiceID)
		assert.Empty(t, payments.checkouts[0].PaymentIntentID)
	})

	t.Run("payment_intent.succeeded", func(t *testing.T) {
		payments := &fakePayments{}
		payload := eventJSON("evt_pi", "payment_intent.succeeded",
			`{"id":"pi_2","object":"payment_intent","amount":2500,"currency":"eur","metadata":{"invoiceId":"inv-1"}}`)

		rec := post(newHandler(payments, nil), payload, "sig")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, payments.succeeded, 1)
		assert.Equal(t, domain.PaymentSucceeded{
			EventID:         "evt_pi",
			PaymentIntentID: "pi_2",
			InvoiceID:       "inv-1",
			Amount:          2500,
			Currency:        "eur",
		}, payments.succeeded[0])
	})

	t.Run("payment_intent.payment_failed", func(t *testing.T) {
		payments := &fakePayments{}
		payload := eventJSON("evt_fail", "payment_intent.payment_failed",
			`{"id":"pi_3","object":"payment_intent","amount":2500,"currency":"usd","metadata":{"invoiceId":"inv-1"},"last_payment_error":{"message":"Your card was declined."}}`)

		rec := post(newHandler(payments, nil), payload, "sig")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, payments.failed, 1)
		assert.Equal(t, "Your card was declined.", payments.failed[0].FailureMessage)
		assert.Equal(t, "pi_3", payments.failed[0].PaymentIntentID)
	})

	t.Run("charge.refunded", func(t *testing.T) {
		payments := &fakePayments{}
		payload := eventJSON("evt_refund", "charge.refunded",
			`{"id":"ch_1","object":"charge","payment_intent":"pi_1","amount":10000,"amount_refunded":4000,"refunded":false}`)

		rec := post(newHandler(payments, nil), payload, "sig")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, payments.refunds, 1)
		assert.Equal(t, domain.ChargeRefunded{
			EventID:         "evt_refund",
			ChargeID:        "ch_1",
			PaymentIntentID: "pi_1",
			Amount:          10000,
			AmountRefunded:  4000,
		}, payments.refunds[0])
	})

	t.Run("unknown event types are acknowledged", func(t *testing.T) {
		payments := &fakePayments{}
		payload := eventJSON("evt_other", "customer.created", `{"id":"cus_1","object":"customer"}`)

		rec := post(newHandler(payments, nil), payload, "sig")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, payments.calls())
	})
}

func TestStripeHandler_HandleWebhook_Outcomes(t *testing.T) {
	payload := eventJSON("evt_pi", "payment_intent.succeeded",
		`{"id":"pi_2","object":"payment_intent","amount":2500,"currency":"usd","metadata":{"invoiceId":"inv-1"}}`)

	t.Run("already processed is a success", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := telemetry.NewBusinessMetrics("test", reg)
		payments := &fakePayments{err: domain.ErrPaymentAlreadyProcessed}

		rec := post(newHandler(payments, metrics), payload, "sig")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhookDuplicate.WithLabelValues("stripe", "payment_intent.succeeded")))
		assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WebhookProcessed.WithLabelValues("stripe", "payment_intent.succeeded")))
	})

	t.Run("service failure returns 500 so Stripe retries", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := telemetry.NewBusinessMetrics("test", reg)
		payments := &fakePayments{err: domain.Internal(errors.New("connection reset"), "payment.succeeded", "failed to record payment")}

		rec := post(newHandler(payments, metrics), payload, "sig")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhookFailed.WithLabelValues("stripe", "payment_intent.succeeded", "processing")))
	})

	t.Run("success is counted", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := telemetry.NewBusinessMetrics("test", reg)
		payments := &fakePayments{}

		rec := post(newHandler(payments, metrics), payload, "sig")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhookReceived.WithLabelValues("stripe", "payment_intent.succeeded")))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WebhookProcessed.WithLabelValues("stripe", "payment_intent.succeeded")))
	})

	t.Run("response body is JSON", func(t *testing.T) {
		rec := post(newHandler(&fakePayments{}, nil), payload, "sig")

		var body map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body["received"])
	})
}

func TestStripeHandler_HandleWebhook_Archive(t *testing.T) {
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	payload := []byte(`{"id":"evt_arch","object":"event","type":"charge.refunded","created":1760486400,` +
		`"data":{"object":{"id":"ch_1","object":"charge","amount":1000,"amount_refunded":1000,"refunded":true,"payment_intent":"pi_1"}}}`)

	payments := &fakePayments{}
	h := NewStripeHandler(billing.NewMockProvider(), payments, nil, quietLogger(), StripeWebhookConfig{
		WebhookSecret: testSecret,
		Archive:       archive,
	})

	rec := post(h, payload, "sig")
	require.Equal(t, http.StatusOK, rec.Code)

	rc, err := archive.Get(context.Background(), "stripe/2025/10/15/evt_arch.json")
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	t.Run("unverified payloads are not archived", func(t *testing.T) {
		provider := billing.NewMockProvider()
		provider.VerifyWebhookSignatureFunc = func([]byte, string, string) error {
			return billing.ErrInvalidWebhookSignature
		}
		h := NewStripeHandler(provider, payments, nil, quietLogger(), StripeWebhookConfig{WebhookSecret: testSecret, Archive: archive})

		forged := bytes.Replace(payload, []byte("evt_arch"), []byte("evt_forged"), 1)
		rec := post(h, forged, "t=1,v1=bogus")
		require.Equal(t, http.StatusBadRequest, rec.Code)

		ok, err := archive.Exists(context.Background(), "stripe/2025/10/15/evt_forged.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "stripe/2025/10/15/evt_1.json", archiveKey(stripe.Event{ID: "evt_1", Created: 1760486400}))
}
